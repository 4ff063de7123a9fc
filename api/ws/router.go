package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kasuganosora/guildbank/game/player"
	"go.uber.org/zap"
)

// HandlerFunc processes one request from a session. Expected rejections are
// answered by the handler itself; a returned error means the request failed
// unexpectedly and the client only gets a generic error packet.
type HandlerFunc func(ctx context.Context, session *player.PlayerSession, payload json.RawMessage) error

// Router maps packet types to handlers. Handlers are registered at startup
// and Dispatch runs on each session's read loop.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
	failed   atomic.Int64
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers fn for msgType. Registering a type twice panics.
func (r *Router) On(msgType string, fn HandlerFunc) {
	if _, dup := r.handlers[msgType]; dup {
		panic(fmt.Sprintf("ws: handler for %q registered twice", msgType))
	}
	r.handlers[msgType] = fn
}

// Types lists the registered packet types in order.
func (r *Router) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Failed counts requests whose handler returned an error or panicked.
func (r *Router) Failed() int64 {
	return r.failed.Load()
}

// Dispatch decodes one packet and runs its handler. Packets whose seq is
// not above the session's last accepted seq are dropped as replays.
func (r *Router) Dispatch(ctx context.Context, s *player.PlayerSession, raw []byte) {
	var pkt player.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil || pkt.Type == "" {
		r.logger.Warn("malformed packet", zap.Int64("char_id", s.CharID), zap.Error(err))
		sendError(s, "malformed packet")
		return
	}
	if !s.AcceptSeq(pkt.Seq) {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("char_id", s.CharID),
			zap.String("type", pkt.Type),
			zap.Uint64("seq", pkt.Seq))
		return
	}
	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("char_id", s.CharID))
		sendError(s, "unknown message type: "+pkt.Type)
		return
	}

	traceID := uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyTraceID{}, traceID)
	if err := invoke(ctx, fn, s, pkt.Payload); err != nil {
		r.failed.Add(1)
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("char_id", s.CharID),
			zap.String("trace_id", traceID),
			zap.Error(err))
		sendError(s, "internal error")
	}
}

// invoke runs fn, turning a panic into an error so one bad packet cannot
// take the read loop down.
func invoke(ctx context.Context, fn HandlerFunc, s *player.PlayerSession, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn(ctx, s, payload)
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx returns the trace ID Dispatch attached to a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTraceID{}).(string)
	return v
}
