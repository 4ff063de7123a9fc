package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/player"
	"go.uber.org/zap"
)

const (
	// Channel carries every guild event published by any node.
	Channel = "guildbank:notify"
	// OnlineKey is the cache set of connected character IDs.
	OnlineKey = "guildbank:online"

	opTimeout = 2 * time.Second
)

// Envelope is one event addressed to one character. A published message
// is a JSON array of envelopes.
type Envelope struct {
	CharID  int64           `json:"char_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub publishes guild events, one message per guild operation, and
// delivers the ones addressed to sessions connected to this node.
type Hub struct {
	ps       cache.PubSub
	c        cache.Cache
	sessions *player.SessionManager
	logger   *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(ps cache.PubSub, c cache.Cache, sessions *player.SessionManager, logger *zap.Logger) *Hub {
	return &Hub{ps: ps, c: c, sessions: sessions, logger: logger}
}

// Notify publishes event for charID.
func (h *Hub) Notify(charID int64, event string, payload interface{}) {
	h.NotifyBatch([]guild.Delivery{{CharID: charID, Event: event, Payload: payload}})
}

// NotifyBatch publishes the deliveries of one guild operation as a single
// message. It never blocks the caller on a slow subscriber.
func (h *Hub) NotifyBatch(ds []guild.Delivery) {
	envs := make([]Envelope, 0, len(ds))
	for _, d := range ds {
		raw, err := json.Marshal(d.Payload)
		if err != nil {
			h.logger.Error("encode guild event", zap.String("event", d.Event), zap.Error(err))
			continue
		}
		envs = append(envs, Envelope{CharID: d.CharID, Event: d.Event, Payload: raw})
	}
	if len(envs) == 0 {
		return
	}
	msg, err := json.Marshal(envs)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := h.ps.Publish(ctx, Channel, string(msg)); err != nil {
		h.logger.Warn("publish guild events",
			zap.Int("count", len(envs)),
			zap.String("event", envs[0].Event),
			zap.Error(err))
	}
}

// Decode unpacks a published message into its envelopes. Both a batch and
// a single envelope are accepted.
func Decode(raw string) ([]Envelope, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) > 0 && data[0] == '{' {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		return []Envelope{env}, nil
	}
	var envs []Envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

// Run delivers published events to local sessions until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	msgCh, unsub, err := h.ps.Subscribe(ctx, Channel)
	if err != nil {
		return err
	}
	defer unsub()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			h.deliver(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) deliver(raw string) {
	envs, err := Decode(raw)
	if err != nil {
		h.logger.Warn("bad guild event envelope", zap.Error(err))
		return
	}
	for _, env := range envs {
		if s := h.sessions.Get(env.CharID); s != nil {
			s.Send(&player.Packet{Type: env.Event, Payload: env.Payload})
		}
	}
}

// Attach records s as online cluster-wide.
func (h *Hub) Attach(ctx context.Context, s *player.PlayerSession) error {
	h.sessions.Register(s)
	return h.c.SAdd(ctx, OnlineKey, strconv.FormatInt(s.CharID, 10))
}

// Detach removes s. The presence entry is kept when s was already
// displaced by a newer session.
func (h *Hub) Detach(ctx context.Context, s *player.PlayerSession) error {
	if !h.sessions.Unregister(s) {
		return nil
	}
	return h.c.SRem(ctx, OnlineKey, strconv.FormatInt(s.CharID, 10))
}

// Online reports whether charID is connected to any node.
func (h *Hub) Online(ctx context.Context, charID int64) bool {
	ok, err := h.c.SIsMember(ctx, OnlineKey, strconv.FormatInt(charID, 10))
	if err != nil {
		h.logger.Warn("presence lookup", zap.Int64("char_id", charID), zap.Error(err))
		return h.sessions.IsOnline(charID)
	}
	return ok
}

// Local reports whether charID has a session on this node.
func (h *Hub) Local(charID int64) bool {
	return h.sessions.IsOnline(charID)
}
