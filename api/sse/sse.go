package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
	mw "github.com/kasuganosora/guildbank/middleware"
	"github.com/kasuganosora/guildbank/notify"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler serves the read-only bank feed used by web dashboards.
type Handler struct {
	pubsub    cache.PubSub
	sessions  cache.Cache
	sec       config.SecurityConfig
	keepalive time.Duration
	logger    *zap.Logger
}

func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, sessions: c, sec: sec, keepalive: defaultKeepalive, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
//
// Each hub envelope addressed to the token's character becomes one event
// named after the envelope's event type. The session is checked again on
// every keepalive so a logout ends the stream.
func (h *Handler) ServeSSE(c *gin.Context) {
	token := c.Query("token")
	claims, err := mw.CheckSession(c.Request.Context(), token, h.sec, h.sessions)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	log := h.logger.With(zap.Int64("char_id", claims.CharID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	feed, unsubscribe, err := h.pubsub.Subscribe(ctx, notify.Channel)
	if err != nil {
		log.Error("sse subscribe", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable"})
		return
	}
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"char_id": claims.CharID})
	c.Writer.Flush()

	tick := time.NewTicker(h.keepalive)
	defer tick.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-feed:
			if !ok {
				return false
			}
			for _, ev := range decode(claims.CharID, msg.Payload) {
				c.SSEvent(ev.name, ev.data)
			}
			return true
		case <-tick.C:
			_, err := mw.CheckSession(ctx, token, h.sec, h.sessions)
			switch {
			case err == nil:
				_, _ = io.WriteString(w, ": keepalive\n\n")
				return true
			case errors.Is(err, context.Canceled):
				return false
			default:
				log.Debug("sse session ended", zap.Error(err))
				c.SSEvent("expired", "{}")
				return false
			}
		}
	})
}

type feedEvent struct {
	name string
	data string
}

// decode unpacks a hub message into the events addressed to charID.
// Malformed messages yield nothing.
func decode(charID int64, raw string) []feedEvent {
	envs, err := notify.Decode(raw)
	if err != nil {
		return nil
	}
	var out []feedEvent
	for _, env := range envs {
		if env.CharID != charID || env.Event == "" {
			continue
		}
		data := "{}"
		if len(env.Payload) > 0 {
			data = string(env.Payload)
		}
		out = append(out, feedEvent{name: env.Event, data: data})
	}
	return out
}
