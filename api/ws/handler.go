package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	mw "github.com/kasuganosora/guildbank/middleware"
	"go.uber.org/zap"
)

// maxMessageSize bounds one client frame. Bank requests are a few dozen bytes.
const maxMessageSize = 8 << 10

// Flusher waits for queued writes to reach the database.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Bags loads a character's bags on connect and saves them on disconnect.
type Bags interface {
	Inventories
	Release(ctx context.Context, charID int64) error
}

// Presence attaches sessions to the notification hub.
type Presence interface {
	Attach(ctx context.Context, s *player.PlayerSession) error
	Detach(ctx context.Context, s *player.PlayerSession) error
	Local(charID int64) bool
}

// Handler upgrades GET /ws and runs the connection's read loop.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	hub      Presence
	bags     Bags
	store    Flusher
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler. sec.AllowedOrigins lists the
// accepted Origin headers; an empty list accepts any origin.
func NewHandler(
	c cache.Cache,
	sec config.SecurityConfig,
	hub Presence,
	bags Bags,
	store Flusher,
	router *Router,
	logger *zap.Logger,
) *Handler {
	origins := make(map[string]struct{}, len(sec.AllowedOrigins))
	for _, o := range sec.AllowedOrigins {
		origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return &Handler{
		cache:  c,
		sec:    sec,
		hub:    hub,
		bags:   bags,
		store:  store,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[strings.ToLower(r.Header.Get("Origin"))]
				return ok
			},
		},
	}
}

// ServeWS handles GET /ws. Browsers pass the session token as ?token=;
// other clients may send it as a Bearer header instead.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr, _ = mw.BearerToken(c.GetHeader("Authorization"))
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.CheckSession(c.Request.Context(), tokenStr, h.sec, h.cache)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// The bags must be live before any bank move can reach them.
	if _, err := h.bags.Get(c.Request.Context(), claims.CharID); err != nil {
		if errors.Is(err, item.ErrCharacterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		h.logger.Error("load inventory", zap.Int64("char_id", claims.CharID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("ws upgrade failed", zap.Int64("char_id", claims.CharID), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sess := player.NewPlayerSession(claims.CharID, claims.CharName, conn, h.logger)
	if err := h.hub.Attach(c.Request.Context(), sess); err != nil {
		h.logger.Warn("presence update failed", zap.Int64("char_id", sess.CharID), zap.Error(err))
	}
	h.logger.Info("player connected", zap.Int64("char_id", sess.CharID))
	h.readLoop(sess)
}

func (h *Handler) readLoop(s *player.PlayerSession) {
	ctx, cancel := context.WithCancel(context.Background())
	defer h.disconnect(s)
	defer cancel()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.Int64("char_id", s.CharID), zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(ctx, s, raw)
	}
}

// disconnect detaches the session and, unless a newer session for the same
// character is live here, saves and releases the bags.
func (h *Handler) disconnect(s *player.PlayerSession) {
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.hub.Detach(ctx, s); err != nil {
		h.logger.Warn("presence update failed", zap.Int64("char_id", s.CharID), zap.Error(err))
	}
	if h.hub.Local(s.CharID) {
		return
	}
	// Queued bank batches carry inventory snapshots; let them land first so
	// the final save is the newest write.
	if err := h.store.Flush(ctx); err != nil {
		h.logger.Warn("flush before inventory release", zap.Int64("char_id", s.CharID), zap.Error(err))
	}
	if err := h.bags.Release(ctx, s.CharID); err != nil {
		h.logger.Error("save inventory on disconnect", zap.Int64("char_id", s.CharID), zap.Error(err))
	}
	h.logger.Info("player disconnected", zap.Int64("char_id", s.CharID))
}
