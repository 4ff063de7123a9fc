package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
	mw "github.com/kasuganosora/guildbank/middleware"
	"github.com/kasuganosora/guildbank/model"
	"gorm.io/gorm"
)

const sessionOpTimeout = 2 * time.Second

// AuthHandler issues and revokes character sessions. Account login lives in
// the game's own auth service; this server only trusts tokens it signed.
type AuthHandler struct {
	db       *gorm.DB
	sessions cache.Cache
	secret   string
	ttl      time.Duration
}

func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{db: db, sessions: c, secret: sec.JWTSecret, ttl: sec.JWTTTLH}
}

type sessionResponse struct {
	Token     string    `json:"token"`
	CharID    int64     `json:"char_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue handles POST /api/admin/sessions {char_id}.
func (h *AuthHandler) Issue(c *gin.Context) {
	var req struct {
		CharID int64 `json:"char_id" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var char model.Character
	err := h.db.WithContext(c.Request.Context()).Select("id", "name").Take(&char, req.CharID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp, err := h.open(c.Request.Context(), char.ID, char.Name)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := mw.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	if err := h.revoke(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh. The new session is stored before
// the old one is dropped, so a failed refresh leaves the caller logged in.
func (h *AuthHandler) Refresh(c *gin.Context) {
	charID := mw.GetCharID(c)
	if charID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	resp, err := h.open(c.Request.Context(), charID, mw.GetCharName(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	if old, ok := mw.BearerToken(c.GetHeader("Authorization")); ok {
		_ = h.revoke(c.Request.Context(), old)
	}
	c.JSON(http.StatusOK, resp)
}

// open signs a token and records its owner under the session key checked
// by mw.CheckSession.
func (h *AuthHandler) open(ctx context.Context, charID int64, name string) (sessionResponse, error) {
	token, err := mw.GenerateToken(charID, name, h.secret, h.ttl)
	if err != nil {
		return sessionResponse{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, sessionOpTimeout)
	defer cancel()
	if err := h.sessions.Set(ctx, mw.SessionKeyPrefix+token, strconv.FormatInt(charID, 10), h.ttl); err != nil {
		return sessionResponse{}, err
	}
	return sessionResponse{Token: token, CharID: charID, ExpiresAt: time.Now().Add(h.ttl).UTC()}, nil
}

func (h *AuthHandler) revoke(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, sessionOpTimeout)
	defer cancel()
	return h.sessions.Del(ctx, mw.SessionKeyPrefix+token)
}
