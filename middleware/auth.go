package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
)

const (
	CharIDKey   = "char_id"
	CharNameKey = "char_name"

	// SessionKeyPrefix keys the cache entry that keeps a token alive.
	SessionKeyPrefix = "session:"
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return tok, tok != ""
}

// CheckSession parses tokenStr and confirms its session is still live and
// still belongs to the token's character. Cache failures are returned
// unwrapped; token problems wrap ErrInvalidToken or errSessionExpired.
func CheckSession(ctx context.Context, tokenStr string, sec config.SecurityConfig, c cache.Cache) (*Claims, error) {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return nil, err
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	owner, err := c.Get(cacheCtx, SessionKeyPrefix+tokenStr)
	if cache.IsNotFound(err) {
		return nil, errSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if owner != strconv.FormatInt(claims.CharID, 10) {
		return nil, errSessionExpired
	}
	return claims, nil
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr, ok := BearerToken(ctx.GetHeader("Authorization"))
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := CheckSession(ctx.Request.Context(), tokenStr, sec, c)
		switch {
		case err == nil:
		case errors.Is(err, errSessionExpired):
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		case errors.Is(err, ErrInvalidToken):
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		default:
			_ = ctx.Error(err)
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}

		ctx.Set(CharIDKey, claims.CharID)
		ctx.Set(CharNameKey, claims.CharName)
		ctx.Next()
	}
}

// GetCharID retrieves the authenticated character ID from the Gin context.
func GetCharID(c *gin.Context) int64 {
	return c.GetInt64(CharIDKey)
}

// GetCharName retrieves the authenticated character name from the Gin context.
func GetCharName(c *gin.Context) string {
	return c.GetString(CharNameKey)
}
