package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer is stamped into every token and required when parsing.
const TokenIssuer = "guildbank"

var (
	ErrInvalidToken   = errors.New("invalid token")
	errSessionExpired = errors.New("session expired")
)

// Claims is the JWT payload. Tokens are bound to one character; the
// subject repeats the character ID for tools that only read standard claims.
type Claims struct {
	CharID   int64  `json:"char_id"`
	CharName string `json:"char_name"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for charID that expires after ttl.
// Each token carries a random ID, so two tokens for the same character
// never collide in the session store.
func GenerateToken(charID int64, charName, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		CharID:   charID,
		CharName: charName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatInt(charID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenStr and returns its claims. Every failure wraps
// ErrInvalidToken.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.CharID <= 0 {
		return nil, fmt.Errorf("%w: no character", ErrInvalidToken)
	}
	return claims, nil
}
