package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per key and forgets keys that have
// been idle for limiterIdleTTL. Sweeping happens inline on lookup.
type limiterSet struct {
	mu        sync.Mutex
	r         rate.Limit
	b         int
	m         map[string]*keyedLimiter
	nextSweep time.Time
	now       func() time.Time
}

func newLimiterSet(r rate.Limit, b int) *limiterSet {
	return &limiterSet{r: r, b: b, m: make(map[string]*keyedLimiter), now: time.Now}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.After(s.nextSweep) {
		for k, kl := range s.m {
			if now.Sub(kl.lastSeen) > limiterIdleTTL {
				delete(s.m, k)
			}
		}
		s.nextSweep = now.Add(limiterIdleTTL / 2)
	}
	kl, ok := s.m[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.m[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitBy limits requests per key. An empty key falls back to the
// client IP. Mount it after Auth and key on GetCharID to throttle a
// character across all of its connections.
func RateLimitBy(r rate.Limit, b int, key func(*gin.Context) string) gin.HandlerFunc {
	set := newLimiterSet(r, b)
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = c.ClientIP()
		}
		if !set.get(k).Allow() {
			c.Header("Retry-After", retryAfter(r))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// ByCharacter keys RateLimitBy on the authenticated character.
func ByCharacter(c *gin.Context) string {
	if id := GetCharID(c); id != 0 {
		return "char:" + strconv.FormatInt(id, 10)
	}
	return ""
}

func retryAfter(r rate.Limit) string {
	if r <= 0 || r == rate.Inf {
		return "1"
	}
	secs := math.Ceil(1 / float64(r))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(int(secs))
}
