package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Requests per minute and burst for each route family
var (
	authLimit    = rate.Limit(10.0 / 60.0)
	matchLimit   = rate.Limit(100.0 / 60.0)
	listingLimit = rate.Limit(300.0 / 60.0)
	healthLimit  = rate.Limit(1000.0 / 60.0)
)

// idleVisitorTTL is how long an unused limiter is kept
const idleVisitorTTL = 3 * time.Minute

func limitFor(path string) (rate.Limit, int) {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return authLimit, 3
	case strings.HasPrefix(path, "/api/v1/matches"):
		return matchLimit, 10
	case strings.HasPrefix(path, "/api/v1/listings"):
		return listingLimit, 20
	case strings.HasPrefix(path, "/health"):
		return healthLimit, 50
	default:
		return rate.Inf, 1
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller and route
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *RateLimiter) limiter(path, clientKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := clientKey + ":" + path
	v, exists := l.visitors[key]
	if !exists {
		limit, burst := limitFor(path)
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Sweep drops limiters idle for longer than idleVisitorTTL and returns how many remain
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleVisitorTTL)
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
	return len(l.visitors)
}

// Run sweeps idle limiters every minute until ctx is done
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RateLimit throttles each client per route. Authenticated callers are keyed by user,
// everyone else by IP.
func (l *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.ClientIP()
		if identity, ok := auth.IdentityFrom(c); ok {
			clientKey = identity.UserUUID
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !l.limiter(path, clientKey).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// JWTAuth rejects requests without a valid bearer token and attaches the caller identity
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(bearerToken[1])
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected bearer token")
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		auth.SetIdentity(c, claims.Identity())
		c.Next()
	}
}

// RequestLogger logs one line per request with its outcome
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		switch status := c.Writer.Status(); {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		if identity, ok := auth.IdentityFrom(c); ok {
			event = event.Str("user_uuid", identity.UserUUID)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}
