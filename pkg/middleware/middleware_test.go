package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type stubValidator struct {
	token  string
	claims *auth.Claims
}

func (s stubValidator) ValidateToken(token string) (*auth.Claims, error) {
	if token != s.token {
		return nil, errors.New("invalid token")
	}
	return s.claims, nil
}

func newRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := func(c *gin.Context) {
		identity, _ := auth.IdentityFrom(c)
		c.String(http.StatusOK, identity.UserUUID)
	}
	router.GET("/api/v1/listings", append(middleware, handler)...)
	router.POST("/api/v1/auth/token", append(middleware, handler)...)
	return router
}

func get(router *gin.Engine, method, path, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	validator := stubValidator{
		token:  "good",
		claims: &auth.Claims{UserID: 1, UserUUID: "user-1", CountryOfResidence: "USA"},
	}
	router := newRouter(JWTAuth(validator))

	w := get(router, http.MethodGet, "/api/v1/listings", "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good"},
		{"no token", "Bearer"},
		{"invalid token", "Bearer bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, http.MethodGet, "/api/v1/listings", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRateLimit_PerIdentity(t *testing.T) {
	router := newRouter(func(c *gin.Context) {
		auth.SetIdentity(c, types.Identity{UserID: 1, UserUUID: c.GetHeader("Authorization")})
		c.Next()
	}, NewRateLimiter().RateLimit())

	// The auth route allows a burst of three
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(router, http.MethodPost, "/api/v1/auth/token", "rate-user-a").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, http.MethodPost, "/api/v1/auth/token", "rate-user-a").Code)

	// Other callers and other routes keep their own budget
	assert.Equal(t, http.StatusOK, get(router, http.MethodPost, "/api/v1/auth/token", "rate-user-b").Code)
	assert.Equal(t, http.StatusOK, get(router, http.MethodGet, "/api/v1/listings", "rate-user-a").Code)
}

func TestLimitFor(t *testing.T) {
	tests := []struct {
		path  string
		limit rate.Limit
		burst int
	}{
		{"/api/v1/auth/token", authLimit, 3},
		{"/api/v1/matches/:uuid/accept", matchLimit, 10},
		{"/api/v1/listings", listingLimit, 20},
		{"/health", healthLimit, 50},
		{"/other", rate.Inf, 1},
	}
	for _, tt := range tests {
		limit, burst := limitFor(tt.path)
		assert.Equal(t, tt.limit, limit, tt.path)
		assert.Equal(t, tt.burst, burst, tt.path)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	l := NewRateLimiter()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.limiter("/api/v1/listings", "idle")
	now = now.Add(2 * time.Minute)
	l.limiter("/api/v1/listings", "active")

	now = now.Add(idleVisitorTTL - time.Minute)
	assert.Equal(t, 1, l.Sweep())
	_, kept := l.visitors["active:/api/v1/listings"]
	assert.True(t, kept)
}
