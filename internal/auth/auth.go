package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Demo credentials, registered outside production
var (
	DemoAPIKey    = "demo-api-key"
	DemoAPISecret = "demo-api-secret"
)

const identityKey = "identity"

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID             uint   `json:"user_id"`
	UserUUID           string `json:"user_uuid"`
	CountryOfResidence string `json:"country_of_residence"`
}

// Identity returns the caller identity carried by the token
func (c *Claims) Identity() types.Identity {
	return types.Identity{
		UserID:             c.UserID,
		UserUUID:           c.UserUUID,
		CountryOfResidence: c.CountryOfResidence,
	}
}

// UserLookup resolves the user a credential pair is issued to
type UserLookup interface {
	GetUser(id uint) (*types.User, error)
}

type credential struct {
	secret string
	userID uint
}

// Service issues and validates caller tokens
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	users     UserLookup
	now       func() time.Time

	mu sync.RWMutex
	// In a real deployment credentials would come from the identity provider
	apiCredentials map[string]credential
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string, tokenTTL time.Duration, users UserLookup) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		jwtSecret:      []byte(jwtSecret),
		tokenTTL:       tokenTTL,
		users:          users,
		now:            time.Now,
		apiCredentials: make(map[string]credential),
	}
}

// GenerateToken generates a JWT token for valid API credentials. The token carries the user's
// id, uuid and country of residence.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	cred, ok := s.lookupCredentials(creds)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUser(cred.userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiration := now.Add(s.tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		UserID:             user.ID,
		UserUUID:           user.UUID,
		CountryOfResidence: user.CountryOfResidence,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == 0 || claims.UserUUID == "" {
		return nil, errors.New("token is missing the user identity")
	}

	return claims, nil
}

func (s *Service) lookupCredentials(creds Credentials) (credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.apiCredentials[creds.APIKey]
	return cred, exists && cred.secret == creds.APISecret
}

// RegisterAPICredentials issues an API key pair to a user
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string, userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiCredentials[apiKey] = credential{secret: apiSecret, userID: userID}
}

// SetIdentity attaches the authenticated caller to the request
func SetIdentity(c *gin.Context, identity types.Identity) {
	c.Set(identityKey, identity)
}

// IdentityFrom returns the caller attached by the JWT middleware
func IdentityFrom(c *gin.Context) (types.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return types.Identity{}, false
	}
	identity, ok := value.(types.Identity)
	return identity, ok && identity.UserID != 0
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain API credentials
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			err = apperr.Unauthenticated(err.Error())
		}
		response.Handle(c, token, err)
	}
}
