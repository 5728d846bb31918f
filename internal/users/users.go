package users

import (
	"strings"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/validation"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service looks up listing owners. Registration and profile management belong to the
// identity provider; EnsureUser exists so demo and test data can be provisioned.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// NewUser is the profile a user is provisioned with
type NewUser struct {
	Email              string `json:"email" validate:"required,email"`
	Name               string `json:"name" validate:"required"`
	CountryOfOrigin    string `json:"country_of_origin" validate:"required"`
	CountryOfResidence string `json:"country_of_residence" validate:"required"`
}

// GetUser returns the user with the given internal id
func (s *Service) GetUser(id uint) (*types.User, error) {
	user, err := s.db.GetByID(id)
	if err != nil {
		return nil, apperr.Unexpected("Failed to load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	return user, nil
}

// EnsureUser returns the user registered under in.Email, creating it first if needed
func (s *Service) EnsureUser(in NewUser) (*types.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.db.GetByEmail(in.Email)
	if err != nil {
		return nil, apperr.Unexpected("Failed to load user", err)
	}
	if existing != nil {
		return existing, nil
	}

	user := &types.User{
		UUID:               uuid.New().String(),
		Email:              in.Email,
		Name:               in.Name,
		CountryOfOrigin:    in.CountryOfOrigin,
		CountryOfResidence: in.CountryOfResidence,
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, apperr.Unexpected("Failed to create user", err)
	}

	log.Info().Str("user_uuid", user.UUID).Msg("user provisioned")
	return user, nil
}
