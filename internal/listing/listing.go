package listing

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/idempotency"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/response"
	"github.com/ksred/fexp-api/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const resourceType = "listing"

// Service creates and reads exchange listings
type Service struct {
	db          *Database
	tx          *database.Transactor
	idempotency *idempotency.Store
	now         func() time.Time
}

// NewService creates a listing service running its writes through tx
func NewService(tx *database.Transactor, idem *idempotency.Store) *Service {
	return &Service{
		db:          NewDatabase(tx.DB()),
		tx:          tx,
		idempotency: idem,
		now:         database.Now,
	}
}

// Store exposes the listing store to the components that mutate listings inside their own
// transactions
func (s *Service) Store() *Database {
	return s.db
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateListingInput is the client supplied part of a listing. Location is never accepted
// from the client; it is the caller's country of residence.
type CreateListingInput struct {
	Type          types.ListingType   `json:"type" validate:"required,oneof=BUY SELL"`
	CurrencyFrom  string              `json:"currency_from" validate:"required,len=3"`
	CurrencyTo    string              `json:"currency_to" validate:"required,len=3"`
	AmountFrom    decimal.Decimal     `json:"amount_from" validate:"required,gt=0"`
	AmountTo      decimal.Decimal     `json:"amount_to" validate:"required,gt=0"`
	ExchangeRate  decimal.NullDecimal `json:"exchange_rate" validate:"omitempty,gt=0"`
	PaymentMethod string              `json:"payment_method" validate:"required,max=64"`
	Description   string              `json:"description" validate:"max=500"`
}

func (in *CreateListingInput) normalize() {
	in.Type = types.ListingType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	in.CurrencyFrom = strings.ToUpper(strings.TrimSpace(in.CurrencyFrom))
	in.CurrencyTo = strings.ToUpper(strings.TrimSpace(in.CurrencyTo))
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.Description = strings.TrimSpace(in.Description)
}

// CreateListing creates an ACTIVE listing owned by the caller, expiring one month from now.
// A non-empty idempotencyKey that was already used by the caller returns the listing created
// the first time instead of a new one.
func (s *Service) CreateListing(ctx context.Context, caller types.Identity, in CreateListingInput, idempotencyKey string) (*types.Listing, error) {
	logger := log.With().
		Str("operation", "create_listing").
		Str("user_uuid", caller.UserUUID).
		Logger()

	if caller.CountryOfResidence == "" {
		return nil, apperr.Unauthenticated("Country of residence missing from token")
	}

	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.CurrencyFrom == in.CurrencyTo {
		return nil, apperr.Validation("Validation failed", apperr.FieldIssue{
			Field:   "currency_to",
			Message: "must differ from currency_from",
		})
	}

	var created *types.Listing
	err := s.tx.Do(ctx, func(tx *gorm.DB) error {
		now := s.now()

		if idempotencyKey != "" {
			existingUUID, err := s.idempotency.Lookup(tx, caller.UserID, idempotencyKey, resourceType, now)
			if err != nil {
				return err
			}
			if existingUUID != "" {
				existing, err := s.db.GetByUUID(tx, existingUUID)
				if err != nil {
					return err
				}
				if existing == nil {
					return apperr.NotFound("Listing not found")
				}
				logger.Info().Str("listing_uuid", existing.UUID).Msg("returning listing for repeated idempotency key")
				created = existing
				return nil
			}
		}

		listing := &types.Listing{
			UUID:          uuid.New().String(),
			UserID:        caller.UserID,
			Type:          in.Type,
			CurrencyFrom:  in.CurrencyFrom,
			CurrencyTo:    in.CurrencyTo,
			AmountFrom:    in.AmountFrom,
			AmountTo:      in.AmountTo,
			ExchangeRate:  in.ExchangeRate,
			PaymentMethod: in.PaymentMethod,
			Location:      caller.CountryOfResidence,
			Description:   in.Description,
			Status:        types.ListingStatusActive,
			ExpiresAt:     types.ExpiryFor(now),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.db.Create(tx, listing); err != nil {
			return err
		}

		if idempotencyKey != "" {
			if err := s.idempotency.Save(tx, caller.UserID, idempotencyKey, resourceType, listing.UUID, now); err != nil {
				return err
			}
		}

		created = listing
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create listing")
		return nil, err
	}

	logger.Info().
		Str("listing_uuid", created.UUID).
		Str("pair", created.CurrencyFrom+"/"+created.CurrencyTo).
		Msg("listing created")
	return created, nil
}

// GetListing returns an ACTIVE, unexpired listing located in the caller's country of residence
func (s *Service) GetListing(caller types.Identity, listingUUID string) (*types.Listing, error) {
	if _, err := uuid.Parse(listingUUID); err != nil {
		return nil, apperr.Validation("Invalid listing id", apperr.FieldIssue{Field: "uuid", Message: "must be a valid UUID"})
	}

	listing, err := s.db.GetVisible(listingUUID, caller.CountryOfResidence, s.now())
	if err != nil {
		return nil, database.Classify(err)
	}
	if listing == nil {
		return nil, apperr.NotFound("Listing not found or not available in your country")
	}
	return listing, nil
}

// GinHandlers contains HTTP handlers for listing endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for listing endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateListingHandler handles POST requests to create listings.
// Idempotency-Key header is optional.
func (h *GinHandlers) CreateListingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		var in CreateListingInput
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		listing, err := h.service.CreateListing(c.Request.Context(), caller, in, c.GetHeader("Idempotency-Key"))
		response.Handle(c, listing, err)
	}
}

// GetListingHandler handles GET requests for a single listing
// URL parameter: uuid
func (h *GinHandlers) GetListingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		listing, err := h.service.GetListing(caller, c.Param("uuid"))
		response.Handle(c, listing, err)
	}
}
