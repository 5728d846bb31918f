package matching

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/listing"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/response"
	"github.com/ksred/fexp-api/pkg/validation"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Sort fields callers may order candidates by, mapped to their columns
var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"amountFrom": "amount_from",
}

// CandidateQuery is the page and ordering of a candidate search
type CandidateQuery struct {
	types.PageRequest
	SortBy    string `json:"sortBy" validate:"oneof=createdAt updatedAt amountFrom"`
	SortOrder string `json:"sortOrder" validate:"oneof=asc desc"`
}

// DefaultCandidateQuery is the first page of ten, newest first
func DefaultCandidateQuery() CandidateQuery {
	return CandidateQuery{
		PageRequest: types.PageRequest{Page: 1, Limit: 10},
		SortBy:      "createdAt",
		SortOrder:   "desc",
	}
}

// Engine finds other users' listings that are compatible counter-offers to the caller's own
// active listings. It only reads.
type Engine struct {
	listings *listing.Database
	db       *Database
	now      func() time.Time
}

func NewEngine(db *gorm.DB, listings *listing.Database) *Engine {
	return &Engine{
		listings: listings,
		db:       NewDatabase(db),
		now:      database.Now,
	}
}

// SetClock overrides the time source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// FindCandidates returns one page of candidates and the total across all pages. A candidate
// complements at least one of the caller's ACTIVE, unexpired listings: opposite direction,
// reversed currency pair, owner with the same country of origin as that listing's owner and
// the caller's country of residence. Amounts are not compared.
func (e *Engine) FindCandidates(ctx context.Context, caller types.Identity, q CandidateQuery) (*types.ListingPage, error) {
	logger := log.With().
		Str("operation", "find_candidates").
		Str("user_uuid", caller.UserUUID).
		Logger()

	if err := validation.Struct(q); err != nil {
		return nil, err
	}

	now := e.now()
	own, err := e.listings.ActiveForUser(caller.UserID, now)
	if err != nil {
		return nil, database.Classify(err)
	}

	if len(own) == 0 {
		logger.Debug().Msg("caller has no active listings")
		return &types.ListingPage{
			Listings:   []types.Listing{},
			Pagination: types.NewPagination(q.Page, q.Limit, 0),
		}, nil
	}

	filter := CandidateFilter{
		CallerID:           caller.UserID,
		CountryOfResidence: caller.CountryOfResidence,
		Own:                own,
		Now:                now,
	}

	db := e.db.withContext(ctx)
	total, err := db.CountCandidates(filter)
	if err != nil {
		return nil, database.Classify(err)
	}

	order := Order{Column: sortColumns[q.SortBy], Desc: q.SortOrder == "desc"}
	candidates, err := db.FindCandidates(filter, order, q.Offset(), q.Limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	if candidates == nil {
		candidates = []types.Listing{}
	}

	logger.Debug().
		Int("own_listings", len(own)).
		Int64("total", total).
		Int("returned", len(candidates)).
		Msg("candidates found")

	return &types.ListingPage{
		Listings:   candidates,
		Pagination: types.NewPagination(q.Page, q.Limit, total),
	}, nil
}

// GinHandlers contains HTTP handlers for the matching endpoint
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

// ParseCandidateQuery reads page, limit, sortBy and sortOrder, applying defaults for missing
// values. Non-numeric page or limit is a validation error.
func ParseCandidateQuery(c *gin.Context) (CandidateQuery, error) {
	q := DefaultCandidateQuery()

	var issues []apperr.FieldIssue
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			issues = append(issues, apperr.FieldIssue{Field: "page", Message: "must be an integer"})
		}
		q.Page = page
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			issues = append(issues, apperr.FieldIssue{Field: "limit", Message: "must be an integer"})
		}
		q.Limit = limit
	}
	if len(issues) > 0 {
		return q, apperr.Validation("Invalid pagination parameters", issues...)
	}

	if v := c.Query("sortBy"); v != "" {
		q.SortBy = v
	}
	if v := c.Query("sortOrder"); v != "" {
		q.SortOrder = v
	}
	return q, nil
}

// FindCandidatesHandler handles GET requests for matching listings
func (h *GinHandlers) FindCandidatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		q, err := ParseCandidateQuery(c)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		page, err := h.engine.FindCandidates(c.Request.Context(), caller, q)
		response.Handle(c, page, err)
	}
}
