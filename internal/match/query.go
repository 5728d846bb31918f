package match

import (
	"context"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/validation"
	"gorm.io/gorm"
)

// MatchQuery is a page of the caller's matches, optionally restricted to one status
type MatchQuery struct {
	types.PageRequest
	Status string `json:"status"`
}

// QueryService reads matches for their participants
type QueryService struct {
	matches *Database
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{
		matches: NewDatabase(db),
	}
}

// ListMyMatches returns the matches the caller initiated or whose matched listing the caller
// owns, newest first
func (s *QueryService) ListMyMatches(ctx context.Context, caller types.Identity, q MatchQuery) (*types.MatchPage, error) {
	if err := validation.Struct(q); err != nil {
		return nil, err
	}

	filter := MatchFilter{UserID: caller.UserID}
	if q.Status != "" {
		status, err := types.ParseMatchStatus(q.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	db := NewDatabase(s.matches.db.WithContext(ctx))
	total, err := db.CountForUser(filter)
	if err != nil {
		return nil, database.Classify(err)
	}

	matches, err := db.ListForUser(filter, q.Offset(), q.Limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	if matches == nil {
		matches = []types.Match{}
	}

	return &types.MatchPage{
		Matches:    matches,
		Pagination: types.NewPagination(q.Page, q.Limit, total),
	}, nil
}

// GetMatch returns one match to either participant
func (s *QueryService) GetMatch(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error) {
	if _, err := uuid.Parse(matchUUID); err != nil {
		return nil, apperr.Validation("Invalid match id", apperr.FieldIssue{Field: "uuid", Message: "must be a valid UUID"})
	}

	m, err := NewDatabase(s.matches.db.WithContext(ctx)).GetByUUIDWithDetails(matchUUID)
	if err != nil {
		return nil, database.Classify(err)
	}
	if m == nil {
		return nil, apperr.NotFound("Match not found.")
	}
	if _, ok := m.SideOf(caller.UserID); !ok {
		return nil, apperr.Forbidden("Not authorized to view this match.")
	}
	return m, nil
}
