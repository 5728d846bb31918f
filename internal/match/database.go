package match

import (
	"errors"

	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"gorm.io/gorm"
)

// Database is the match store. Lifecycle methods run on the caller's transaction.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Create(tx *gorm.DB, m *types.Match) error {
	// Associations are written by their own stores
	return tx.Omit("Initiator", "InitiatorListing", "MatchedListing").Create(m).Error
}

// LockByUUID reads the match and locks its row for the rest of tx, or returns nil
func (d *Database) LockByUUID(tx *gorm.DB, matchUUID string) (*types.Match, error) {
	var m types.Match
	if err := tx.Clauses(database.ForUpdate).Where("uuid = ?", matchUUID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// FindLive returns the PENDING or ACCEPTED matches that reference any of the listings, on
// either side
func (d *Database) FindLive(tx *gorm.DB, listingIDs ...uint) ([]types.Match, error) {
	var matches []types.Match
	err := tx.Where("status IN ?", types.LiveMatchStatuses).
		Where(tx.Where("initiator_listing_id IN ?", listingIDs).Or("matched_listing_id IN ?", listingIDs)).
		Find(&matches).Error
	return matches, err
}

// Update writes the status, confirmation flags and completion time of m, provided the stored
// row still has the status and flags the caller read. A lost race is a retryable conflict.
func (d *Database) Update(tx *gorm.DB, m *types.Match, prevStatus types.MatchStatus, prev types.Confirmation) error {
	result := tx.Model(&types.Match{}).
		Where("id = ? AND status = ?", m.ID, prevStatus).
		Where("initiator_confirmed_completion = ? AND matched_confirmed_completion = ?",
			prev.Has(types.SideInitiator), prev.Has(types.SideRecipient)).
		Updates(map[string]interface{}{
			"status":                         m.Status,
			"initiator_confirmed_completion": m.InitiatorConfirmedCompletion,
			"matched_confirmed_completion":   m.MatchedConfirmedCompletion,
			"completed_at":                   m.CompletedAt,
			"updated_at":                     m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return apperr.Busy("The match was modified by another request. Please retry.", nil)
	}
	return nil
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Initiator").
		Preload("InitiatorListing.User").
		Preload("MatchedListing.User")
}

// GetWithDetails returns the match with both listings and every participant loaded, or nil
func (d *Database) GetWithDetails(tx *gorm.DB, id uint) (*types.Match, error) {
	var m types.Match
	if err := withDetails(tx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByUUIDWithDetails is GetWithDetails keyed by public id
func (d *Database) GetByUUIDWithDetails(matchUUID string) (*types.Match, error) {
	var m types.Match
	if err := withDetails(d.db).Where("uuid = ?", matchUUID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// MatchFilter selects the matches a user takes part in
type MatchFilter struct {
	UserID uint
	Status *types.MatchStatus
}

// A user takes part as the initiator or as the owner of the matched listing
func (f MatchFilter) scope(db *gorm.DB) *gorm.DB {
	owned := db.Session(&gorm.Session{NewDB: true}).
		Model(&types.Listing{}).
		Select("id").
		Where("user_id = ?", f.UserID)

	q := db.Model(&types.Match{}).
		Where("matches.initiator_id = ? OR matches.matched_listing_id IN (?)", f.UserID, owned)
	if f.Status != nil {
		q = q.Where("matches.status = ?", *f.Status)
	}
	return q
}

// ListForUser returns one page of the user's matches, newest first
func (d *Database) ListForUser(f MatchFilter, offset, limit int) ([]types.Match, error) {
	var matches []types.Match
	err := withDetails(d.db.Scopes(f.scope)).
		Order("matches.created_at DESC").
		Order("matches.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

func (d *Database) CountForUser(f MatchFilter) (int64, error) {
	var total int64
	err := d.db.Scopes(f.scope).Count(&total).Error
	return total, err
}
