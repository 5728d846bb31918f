package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"gorm.io/gorm"
)

// Database is the listing store. Methods that take a tx run on the caller's transaction so
// that listing changes commit or roll back with the match change driving them.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Create(tx *gorm.DB, listing *types.Listing) error {
	return tx.Create(listing).Error
}

// GetByUUID returns the listing with its owner, or nil when there is none
func (d *Database) GetByUUID(tx *gorm.DB, listingUUID string) (*types.Listing, error) {
	var listing types.Listing
	if err := tx.Preload("User").Where("uuid = ?", listingUUID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

// GetVisible returns an ACTIVE, unexpired listing located in country, or nil
func (d *Database) GetVisible(listingUUID, country string, now time.Time) (*types.Listing, error) {
	var listing types.Listing
	err := d.db.Preload("User").
		Where("uuid = ? AND location = ? AND status = ? AND expires_at > ?",
			listingUUID, country, types.ListingStatusActive, now).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

// LockByUUIDs reads the listings with the given uuids and locks their rows for the rest of tx.
// Rows are locked in ascending id order so two transactions over the same pair cannot deadlock.
func (d *Database) LockByUUIDs(tx *gorm.DB, uuids ...string) (map[string]*types.Listing, error) {
	var listings []types.Listing
	err := tx.Clauses(database.ForUpdate).
		Where("uuid IN ?", uuids).
		Order("id ASC").
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return d.withOwners(tx, listings)
}

// LockByIDs is LockByUUIDs keyed by internal id
func (d *Database) LockByIDs(tx *gorm.DB, ids ...uint) (map[uint]*types.Listing, error) {
	var listings []types.Listing
	err := tx.Clauses(database.ForUpdate).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&listings).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*types.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ID] = &listings[i]
	}
	return byID, nil
}

// Owners are loaded after the lock so the locking statement stays a single-table select
func (d *Database) withOwners(tx *gorm.DB, listings []types.Listing) (map[string]*types.Listing, error) {
	byUUID := make(map[string]*types.Listing, len(listings))
	if len(listings) == 0 {
		return byUUID, nil
	}

	userIDs := make([]uint, 0, len(listings))
	for _, l := range listings {
		userIDs = append(userIDs, l.UserID)
	}
	var owners []types.User
	if err := tx.Where("id IN ?", userIDs).Find(&owners).Error; err != nil {
		return nil, err
	}
	ownerByID := make(map[uint]*types.User, len(owners))
	for i := range owners {
		ownerByID[owners[i].ID] = &owners[i]
	}

	for i := range listings {
		listings[i].User = ownerByID[listings[i].UserID]
		byUUID[listings[i].UUID] = &listings[i]
	}
	return byUUID, nil
}

// TransitionStatus moves every listing in ids from shift.From to shift.To. The update is
// conditional on the prior status; if any listing was not in shift.From the whole call is a
// conflict and the caller's transaction must roll back.
func (d *Database) TransitionStatus(tx *gorm.DB, shift types.ListingShift, ids ...uint) error {
	result := tx.Model(&types.Listing{}).
		Where("id IN ? AND status = ?", ids, shift.From).
		Update("status", shift.To)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return apperr.Conflict(fmt.Sprintf(
			"Listing status changed concurrently. Expected %d listings in status %s, found %d.",
			len(ids), shift.From, result.RowsAffected,
		))
	}
	return nil
}

// ActiveForUser returns the user's ACTIVE listings that have not expired at now
func (d *Database) ActiveForUser(userID uint, now time.Time) ([]types.Listing, error) {
	var listings []types.Listing
	err := d.db.Preload("User").
		Where("user_id = ? AND status = ? AND expires_at > ?", userID, types.ListingStatusActive, now).
		Order("id ASC").
		Find(&listings).Error
	return listings, err
}
