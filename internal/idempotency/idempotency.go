package idempotency

import (
	"errors"
	"time"

	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"gorm.io/gorm"
)

// DefaultTTL is how long a key keeps returning the resource it first created
const DefaultTTL = 24 * time.Hour

// Store records Idempotency-Key headers against the resources they created. Keys are
// scoped per user, and every call runs on the caller's transaction so that the record and
// the resource commit together.
type Store struct {
	ttl time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl}
}

// Lookup returns the id of the resource previously created under key, or "" when the key is
// unused. An expired record is removed so the key can be reused. A key already bound to another
// kind of resource is a conflict.
func (s *Store) Lookup(tx *gorm.DB, userID uint, key, resourceType string, now time.Time) (string, error) {
	var record types.IdempotencyRecord
	err := tx.Where("user_id = ? AND idempotency_key = ?", userID, key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	if !record.ExpiresAt.After(now) {
		if err := tx.Delete(&record).Error; err != nil {
			return "", err
		}
		return "", nil
	}

	if record.ResourceType != resourceType {
		return "", apperr.Conflict("Idempotency-Key was already used for a different request")
	}
	return record.ResourceID, nil
}

// Save binds key to the created resource
func (s *Store) Save(tx *gorm.DB, userID uint, key, resourceType, resourceID string, now time.Time) error {
	record := types.IdempotencyRecord{
		IdempotencyKey: key,
		UserID:         userID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		ExpiresAt:      now.Add(s.ttl),
	}
	return tx.Create(&record).Error
}
