package outbox

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/types"
	"gorm.io/gorm"
)

// maxErrorLength bounds the last_error column
const maxErrorLength = 500

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Enqueue writes the event for a match change on the caller's transaction, so the event exists
// if and only if the change commits. Both listings of m must be loaded.
func (d *Database) Enqueue(tx *gorm.DB, m *types.Match, eventType types.MatchEventType, actorUUID string, at time.Time) (*types.MatchEvent, error) {
	payload := types.MatchEventPayload{
		EventID:    uuid.New().String(),
		Type:       eventType,
		MatchUUID:  m.UUID,
		Status:     m.Status,
		ActorUUID:  actorUUID,
		OccurredAt: at,
	}
	if m.InitiatorListing != nil {
		payload.InitiatorListingUUID = m.InitiatorListing.UUID
	}
	if m.MatchedListing != nil {
		payload.MatchedListingUUID = m.MatchedListing.UUID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &types.MatchEvent{
		EventID:   payload.EventID,
		MatchUUID: m.UUID,
		Type:      eventType,
		Payload:   string(body),
		CreatedAt: at,
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// FetchUnpublished returns up to limit unpublished events, oldest first
func (d *Database) FetchUnpublished(limit int) ([]types.MatchEvent, error) {
	var events []types.MatchEvent
	err := d.db.Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (d *Database) MarkPublished(id uint, at time.Time) error {
	return d.db.Model(&types.MatchEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", at).Error
}

// MarkFailed records a failed publish attempt; the event stays queued
func (d *Database) MarkFailed(id uint, cause error) error {
	return d.db.Model(&types.MatchEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(cause.Error(), maxErrorLength),
		}).Error
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Pending counts events not yet published
func (d *Database) Pending() (int64, error) {
	var n int64
	err := d.db.Model(&types.MatchEvent{}).Where("published_at IS NULL").Count(&n).Error
	return n, err
}
