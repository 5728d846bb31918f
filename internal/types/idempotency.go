package types

import "time"

// IdempotencyRecord maps a caller supplied Idempotency-Key to the resource it created
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey"`
	IdempotencyKey string    `gorm:"uniqueIndex:ux_idempotency_user_key,priority:2;not null" json:"idempotency_key"`
	UserID         uint      `gorm:"uniqueIndex:ux_idempotency_user_key,priority:1;not null" json:"-"`
	ResourceType   string    `gorm:"not null" json:"resource_type"`
	ResourceID     string    `gorm:"not null" json:"resource_id"`
	ExpiresAt      time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
