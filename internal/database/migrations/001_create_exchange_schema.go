package migrations

import (
	"github.com/ksred/fexp-api/internal/types"
	"gorm.io/gorm"
)

// CreateExchangeSchema creates the users, listings, matches, idempotency and outbox tables
func CreateExchangeSchema(db *gorm.DB) error {
	// Order matters: listings reference users, matches reference listings and users
	return db.AutoMigrate(
		&types.User{},
		&types.Listing{},
		&types.Match{},
		&types.IdempotencyRecord{},
		&types.MatchEvent{},
	)
}
