package migrations

import "gorm.io/gorm"

// AddLiveMatchIndexes adds the query indexes for matching and match listing, and partial unique
// indexes that keep a listing from sitting on the same side of two live matches.
func AddLiveMatchIndexes(db *gorm.DB) error {
	// Partial indexes are supported by both SQLite and Postgres
	indexes := []string{
		// Matching filter: status, expiry and pair of candidate listings
		`CREATE INDEX IF NOT EXISTS idx_listings_matching
		 ON listings(status, type, currency_from, currency_to, expires_at)`,

		// Caller's own active listings
		`CREATE INDEX IF NOT EXISTS idx_listings_user_status
		 ON listings(user_id, status)`,

		// At most one live match per initiator listing
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_matches_live_initiator_listing
		 ON matches(initiator_listing_id)
		 WHERE status IN ('PENDING', 'ACCEPTED')`,

		// At most one live match per matched listing
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_matches_live_matched_listing
		 ON matches(matched_listing_id)
		 WHERE status IN ('PENDING', 'ACCEPTED')`,

		// "My matches" ordering
		`CREATE INDEX IF NOT EXISTS idx_matches_created_at
		 ON matches(created_at)`,

		// Outbox relay scan
		`CREATE INDEX IF NOT EXISTS idx_match_events_unpublished
		 ON match_events(published_at, id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
