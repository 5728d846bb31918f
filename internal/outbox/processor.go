package outbox

import (
	"context"
	"time"

	"github.com/ksred/fexp-api/internal/database"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Processor relays committed match events to the publisher
type Processor struct {
	db           *Database
	publisher    Publisher
	processDelay time.Duration // Time between relay passes
	batchSize    int
	now          func() time.Time
}

func NewProcessor(db *gorm.DB, publisher Publisher, interval time.Duration, batchSize int) *Processor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Processor{
		db:           NewDatabase(db),
		publisher:    publisher,
		processDelay: interval,
		batchSize:    batchSize,
		now:          database.Now,
	}
}

// Start begins the relay loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "outbox_processor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting outbox processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process pending match events")
			}
		}
	}
}

// ProcessPending publishes one batch of unpublished events in order and returns how many were
// published. A failed event is recorded and retried on a later pass; events after it in the
// batch are held back so a match's events are never delivered out of order.
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "outbox_processor").Logger()

	events, err := p.db.FetchUnpublished(p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	logger.Debug().Int("pending_count", len(events)).Msg("processing pending match events")

	published := 0
	for _, event := range events {
		if err := p.publisher.Publish(ctx, event); err != nil {
			logger.Warn().
				Err(err).
				Str("event_id", event.EventID).
				Int("attempts", event.Attempts+1).
				Msg("failed to publish match event")
			if markErr := p.db.MarkFailed(event.ID, err); markErr != nil {
				return published, markErr
			}
			return published, nil
		}

		if err := p.db.MarkPublished(event.ID, p.now()); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Msg("failed to mark match event published")
			return published, err
		}
		published++
	}

	return published, nil
}
