package match

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/idempotency"
	"github.com/ksred/fexp-api/internal/listing"
	"github.com/ksred/fexp-api/internal/outbox"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/validation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Coordinator owns the match state machine. Every operation reads, checks and writes the match,
// both listings and the outbox event inside one transaction; the listing rows and the match row
// are locked before any pre-condition is checked.
type Coordinator struct {
	tx          *database.Transactor
	matches     *Database
	listings    *listing.Database
	events      *outbox.Database
	idempotency *idempotency.Store
	now         func() time.Time
}

func NewCoordinator(tx *database.Transactor, listings *listing.Database, idem *idempotency.Store) *Coordinator {
	return &Coordinator{
		tx:          tx,
		matches:     NewDatabase(tx.DB()),
		listings:    listings,
		events:      outbox.NewDatabase(tx.DB()),
		idempotency: idem,
		now:         database.Now,
	}
}

const resourceType = "match"

// SetClock overrides the time source
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// ProposeInput names the caller's own listing and the counterpart listing. IdempotencyKey comes
// from the Idempotency-Key header.
type ProposeInput struct {
	InitiatorListingUUID string `json:"initiator_listing_uuid" validate:"required,uuid"`
	MatchedListingUUID   string `json:"matched_listing_uuid" validate:"required,uuid"`
	IdempotencyKey       string `json:"-" validate:"max=128"`
}

// Propose creates a PENDING match between the caller's listing and another user's compatible
// listing, binding both listings. Repeating a request with the same idempotency key returns
// the match it created.
func (c *Coordinator) Propose(ctx context.Context, caller types.Identity, in ProposeInput) (*types.Match, error) {
	logger := log.With().
		Str("operation", "propose_match").
		Str("user_uuid", caller.UserUUID).
		Str("initiator_listing_uuid", in.InitiatorListingUUID).
		Str("matched_listing_uuid", in.MatchedListingUUID).
		Logger()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.InitiatorListingUUID == in.MatchedListingUUID {
		return nil, apperr.Validation("Cannot propose a match between a listing and itself.", apperr.FieldIssue{
			Field:   "matched_listing_uuid",
			Message: "must differ from initiator_listing_uuid",
		})
	}

	var proposed *types.Match
	err := c.tx.Do(ctx, func(tx *gorm.DB) error {
		now := c.now()

		if in.IdempotencyKey != "" {
			existingUUID, err := c.idempotency.Lookup(tx, caller.UserID, in.IdempotencyKey, resourceType, now)
			if err != nil {
				return err
			}
			if existingUUID != "" {
				proposed, err = NewDatabase(tx).GetByUUIDWithDetails(existingUUID)
				if err != nil {
					return err
				}
				if proposed == nil {
					return apperr.NotFound("Match not found.")
				}
				if !proposes(proposed, in) {
					return apperr.Conflict("Idempotency-Key was already used for a different request")
				}
				logger.Info().Str("match_uuid", proposed.UUID).Msg("returning match for repeated idempotency key")
				return nil
			}
		}

		locked, err := c.listings.LockByUUIDs(tx, in.InitiatorListingUUID, in.MatchedListingUUID)
		if err != nil {
			return err
		}
		initiator, matched := locked[in.InitiatorListingUUID], locked[in.MatchedListingUUID]
		logger.Debug().Int("locked_listings", len(locked)).Msg("listings locked")

		if err := checkProposal(caller, initiator, matched, now); err != nil {
			return err
		}

		live, err := c.matches.FindLive(tx, initiator.ID, matched.ID)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return apperr.Conflict("A pending or accepted match already exists for these listings.")
		}

		m := &types.Match{
			UUID:               uuid.New().String(),
			InitiatorID:        caller.UserID,
			InitiatorListingID: initiator.ID,
			MatchedListingID:   matched.ID,
			Status:             types.MatchStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := c.matches.Create(tx, m); err != nil {
			return err
		}
		if err := c.listings.TransitionStatus(tx, types.ProposalShift(), m.ListingIDs()...); err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			if err := c.idempotency.Save(tx, caller.UserID, in.IdempotencyKey, resourceType, m.UUID, now); err != nil {
				return err
			}
		}

		proposed, err = c.finish(tx, m, types.EventMatchProposed, caller, now)
		return err
	})
	if err != nil {
		logFailure(logger, err, "failed to propose match")
		return nil, err
	}

	logger.Info().Str("match_uuid", proposed.UUID).Msg("match proposed")
	return proposed, nil
}

// proposes reports whether m was created from a request naming the same two listings as in
func proposes(m *types.Match, in ProposeInput) bool {
	return m.InitiatorListing != nil && m.MatchedListing != nil &&
		m.InitiatorListing.UUID == in.InitiatorListingUUID &&
		m.MatchedListing.UUID == in.MatchedListingUUID
}

// checkProposal enforces ownership, availability and compatibility of the two listings.
// Ownership is checked before status.
func checkProposal(caller types.Identity, initiator, matched *types.Listing, now time.Time) error {
	if initiator == nil {
		return apperr.NotFound("Initiator listing not found.")
	}
	if initiator.UserID != caller.UserID {
		return apperr.Forbidden("Initiator listing is not owned by you.")
	}
	if matched == nil {
		return apperr.NotFound("Matched listing not found.")
	}
	if matched.UserID == caller.UserID {
		return apperr.Validation("Cannot propose a match to your own listing.")
	}
	if !initiator.Matchable(now) {
		return apperr.Conflict("Initiator listing is not active or has expired.")
	}
	if !matched.Matchable(now) {
		return apperr.Conflict("Matched listing is not active or has expired.")
	}
	if !types.SameCorridor(initiator, matched) {
		return apperr.Validation("Listings are not in the same remittance corridor (residence and origin countries must match).")
	}
	if initiator.Type == matched.Type || !types.SamePair(initiator, matched) {
		return apperr.Validation("Listings do not have opposite types for the same currency pair.")
	}
	return nil
}

// Accept moves a PENDING match to ACCEPTED. Only the owner of the matched listing may accept.
func (c *Coordinator) Accept(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error) {
	return c.transition(ctx, caller, matchUUID, "accept_match", func(m *types.Match, side types.Side, ok bool) (types.MatchAction, types.Confirmation, error) {
		return recipientOnly(m, side, ok, types.ActionAccept, "Not authorized to accept this match.")
	})
}

// Reject moves a PENDING match to REJECTED and releases both listings. Only the owner of the
// matched listing may reject.
func (c *Coordinator) Reject(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error) {
	return c.transition(ctx, caller, matchUUID, "reject_match", func(m *types.Match, side types.Side, ok bool) (types.MatchAction, types.Confirmation, error) {
		return recipientOnly(m, side, ok, types.ActionReject, "Not authorized to reject this match.")
	})
}

// recipientOnly authorizes an action reserved for the matched listing's owner. Outsiders are
// refused outright; a participant acting on a match in the wrong status gets the status
// conflict, and only then is the initiator refused.
func recipientOnly(m *types.Match, side types.Side, ok bool, action types.MatchAction, denied string) (types.MatchAction, types.Confirmation, error) {
	if !ok {
		return "", 0, apperr.Forbidden(denied)
	}
	if _, err := m.Status.NextTransition(action); err != nil {
		return "", 0, err
	}
	if side != types.SideRecipient {
		return "", 0, apperr.Forbidden(denied)
	}
	return action, m.Confirmation(), nil
}

// Cancel moves a PENDING or ACCEPTED match to CANCELED and releases both listings. Either
// participant may cancel.
func (c *Coordinator) Cancel(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error) {
	return c.transition(ctx, caller, matchUUID, "cancel_match", func(m *types.Match, _ types.Side, ok bool) (types.MatchAction, types.Confirmation, error) {
		if !ok {
			return "", 0, apperr.Forbidden("Not authorized to cancel this match.")
		}
		return types.ActionCancel, m.Confirmation(), nil
	})
}

// ConfirmCompletion records the caller's side as done. The second distinct confirmation
// completes the match and both listings.
func (c *Coordinator) ConfirmCompletion(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error) {
	return c.transition(ctx, caller, matchUUID, "confirm_completion", func(m *types.Match, side types.Side, ok bool) (types.MatchAction, types.Confirmation, error) {
		if !ok {
			return "", 0, apperr.Forbidden("Not authorized to confirm completion of this match.")
		}
		if _, err := m.Status.NextTransition(types.ActionConfirm); err != nil {
			return "", 0, err
		}
		next, err := m.Confirmation().With(side)
		if err != nil {
			return "", 0, err
		}
		return next.Action(), next, nil
	})
}

// decision authorizes the caller for a match and picks the action and resulting confirmation
// state. ok is false when the caller owns neither listing.
type decision func(m *types.Match, side types.Side, ok bool) (types.MatchAction, types.Confirmation, error)

func (c *Coordinator) transition(ctx context.Context, caller types.Identity, matchUUID, operation string, decide decision) (*types.Match, error) {
	logger := log.With().
		Str("operation", operation).
		Str("user_uuid", caller.UserUUID).
		Str("match_uuid", matchUUID).
		Logger()

	if _, err := uuid.Parse(matchUUID); err != nil {
		return nil, apperr.Validation("Invalid match id", apperr.FieldIssue{Field: "uuid", Message: "must be a valid UUID"})
	}

	var updated *types.Match
	err := c.tx.Do(ctx, func(tx *gorm.DB) error {
		now := c.now()

		m, err := c.matches.LockByUUID(tx, matchUUID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound("Match not found.")
		}

		locked, err := c.listings.LockByIDs(tx, m.ListingIDs()...)
		if err != nil {
			return err
		}
		m.InitiatorListing, m.MatchedListing = locked[m.InitiatorListingID], locked[m.MatchedListingID]
		if m.InitiatorListing == nil || m.MatchedListing == nil {
			return apperr.Unexpected("Match references a missing listing", nil)
		}

		side, ok := m.SideOf(caller.UserID)
		action, confirmation, err := decide(m, side, ok)
		if err != nil {
			return err
		}

		t, err := m.Status.NextTransition(action)
		if err != nil {
			return err
		}

		prevStatus, prevConfirmation := m.Status, m.Confirmation()
		m.Status = t.To
		m.SetConfirmation(confirmation)
		m.UpdatedAt = now
		if t.To == types.MatchStatusCompleted {
			m.CompletedAt = &now
		}
		if err := c.matches.Update(tx, m, prevStatus, prevConfirmation); err != nil {
			return err
		}

		if t.Listings != nil {
			if err := c.listings.TransitionStatus(tx, *t.Listings, m.ListingIDs()...); err != nil {
				return err
			}
		}

		updated, err = c.finish(tx, m, types.EventTypeFor(action), caller, now)
		return err
	})
	if err != nil {
		logFailure(logger, err, "match transition failed")
		return nil, err
	}

	logger.Info().
		Str("status", string(updated.Status)).
		Bool("initiator_confirmed", updated.InitiatorConfirmedCompletion).
		Bool("matched_confirmed", updated.MatchedConfirmedCompletion).
		Msg("match updated")
	return updated, nil
}

// finish reloads the match with its participants and queues the lifecycle event
func (c *Coordinator) finish(tx *gorm.DB, m *types.Match, eventType types.MatchEventType, caller types.Identity, now time.Time) (*types.Match, error) {
	detailed, err := c.matches.GetWithDetails(tx, m.ID)
	if err != nil {
		return nil, err
	}
	if detailed == nil {
		return nil, apperr.Unexpected("Match vanished inside its transaction", nil)
	}

	if _, err := c.events.Enqueue(tx, detailed, eventType, caller.UserUUID, now); err != nil {
		return nil, err
	}
	return detailed, nil
}

// Expected rejections are logged below error level
func logFailure(logger zerolog.Logger, err error, msg string) {
	if apperr.KindOf(err) == apperr.KindUnexpected {
		logger.Error().Err(err).Msg(msg)
		return
	}
	logger.Warn().Err(err).Str("kind", apperr.KindOf(err).String()).Msg(msg)
}
