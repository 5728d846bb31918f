package types

import "time"

// MatchEventType names a lifecycle event published for downstream consumers
type MatchEventType string

const (
	EventMatchProposed  MatchEventType = "match.proposed"
	EventMatchAccepted  MatchEventType = "match.accepted"
	EventMatchRejected  MatchEventType = "match.rejected"
	EventMatchCanceled  MatchEventType = "match.canceled"
	EventMatchConfirmed MatchEventType = "match.confirmed"
	EventMatchCompleted MatchEventType = "match.completed"
)

// EventTypeFor maps a state machine action to the event it emits
func EventTypeFor(action MatchAction) MatchEventType {
	switch action {
	case ActionAccept:
		return EventMatchAccepted
	case ActionReject:
		return EventMatchRejected
	case ActionCancel:
		return EventMatchCanceled
	case ActionConfirm:
		return EventMatchConfirmed
	case ActionComplete:
		return EventMatchCompleted
	}
	return EventMatchProposed
}

// MatchEvent is an outbox row written in the same transaction as the match change
type MatchEvent struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	EventID     string         `gorm:"uniqueIndex;size:36;not null" json:"event_id"`
	MatchUUID   string         `gorm:"index;size:36;not null" json:"match_uuid"`
	Type        MatchEventType `gorm:"size:32;not null" json:"type"`
	Payload     string         `gorm:"not null" json:"payload"` // JSON encoded MatchEventPayload
	PublishedAt *time.Time     `gorm:"index" json:"published_at,omitempty"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MatchEventPayload is the message body consumers receive
type MatchEventPayload struct {
	EventID              string         `json:"event_id"`
	Type                 MatchEventType `json:"type"`
	MatchUUID            string         `json:"match_uuid"`
	Status               MatchStatus    `json:"status"`
	ActorUUID            string         `json:"actor_uuid"`
	InitiatorListingUUID string         `json:"initiator_listing_uuid"`
	MatchedListingUUID   string         `json:"matched_listing_uuid"`
	OccurredAt           time.Time      `json:"occurred_at"`
}
