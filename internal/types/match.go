package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ksred/fexp-api/pkg/apperr"
)

// MatchStatus is the lifecycle status of a match
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "PENDING"
	MatchStatusAccepted  MatchStatus = "ACCEPTED"
	MatchStatusRejected  MatchStatus = "REJECTED"
	MatchStatusCanceled  MatchStatus = "CANCELED"
	MatchStatusCompleted MatchStatus = "COMPLETED"
	MatchStatusDisputed  MatchStatus = "DISPUTED"
)

// MatchStatuses lists every match status in lifecycle order
var MatchStatuses = []MatchStatus{
	MatchStatusPending,
	MatchStatusAccepted,
	MatchStatusRejected,
	MatchStatusCanceled,
	MatchStatusCompleted,
	MatchStatusDisputed,
}

// LiveMatchStatuses are the statuses that bind both listings of a match
var LiveMatchStatuses = []MatchStatus{MatchStatusPending, MatchStatusAccepted}

// ParseMatchStatus resolves a status filter value
func ParseMatchStatus(s string) (MatchStatus, error) {
	for _, status := range MatchStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	names := make([]string, len(MatchStatuses))
	for i, status := range MatchStatuses {
		names[i] = string(status)
	}
	return "", apperr.Validation("Invalid match status filter", apperr.FieldIssue{
		Field:   "status",
		Message: "must be one of: " + strings.Join(names, ", "),
	})
}

// Live reports whether a match in this status holds its listings
func (s MatchStatus) Live() bool {
	return s == MatchStatusPending || s == MatchStatusAccepted
}

// Terminal reports whether no further transition can leave this status
func (s MatchStatus) Terminal() bool {
	switch s {
	case MatchStatusRejected, MatchStatusCanceled, MatchStatusCompleted:
		return true
	}
	return false
}

// MatchAction is an operation applied to a match
type MatchAction string

const (
	ActionAccept MatchAction = "accept"
	ActionReject MatchAction = "reject"
	ActionCancel MatchAction = "cancel"
	// ActionConfirm records one side's confirmation while the other side is outstanding
	ActionConfirm MatchAction = "confirm"
	// ActionComplete records the second confirmation
	ActionComplete MatchAction = "complete"
)

var actionVerbs = map[MatchAction]string{
	ActionAccept:   "accepted",
	ActionReject:   "rejected",
	ActionCancel:   "canceled",
	ActionConfirm:  "confirmed",
	ActionComplete: "confirmed",
}

// ListingShift is the listing status change that accompanies a match transition
type ListingShift struct {
	From ListingStatus
	To   ListingStatus
}

var (
	bindListings     = &ListingShift{From: ListingStatusActive, To: ListingStatusPending}
	releaseListings  = &ListingShift{From: ListingStatusPending, To: ListingStatusActive}
	completeListings = &ListingShift{From: ListingStatusPending, To: ListingStatusCompleted}
)

// Transition is one row of the match state machine
type Transition struct {
	From     MatchStatus
	Action   MatchAction
	To       MatchStatus
	Listings *ListingShift // nil when both listings keep their status
}

// matchTransitions is the complete state machine. Any (status, action) pair missing from it
// is rejected. DISPUTED has no outgoing transitions here; disputes are resolved out of band.
var matchTransitions = map[MatchStatus]map[MatchAction]Transition{
	MatchStatusPending: {
		ActionAccept: {From: MatchStatusPending, Action: ActionAccept, To: MatchStatusAccepted},
		ActionReject: {From: MatchStatusPending, Action: ActionReject, To: MatchStatusRejected, Listings: releaseListings},
		ActionCancel: {From: MatchStatusPending, Action: ActionCancel, To: MatchStatusCanceled, Listings: releaseListings},
	},
	MatchStatusAccepted: {
		ActionCancel:   {From: MatchStatusAccepted, Action: ActionCancel, To: MatchStatusCanceled, Listings: releaseListings},
		ActionConfirm:  {From: MatchStatusAccepted, Action: ActionConfirm, To: MatchStatusAccepted},
		ActionComplete: {From: MatchStatusAccepted, Action: ActionComplete, To: MatchStatusCompleted, Listings: completeListings},
	},
}

// ProposalShift is the listing change applied when a match is created
func ProposalShift() ListingShift {
	return *bindListings
}

// NextTransition looks up the transition for applying action to a match in status s.
// A missing entry is a conflict naming the current and the required statuses.
func (s MatchStatus) NextTransition(action MatchAction) (Transition, error) {
	if t, ok := matchTransitions[s][action]; ok {
		return t, nil
	}
	required := make([]string, 0, 2)
	for _, from := range MatchStatuses {
		if _, ok := matchTransitions[from][action]; ok {
			required = append(required, string(from))
		}
	}
	return Transition{}, apperr.Conflict(fmt.Sprintf(
		"Match cannot be %s. Current status: %s. Required status: %s.",
		actionVerbs[action], s, strings.Join(required, " or "),
	))
}

// Side identifies which party of a match a user acts for
type Side uint8

const (
	SideInitiator Side = 1
	SideRecipient Side = 2
)

// Confirmation is the two-bit completion state of a match: neither side, initiator only,
// recipient only, or both.
type Confirmation uint8

const (
	ConfirmationNone      Confirmation = 0
	ConfirmationInitiator Confirmation = Confirmation(SideInitiator)
	ConfirmationRecipient Confirmation = Confirmation(SideRecipient)
	ConfirmationBoth      Confirmation = ConfirmationInitiator | ConfirmationRecipient
)

// Has reports whether side has confirmed
func (c Confirmation) Has(side Side) bool {
	return c&Confirmation(side) != 0
}

// With returns the state after side confirms. Confirming twice is a conflict.
func (c Confirmation) With(side Side) (Confirmation, error) {
	if c.Has(side) {
		return c, apperr.Conflict("You have already confirmed completion for this match.")
	}
	return c | Confirmation(side), nil
}

// Complete reports whether both sides have confirmed
func (c Confirmation) Complete() bool {
	return c == ConfirmationBoth
}

// Action is the state machine action that records this confirmation state
func (c Confirmation) Action() MatchAction {
	if c.Complete() {
		return ActionComplete
	}
	return ActionConfirm
}

// Match pairs the initiator's listing with a counterpart listing owned by another user
type Match struct {
	ID                           uint        `gorm:"primaryKey" json:"-"`
	UUID                         string      `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	InitiatorID                  uint        `gorm:"index;not null" json:"-"`
	Initiator                    *User       `gorm:"foreignKey:InitiatorID" json:"initiator,omitempty"`
	InitiatorListingID           uint        `gorm:"index;not null" json:"-"`
	InitiatorListing             *Listing    `gorm:"foreignKey:InitiatorListingID" json:"initiator_listing,omitempty"`
	MatchedListingID             uint        `gorm:"index;not null" json:"-"`
	MatchedListing               *Listing    `gorm:"foreignKey:MatchedListingID" json:"matched_listing,omitempty"`
	Status                       MatchStatus `gorm:"size:16;index;not null" json:"status"`
	InitiatorConfirmedCompletion bool        `gorm:"not null;default:false" json:"initiator_confirmed_completion"`
	MatchedConfirmedCompletion   bool        `gorm:"not null;default:false" json:"matched_confirmed_completion"`
	CompletedAt                  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt                    time.Time   `json:"created_at"`
	UpdatedAt                    time.Time   `json:"updated_at"`
}

// Confirmation returns the two-bit completion state stored in the match flags
func (m *Match) Confirmation() Confirmation {
	c := ConfirmationNone
	if m.InitiatorConfirmedCompletion {
		c |= ConfirmationInitiator
	}
	if m.MatchedConfirmedCompletion {
		c |= ConfirmationRecipient
	}
	return c
}

// SetConfirmation writes c back into the match flags
func (m *Match) SetConfirmation(c Confirmation) {
	m.InitiatorConfirmedCompletion = c.Has(SideInitiator)
	m.MatchedConfirmedCompletion = c.Has(SideRecipient)
}

// SideOf resolves which side userID acts for, by listing ownership. Listings must be loaded.
func (m *Match) SideOf(userID uint) (Side, bool) {
	switch {
	case m.InitiatorListing != nil && m.InitiatorListing.UserID == userID:
		return SideInitiator, true
	case m.MatchedListing != nil && m.MatchedListing.UserID == userID:
		return SideRecipient, true
	}
	return 0, false
}

// ListingIDs returns the ids of both listings in ascending order
func (m *Match) ListingIDs() []uint {
	if m.InitiatorListingID < m.MatchedListingID {
		return []uint{m.InitiatorListingID, m.MatchedListingID}
	}
	return []uint{m.MatchedListingID, m.InitiatorListingID}
}
