package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingType is the direction of an exchange offer
type ListingType string

const (
	ListingTypeBuy  ListingType = "BUY"
	ListingTypeSell ListingType = "SELL"
)

// Opposite returns the counter direction
func (t ListingType) Opposite() ListingType {
	if t == ListingTypeBuy {
		return ListingTypeSell
	}
	return ListingTypeBuy
}

func (t ListingType) Valid() bool {
	return t == ListingTypeBuy || t == ListingTypeSell
}

// ListingStatus is the lifecycle status of a listing
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "ACTIVE"
	ListingStatusPending   ListingStatus = "PENDING"
	ListingStatusCompleted ListingStatus = "COMPLETED"
	ListingStatusCanceled  ListingStatus = "CANCELED"
)

// Listings stop being matchable one calendar month after creation
const listingLifetimeMonths = 1

// Listing is an offer to exchange CurrencyFrom for CurrencyTo
type Listing struct {
	ID            uint                `gorm:"primaryKey" json:"-"`
	UUID          string              `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	UserID        uint                `gorm:"index;not null" json:"-"`
	User          *User               `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type          ListingType         `gorm:"size:4;not null" json:"type"`
	CurrencyFrom  string              `gorm:"size:3;not null;index:idx_listings_pair" json:"currency_from"`
	CurrencyTo    string              `gorm:"size:3;not null;index:idx_listings_pair" json:"currency_to"`
	AmountFrom    decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"amount_from"`
	AmountTo      decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"amount_to"`
	ExchangeRate  decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"exchange_rate"`
	PaymentMethod string              `gorm:"not null" json:"payment_method"`
	Location      string              `gorm:"index;not null" json:"location"`
	Description   string              `json:"description,omitempty"`
	Status        ListingStatus       `gorm:"size:16;index;not null" json:"status"`
	ExpiresAt     time.Time           `gorm:"index;not null" json:"expires_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ExpiryFor returns the expiry of a listing created at createdAt
func ExpiryFor(createdAt time.Time) time.Time {
	return createdAt.AddDate(0, listingLifetimeMonths, 0)
}

// Expired reports whether the listing can no longer be matched at now
func (l *Listing) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Matchable reports whether the listing is ACTIVE and unexpired
func (l *Listing) Matchable(now time.Time) bool {
	return l.Status == ListingStatusActive && !l.Expired(now)
}

// SamePair reports whether two listings trade the same currency pair, in either orientation:
// the same pair from opposite sides (USD->EUR vs USD->EUR) or the reversed pair the matching
// engine surfaces (USD->EUR vs EUR->USD).
func SamePair(a, b *Listing) bool {
	sameOrientation := a.CurrencyFrom == b.CurrencyFrom && a.CurrencyTo == b.CurrencyTo
	reversed := a.CurrencyFrom == b.CurrencyTo && a.CurrencyTo == b.CurrencyFrom
	return sameOrientation || reversed
}

// SameCorridor reports whether the owners of two listings share both country of origin and
// country of residence. Owners must be loaded.
func SameCorridor(a, b *Listing) bool {
	if a.User == nil || b.User == nil {
		return false
	}
	return a.User.CountryOfOrigin == b.User.CountryOfOrigin &&
		a.User.CountryOfResidence == b.User.CountryOfResidence
}
