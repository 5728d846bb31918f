// Package testutil provides a migrated SQLite store and seed helpers for package tests
package testutil

import (
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Now is a fixed clock for tests
var Now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var userSeq atomic.Int64

// NewTestDB opens a migrated SQLite database in a file under t.TempDir. A real file is used
// rather than :memory: so concurrent transactions share one database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.NewDatabase(database.Config{
		Driver:       database.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "fexp_test.db"),
		MaxOpenConns: 4,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewTransactor wraps db with short timeouts
func NewTransactor(db *gorm.DB) *database.Transactor {
	return database.NewTransactor(db, 10*time.Second, 2*time.Second)
}

// CreateUser seeds a user living in residence who comes from origin
func CreateUser(t *testing.T, db *gorm.DB, origin, residence string) *types.User {
	t.Helper()

	n := userSeq.Add(1)
	user := &types.User{
		UUID:               uuid.New().String(),
		Email:              "user" + uuid.New().String()[:8] + "@example.com",
		Name:               "User " + strconv.FormatInt(n, 10),
		CountryOfOrigin:    origin,
		CountryOfResidence: residence,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Identity returns the caller identity a token for user would carry
func Identity(user *types.User) types.Identity {
	return types.Identity{
		UserID:             user.ID,
		UserUUID:           user.UUID,
		CountryOfResidence: user.CountryOfResidence,
	}
}

// ListingOption adjusts a seeded listing
type ListingOption func(*types.Listing)

func WithStatus(status types.ListingStatus) ListingOption {
	return func(l *types.Listing) { l.Status = status }
}

func WithExpiresAt(at time.Time) ListingOption {
	return func(l *types.Listing) { l.ExpiresAt = at }
}

func WithCreatedAt(at time.Time) ListingOption {
	return func(l *types.Listing) {
		l.CreatedAt = at
		l.UpdatedAt = at
	}
}

func WithAmountFrom(amount int64) ListingOption {
	return func(l *types.Listing) { l.AmountFrom = decimal.NewFromInt(amount) }
}

// CreateListing seeds an ACTIVE listing owned by user, created at Now
func CreateListing(t *testing.T, db *gorm.DB, user *types.User, listingType types.ListingType, from, to string, opts ...ListingOption) *types.Listing {
	t.Helper()

	l := &types.Listing{
		UUID:          uuid.New().String(),
		UserID:        user.ID,
		Type:          listingType,
		CurrencyFrom:  from,
		CurrencyTo:    to,
		AmountFrom:    decimal.NewFromInt(100),
		AmountTo:      decimal.NewFromInt(90),
		PaymentMethod: "bank_transfer",
		Location:      user.CountryOfResidence,
		Status:        types.ListingStatusActive,
		ExpiresAt:     types.ExpiryFor(Now),
		CreatedAt:     Now,
		UpdatedAt:     Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	require.NoError(t, db.Omit("User").Create(l).Error)
	l.User = user
	return l
}

// ListingStatus reads the stored status of a listing
func ListingStatus(t *testing.T, db *gorm.DB, listingID uint) types.ListingStatus {
	t.Helper()

	var l types.Listing
	require.NoError(t, db.Select("status").First(&l, listingID).Error)
	return l.Status
}
