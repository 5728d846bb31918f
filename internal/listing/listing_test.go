package listing

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/fexp-api/internal/idempotency"
	"github.com/ksred/fexp-api/internal/testutil"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	svc := NewService(testutil.NewTransactor(db), idempotency.NewStore(idempotency.DefaultTTL))
	svc.SetClock(func() time.Time { return testutil.Now })
	return svc, db
}

func validInput() CreateListingInput {
	return CreateListingInput{
		Type:          "sell",
		CurrencyFrom:  "usd",
		CurrencyTo:    "eur",
		AmountFrom:    decimal.NewFromInt(500),
		AmountTo:      decimal.NewFromInt(460),
		PaymentMethod: "bank_transfer",
		Description:   "  weekend transfer ",
	}
}

func TestCreateListing_Success(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")

	listing, err := svc.CreateListing(context.Background(), testutil.Identity(user), validInput(), "")
	require.NoError(t, err)

	assert.Len(t, listing.UUID, 36)
	assert.Equal(t, types.ListingTypeSell, listing.Type)
	assert.Equal(t, "USD", listing.CurrencyFrom)
	assert.Equal(t, "EUR", listing.CurrencyTo)
	assert.Equal(t, "USA", listing.Location, "location comes from the caller's residence")
	assert.Equal(t, "weekend transfer", listing.Description)
	assert.Equal(t, types.ListingStatusActive, listing.Status)
	assert.Equal(t, types.ExpiryFor(testutil.Now), listing.ExpiresAt)

	stored, err := svc.Store().GetByUUID(db, listing.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.AmountFrom.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, user.ID, stored.UserID)
}

func TestCreateListing_ValidationErrors(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")

	tests := []struct {
		name   string
		mutate func(in *CreateListingInput)
		field  string
	}{
		{"short currency", func(in *CreateListingInput) { in.CurrencyFrom = "US" }, "currency_from"},
		{"zero amount", func(in *CreateListingInput) { in.AmountTo = decimal.Zero }, "amount_to"},
		{"negative amount", func(in *CreateListingInput) { in.AmountFrom = decimal.NewFromInt(-5) }, "amount_from"},
		{"unknown type", func(in *CreateListingInput) { in.Type = "HOLD" }, "type"},
		{"missing payment method", func(in *CreateListingInput) { in.PaymentMethod = " " }, "payment_method"},
		{"same currencies", func(in *CreateListingInput) { in.CurrencyTo = "USD" }, "currency_to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := svc.CreateListing(context.Background(), testutil.Identity(user), in, "")
			require.Error(t, err)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)

			fields := make([]string, 0, len(appErr.Issues))
			for _, issue := range appErr.Issues {
				fields = append(fields, issue.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	var count int64
	require.NoError(t, db.Model(&types.Listing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateListing_RequiresResidence(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")

	caller := testutil.Identity(user)
	caller.CountryOfResidence = ""

	_, err := svc.CreateListing(context.Background(), caller, validInput(), "")
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestCreateListing_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")
	other := testutil.CreateUser(t, db, "Cameroon", "USA")
	ctx := context.Background()

	first, err := svc.CreateListing(ctx, testutil.Identity(user), validInput(), "key-1")
	require.NoError(t, err)

	second, err := svc.CreateListing(ctx, testutil.Identity(user), validInput(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)

	// Keys are scoped per user
	third, err := svc.CreateListing(ctx, testutil.Identity(other), validInput(), "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.UUID, third.UUID)

	var count int64
	require.NoError(t, db.Model(&types.Listing{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateListing_IdempotencyKeyExpires(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")
	ctx := context.Background()

	first, err := svc.CreateListing(ctx, testutil.Identity(user), validInput(), "key-1")
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return testutil.Now.Add(idempotency.DefaultTTL + time.Minute) })
	second, err := svc.CreateListing(ctx, testutil.Identity(user), validInput(), "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.UUID, second.UUID)
}

func TestGetListing(t *testing.T) {
	svc, db := newTestService(t)
	owner := testutil.CreateUser(t, db, "Cameroon", "USA")
	viewer := testutil.CreateUser(t, db, "Cameroon", "USA")
	abroad := testutil.CreateUser(t, db, "Cameroon", "France")

	active := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR")
	pending := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR", testutil.WithStatus(types.ListingStatusPending))
	expired := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR", testutil.WithExpiresAt(testutil.Now.Add(-time.Hour)))

	t.Run("visible", func(t *testing.T) {
		l, err := svc.GetListing(testutil.Identity(viewer), active.UUID)
		require.NoError(t, err)
		assert.Equal(t, active.UUID, l.UUID)
		require.NotNil(t, l.User)
		assert.Equal(t, owner.UUID, l.User.UUID)
	})

	t.Run("other country", func(t *testing.T) {
		_, err := svc.GetListing(testutil.Identity(abroad), active.UUID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("not active", func(t *testing.T) {
		_, err := svc.GetListing(testutil.Identity(viewer), pending.UUID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("expired", func(t *testing.T) {
		_, err := svc.GetListing(testutil.Identity(viewer), expired.UUID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("malformed id", func(t *testing.T) {
		_, err := svc.GetListing(testutil.Identity(viewer), "not-a-uuid")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestTransitionStatus_Conditional(t *testing.T) {
	svc, db := newTestService(t)
	owner := testutil.CreateUser(t, db, "Cameroon", "USA")
	a := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR")
	b := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR", testutil.WithStatus(types.ListingStatusPending))

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Store().TransitionStatus(tx, types.ProposalShift(), a.ID, b.ID)
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// The partial update rolled back with the transaction
	assert.Equal(t, types.ListingStatusActive, testutil.ListingStatus(t, db, a.ID))
}

func TestLockByUUIDs_LoadsOwners(t *testing.T) {
	svc, db := newTestService(t)
	owner := testutil.CreateUser(t, db, "Cameroon", "USA")
	a := testutil.CreateListing(t, db, owner, types.ListingTypeSell, "USD", "EUR")

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := svc.Store().LockByUUIDs(tx, a.UUID, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		require.Len(t, locked, 1)
		require.NotNil(t, locked[a.UUID].User)
		assert.Equal(t, "Cameroon", locked[a.UUID].User.CountryOfOrigin)
		return nil
	})
	require.NoError(t, err)
}
