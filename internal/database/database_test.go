package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/testutil"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countUsers(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&types.User{}).Count(&n).Error)
	return n
}

func newUser() *types.User {
	return &types.User{UUID: uuid.New().String(), Email: uuid.New().String() + "@example.com", Name: "tx"}
}

func TestTransactor_Commit(t *testing.T) {
	db := testutil.NewTestDB(t)

	err := testutil.NewTransactor(db).Do(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(newUser()).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countUsers(t, db))
}

func TestTransactor_RollbackOnError(t *testing.T) {
	db := testutil.NewTestDB(t)

	err := testutil.NewTransactor(db).Do(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(newUser()).Error)
		return apperr.Conflict("Listing is not active")
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Zero(t, countUsers(t, db))
}

func TestTransactor_RollbackOnPanic(t *testing.T) {
	db := testutil.NewTestDB(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = testutil.NewTransactor(db).Do(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(newUser()).Error)
			panic("boom")
		})
	})
	assert.Zero(t, countUsers(t, db))

	// The connection is usable afterwards
	require.NoError(t, db.Create(newUser()).Error)
}

func TestTransactor_TimeoutIsRetryable(t *testing.T) {
	db := testutil.NewTestDB(t)
	tx := database.NewTransactor(db, 20*time.Millisecond, 0)

	err := tx.Do(context.Background(), func(tx *gorm.DB) error {
		<-tx.Statement.Context.Done()
		return tx.Statement.Context.Err()
	})
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable)
}

func TestLiveMatchIndexes(t *testing.T) {
	db := testutil.NewTestDB(t)
	a := testutil.CreateUser(t, db, "Cameroon", "USA")
	b := testutil.CreateUser(t, db, "Cameroon", "USA")
	la := testutil.CreateListing(t, db, a, types.ListingTypeSell, "USD", "EUR")
	lb := testutil.CreateListing(t, db, b, types.ListingTypeBuy, "EUR", "USD")
	lb2 := testutil.CreateListing(t, db, b, types.ListingTypeBuy, "EUR", "USD")

	insert := func(matched *types.Listing, status types.MatchStatus) error {
		return db.Omit("Initiator", "InitiatorListing", "MatchedListing").Create(&types.Match{
			UUID:               uuid.New().String(),
			InitiatorID:        a.ID,
			InitiatorListingID: la.ID,
			MatchedListingID:   matched.ID,
			Status:             status,
		}).Error
	}

	require.NoError(t, insert(lb, types.MatchStatusRejected))
	require.NoError(t, insert(lb, types.MatchStatusPending))

	// The initiator listing already sits in a live match
	err := insert(lb2, types.MatchStatusAccepted)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	classified := database.Classify(err)
	assert.True(t, apperr.Is(classified, apperr.KindConflict))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      apperr.Kind
		retryable bool
	}{
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, apperr.KindConflict, true},
		{"sqlite locked", fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), apperr.KindConflict, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, apperr.KindConflict, true},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, apperr.KindConflict, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, apperr.KindConflict, true},
		{"deadline", context.DeadlineExceeded, apperr.KindConflict, true},
		{"not found", gorm.ErrRecordNotFound, apperr.KindNotFound, false},
		{"typed passes through", apperr.Forbidden("no"), apperr.KindAuthorization, false},
		{"other", errors.New("disk I/O error"), apperr.KindUnexpected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := database.Classify(tt.err)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.kind, appErr.Kind)
			assert.Equal(t, tt.retryable, appErr.Retryable)
		})
	}

	assert.NoError(t, database.Classify(nil))
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := database.NewDatabase(database.Config{Driver: "mysql"})
	assert.Error(t, err)
}
