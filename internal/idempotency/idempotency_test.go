package idempotency

import (
	"testing"
	"time"

	"github.com/ksred/fexp-api/internal/testutil"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LookupAndSave(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")
	other := testutil.CreateUser(t, db, "Cameroon", "USA")
	store := NewStore(time.Hour)

	id, err := store.Lookup(db, user.ID, "key-1", "listing", testutil.Now)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.Save(db, user.ID, "key-1", "listing", "listing-uuid", testutil.Now))

	id, err = store.Lookup(db, user.ID, "key-1", "listing", testutil.Now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "listing-uuid", id)

	// Keys are per user
	id, err = store.Lookup(db, other.ID, "key-1", "listing", testutil.Now)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStore_DifferentResourceType(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")
	store := NewStore(time.Hour)

	require.NoError(t, store.Save(db, user.ID, "key-1", "listing", "listing-uuid", testutil.Now))

	_, err := store.Lookup(db, user.ID, "key-1", "match", testutil.Now)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestStore_ExpiredKeyIsReusable(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "Cameroon", "USA")
	store := NewStore(time.Hour)

	require.NoError(t, store.Save(db, user.ID, "key-1", "listing", "first", testutil.Now))

	later := testutil.Now.Add(2 * time.Hour)
	id, err := store.Lookup(db, user.ID, "key-1", "listing", later)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.Save(db, user.ID, "key-1", "listing", "second", later))
	id, err = store.Lookup(db, user.ID, "key-1", "listing", later)
	require.NoError(t, err)
	assert.Equal(t, "second", id)
}

func TestNewStore_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewStore(0).ttl)
}
