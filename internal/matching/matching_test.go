package matching

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/fexp-api/internal/listing"
	"github.com/ksred/fexp-api/internal/testutil"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	engine := NewEngine(db, listing.NewDatabase(db))
	engine.SetClock(func() time.Time { return testutil.Now })
	return engine, db
}

func uuidsOf(listings []types.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.UUID)
	}
	return out
}

func TestFindCandidates_NoActiveListings(t *testing.T) {
	engine, db := newTestEngine(t)
	caller := testutil.CreateUser(t, db, "Cameroon", "USA")
	other := testutil.CreateUser(t, db, "Cameroon", "USA")
	testutil.CreateListing(t, db, other, types.ListingTypeBuy, "EUR", "USD")
	// Only a pending listing of the caller's own
	testutil.CreateListing(t, db, caller, types.ListingTypeSell, "USD", "EUR", testutil.WithStatus(types.ListingStatusPending))

	page, err := engine.FindCandidates(context.Background(), testutil.Identity(caller), DefaultCandidateQuery())
	require.NoError(t, err)
	assert.Empty(t, page.Listings)
	assert.NotNil(t, page.Listings)
	assert.Equal(t, int64(0), page.Pagination.Total)
}

func TestFindCandidates_ComplementaryFilter(t *testing.T) {
	engine, db := newTestEngine(t)
	caller := testutil.CreateUser(t, db, "Cameroon", "USA")
	peer := testutil.CreateUser(t, db, "Cameroon", "USA")
	otherOrigin := testutil.CreateUser(t, db, "Nigeria", "USA")
	otherResidence := testutil.CreateUser(t, db, "Cameroon", "France")

	testutil.CreateListing(t, db, caller, types.ListingTypeSell, "USD", "EUR")

	match := testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "EUR", "USD")

	// Rejected: same direction, pair not reversed, bound, expired
	testutil.CreateListing(t, db, peer, types.ListingTypeSell, "EUR", "USD")
	testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "USD", "EUR")
	testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "EUR", "USD", testutil.WithStatus(types.ListingStatusPending))
	testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "EUR", "USD", testutil.WithExpiresAt(testutil.Now))

	// Rejected: owner outside the corridor, or the caller
	testutil.CreateListing(t, db, otherOrigin, types.ListingTypeBuy, "EUR", "USD")
	testutil.CreateListing(t, db, otherResidence, types.ListingTypeBuy, "EUR", "USD")
	testutil.CreateListing(t, db, caller, types.ListingTypeBuy, "EUR", "USD")

	page, err := engine.FindCandidates(context.Background(), testutil.Identity(caller), DefaultCandidateQuery())
	require.NoError(t, err)

	assert.Equal(t, []string{match.UUID}, uuidsOf(page.Listings))
	assert.Equal(t, int64(1), page.Pagination.Total)
	require.NotNil(t, page.Listings[0].User)
	assert.Equal(t, peer.UUID, page.Listings[0].User.UUID)
}

func TestFindCandidates_UnionOfOwnListings(t *testing.T) {
	engine, db := newTestEngine(t)
	caller := testutil.CreateUser(t, db, "Cameroon", "USA")
	peer := testutil.CreateUser(t, db, "Cameroon", "USA")

	testutil.CreateListing(t, db, caller, types.ListingTypeSell, "USD", "EUR")
	testutil.CreateListing(t, db, caller, types.ListingTypeBuy, "XAF", "USD")

	forFirst := testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "EUR", "USD")
	forSecond := testutil.CreateListing(t, db, peer, types.ListingTypeSell, "USD", "XAF")

	q := DefaultCandidateQuery()
	q.SortOrder = "asc"
	page, err := engine.FindCandidates(context.Background(), testutil.Identity(caller), q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{forFirst.UUID, forSecond.UUID}, uuidsOf(page.Listings))
	assert.Equal(t, int64(2), page.Pagination.Total)
}

func TestFindCandidates_PaginationAndSort(t *testing.T) {
	engine, db := newTestEngine(t)
	caller := testutil.CreateUser(t, db, "Cameroon", "USA")
	peer := testutil.CreateUser(t, db, "Cameroon", "USA")
	testutil.CreateListing(t, db, caller, types.ListingTypeSell, "USD", "EUR")

	var created []*types.Listing
	for i := 0; i < 5; i++ {
		created = append(created, testutil.CreateListing(t, db, peer, types.ListingTypeBuy, "EUR", "USD",
			testutil.WithCreatedAt(testutil.Now.Add(-time.Duration(5-i)*time.Hour)),
			testutil.WithAmountFrom(int64(100*(5-i))),
		))
	}

	q := DefaultCandidateQuery()
	q.Limit = 2
	q.Page = 2
	page, err := engine.FindCandidates(context.Background(), testutil.Identity(caller), q)
	require.NoError(t, err)

	// Newest first: 4, 3 | 2, 1 | 0
	assert.Equal(t, []string{created[2].UUID, created[1].UUID}, uuidsOf(page.Listings))
	assert.Equal(t, int64(5), page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, 2, page.Pagination.CurrentPage)

	q = DefaultCandidateQuery()
	q.SortBy = "amountFrom"
	q.SortOrder = "asc"
	q.Limit = 1
	page, err = engine.FindCandidates(context.Background(), testutil.Identity(caller), q)
	require.NoError(t, err)
	assert.Equal(t, []string{created[4].UUID}, uuidsOf(page.Listings))
}

func TestFindCandidates_InvalidQuery(t *testing.T) {
	engine, db := newTestEngine(t)
	caller := testutil.CreateUser(t, db, "Cameroon", "USA")

	tests := []struct {
		name   string
		mutate func(q *CandidateQuery)
	}{
		{"page zero", func(q *CandidateQuery) { q.Page = 0 }},
		{"limit zero", func(q *CandidateQuery) { q.Limit = 0 }},
		{"limit above max", func(q *CandidateQuery) { q.Limit = types.MaxPageLimit + 1 }},
		{"unknown sort field", func(q *CandidateQuery) { q.SortBy = "password" }},
		{"unknown sort order", func(q *CandidateQuery) { q.SortOrder = "sideways" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultCandidateQuery()
			tt.mutate(&q)
			_, err := engine.FindCandidates(context.Background(), testutil.Identity(caller), q)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}
