package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var currencies = []string{"USD", "EUR", "XAF", "GBP"}

func TestExpiryFor(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), ExpiryFor(created))

	l := Listing{Status: ListingStatusActive, ExpiresAt: ExpiryFor(created)}
	assert.True(t, l.Matchable(created))
	assert.False(t, l.Matchable(l.ExpiresAt))
	assert.True(t, l.Expired(l.ExpiresAt.Add(time.Second)))

	l.Status = ListingStatusPending
	assert.False(t, l.Matchable(created))
}

func TestListingTypeOpposite(t *testing.T) {
	assert.Equal(t, ListingTypeSell, ListingTypeBuy.Opposite())
	assert.Equal(t, ListingTypeBuy, ListingTypeSell.Opposite())
	assert.True(t, ListingTypeBuy.Valid())
	assert.False(t, ListingType("HOLD").Valid())
}

func TestSamePair(t *testing.T) {
	usdEur := &Listing{CurrencyFrom: "USD", CurrencyTo: "EUR"}
	eurUsd := &Listing{CurrencyFrom: "EUR", CurrencyTo: "USD"}
	usdXaf := &Listing{CurrencyFrom: "USD", CurrencyTo: "XAF"}

	assert.True(t, SamePair(usdEur, usdEur))
	assert.True(t, SamePair(usdEur, eurUsd))
	assert.False(t, SamePair(usdEur, usdXaf), "same currency_from alone is not enough")
}

func TestSamePair_Symmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := &Listing{
			CurrencyFrom: rapid.SampledFrom(currencies).Draw(t, "a_from"),
			CurrencyTo:   rapid.SampledFrom(currencies).Draw(t, "a_to"),
		}
		b := &Listing{
			CurrencyFrom: rapid.SampledFrom(currencies).Draw(t, "b_from"),
			CurrencyTo:   rapid.SampledFrom(currencies).Draw(t, "b_to"),
		}

		if SamePair(a, b) != SamePair(b, a) {
			t.Fatalf("SamePair is not symmetric for %+v and %+v", a, b)
		}
		if SamePair(a, b) && a.CurrencyFrom != b.CurrencyFrom && a.CurrencyFrom != b.CurrencyTo {
			t.Fatalf("pairs %+v and %+v share no currency", a, b)
		}
	})
}

func TestSameCorridor_Symmetric(t *testing.T) {
	countries := []string{"Cameroon", "USA", "Nigeria"}
	rapid.Check(t, func(t *rapid.T) {
		a := &Listing{User: &User{
			CountryOfOrigin:    rapid.SampledFrom(countries).Draw(t, "a_origin"),
			CountryOfResidence: rapid.SampledFrom(countries).Draw(t, "a_residence"),
		}}
		b := &Listing{User: &User{
			CountryOfOrigin:    rapid.SampledFrom(countries).Draw(t, "b_origin"),
			CountryOfResidence: rapid.SampledFrom(countries).Draw(t, "b_residence"),
		}}

		want := a.User.CountryOfOrigin == b.User.CountryOfOrigin &&
			a.User.CountryOfResidence == b.User.CountryOfResidence
		if SameCorridor(a, b) != want || SameCorridor(b, a) != want {
			t.Fatalf("corridor mismatch for %+v and %+v", a.User, b.User)
		}
	})
}

func TestSameCorridor_RequiresOwners(t *testing.T) {
	assert.False(t, SameCorridor(&Listing{}, &Listing{User: &User{}}))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(25), p.Total)

	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	assert.Equal(t, 10, PageRequest{Page: 2, Limit: 10}.Offset())
}
