package matching

import (
	"context"
	"time"

	"github.com/ksred/fexp-api/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database runs candidate queries over listings joined with their owners
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func listingCol(name string) clause.Column {
	return clause.Column{Table: "listings", Name: name}
}

func userCol(name string) clause.Column {
	return clause.Column{Table: "users", Name: name}
}

// CandidateFilter is the complementary predicate for a caller's own listings
type CandidateFilter struct {
	CallerID           uint
	CountryOfResidence string
	Own                []types.Listing
	Now                time.Time
}

// complement matches the counter-offers to one own listing: opposite direction, reversed
// pair and an owner from the same country of origin
func complement(own types.Listing) clause.Expression {
	origin := ""
	if own.User != nil {
		origin = own.User.CountryOfOrigin
	}
	return clause.And(
		clause.Eq{Column: listingCol("type"), Value: own.Type.Opposite()},
		clause.Eq{Column: listingCol("currency_from"), Value: own.CurrencyTo},
		clause.Eq{Column: listingCol("currency_to"), Value: own.CurrencyFrom},
		clause.Eq{Column: userCol("country_of_origin"), Value: origin},
	)
}

// scope applies the candidate predicate. Find and Count share it so the page and the total
// never drift apart.
func (f CandidateFilter) scope(db *gorm.DB) *gorm.DB {
	perListing := make([]clause.Expression, 0, len(f.Own))
	for _, own := range f.Own {
		perListing = append(perListing, complement(own))
	}

	return db.Model(&types.Listing{}).
		Joins("JOIN users ON users.id = listings.user_id").
		Where(clause.And(
			clause.Eq{Column: listingCol("status"), Value: types.ListingStatusActive},
			clause.Gt{Column: listingCol("expires_at"), Value: f.Now},
			clause.Neq{Column: listingCol("user_id"), Value: f.CallerID},
			clause.Eq{Column: userCol("country_of_residence"), Value: f.CountryOfResidence},
			clause.Or(perListing...),
		))
}

// Order is a validated sort over listings
type Order struct {
	Column string
	Desc   bool
}

// FindCandidates returns one page of candidate listings with their owners
func (d *Database) FindCandidates(f CandidateFilter, order Order, offset, limit int) ([]types.Listing, error) {
	var candidates []types.Listing
	err := d.db.Scopes(f.scope).
		Select("listings.*").
		Preload("User").
		Order(clause.OrderByColumn{Column: listingCol(order.Column), Desc: order.Desc}).
		Order(clause.OrderByColumn{Column: listingCol("id"), Desc: order.Desc}).
		Offset(offset).
		Limit(limit).
		Find(&candidates).Error
	return candidates, err
}

// CountCandidates counts every candidate listing matched by f
func (d *Database) CountCandidates(f CandidateFilter) (int64, error) {
	var total int64
	err := d.db.Scopes(f.scope).Count(&total).Error
	return total, err
}

func (d *Database) withContext(ctx context.Context) *Database {
	return &Database{db: d.db.WithContext(ctx)}
}
