package types

// Pagination describes one page of a query result
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
}

// NewPagination computes page metadata for total results split by limit
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		Total:       total,
		Limit:       limit,
	}
}

// ListingPage is a page of candidate listings
type ListingPage struct {
	Listings   []Listing  `json:"listings"`
	Pagination Pagination `json:"pagination"`
}

// MatchPage is a page of matches
type MatchPage struct {
	Matches    []Match    `json:"matches"`
	Pagination Pagination `json:"pagination"`
}

// MaxPageLimit bounds the page size callers may request
const MaxPageLimit = 100

// PageRequest is the validated page window of a list query
type PageRequest struct {
	Page  int `form:"page" json:"page" validate:"gte=1"`
	Limit int `form:"limit" json:"limit" validate:"gte=1,lte=100"`
}

// Offset is the number of rows skipped before the page starts
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}
