package scraper

import "math"

// Kind identifies which marketplace parser handles a URL.
type Kind string

const (
	KindMarktplaats Kind = "marktplaats"
	KindLeboncoin   Kind = "leboncoin"
	KindBilbasen    Kind = "bilbasen"
	KindGaspedaal   Kind = "gaspedaal"
	KindGeneric     Kind = "generic"
)

// Currency of a listing price as shown on the page.
type Currency string

const (
	CurrencyEUR     Currency = "EUR"
	CurrencyDKK     Currency = "DKK"
	CurrencyUnknown Currency = "UNKNOWN"
)

// PriceType tells one-off prices apart from lease/monthly prices.
type PriceType string

const (
	PriceOneOff   PriceType = "one-off"
	PricePerMonth PriceType = "per-month"
	PriceUnknown  PriceType = "unknown"
)

// DKKToEUR is the fixed conversion rate used everywhere prices are compared.
const DKKToEUR = 0.13

// Listing is one normalized vehicle advertisement. URL is the unique key.
type Listing struct {
	Title        string    `json:"title"`
	Price        float64   `json:"price"`
	Currency     Currency  `json:"currency"`
	Mileage      *int      `json:"mileage,omitempty"`
	Year         *int      `json:"year,omitempty"`
	Trim         *string   `json:"trim,omitempty"`
	URL          string    `json:"url"`
	Description  string    `json:"description"`
	PriceType    PriceType `json:"price_type"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
}

// DetailedListing is what the external defect classifier receives.
type DetailedListing struct {
	Listing         Listing  `json:"listing"`
	FullDescription string   `json:"full_description"`
	Options         []string `json:"options"`
}

// ErrorCode is the failure code carried by a SearchResult.
type ErrorCode string

const ErrScraperFailed ErrorCode = "SCRAPER_FAILED"

// Outcome summarises which of the three exclusive states a result is in.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
)

// SearchResult is what one scrape request hands back. BlockedByProvider and
// Error are never set together.
type SearchResult struct {
	Listings          []Listing `json:"listings"`
	BlockedByProvider bool      `json:"blocked_by_provider"`
	BlockReason       string    `json:"block_reason,omitempty"`
	Error             ErrorCode `json:"error,omitempty"`
	ErrorReason       string    `json:"error_reason,omitempty"`
	PagesFetched      int       `json:"pages_fetched"`
}

// Outcome reports the result state.
func (r SearchResult) Outcome() Outcome {
	switch {
	case r.BlockedByProvider:
		return OutcomeBlocked
	case r.Error != "":
		return OutcomeFailed
	default:
		return OutcomeOK
	}
}

// Blocked builds a blocked-by-provider result.
func Blocked(reason string) SearchResult {
	return SearchResult{Listings: []Listing{}, BlockedByProvider: true, BlockReason: reason}
}

// Failed builds a SCRAPER_FAILED result.
func Failed(reason string) SearchResult {
	return SearchResult{Listings: []Listing{}, Error: ErrScraperFailed, ErrorReason: reason}
}

// PriceEUR returns the listing price converted to EUR.
func PriceEUR(l Listing) float64 {
	if l.Currency == CurrencyDKK {
		return math.Round(l.Price * DKKToEUR)
	}
	return l.Price
}

// ParseResult is a parser's output plus diagnostics for the caller to log.
type ParseResult struct {
	Listings   []Listing
	Strategy   string
	Skipped    int
	JSONErrors int
	// OffHost counts listings dropped because their URL left the
	// marketplace's own domain.
	OffHost int
}

// Parser turns one search-result page into listings. Implementations must be
// pure: same input, same output, no I/O.
type Parser interface {
	Kind() Kind
	Parse(html, sourceURL string) ParseResult
}

// Paginator is implemented by parsers whose marketplace is scraped across
// several result pages.
type Paginator interface {
	// MaxPages caps both detected and iterative pagination.
	MaxPages() int
	// TotalPages reads the page count announced by a result page, or 0.
	TotalPages(html string) int
	// PageURL builds the URL of result page n (n >= 2) from the first page URL.
	PageURL(firstPage string, n int) string
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
