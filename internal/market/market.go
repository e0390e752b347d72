// Package market holds the arbitrage business logic: listing filters,
// bounded target-market statistics and opportunity detection. Everything
// here is pure.
package market

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"carbitrage/internal/extractor"
	"carbitrage/internal/scraper"
)

const (
	// MinPriceEUR is the noise floor: anything at or below it is dropped.
	MinPriceEUR = 2000
	// StatsSampleSize bounds how many of the cheapest listings feed the stats.
	StatsSampleSize = 6
	// DefaultMaxInteresting caps the interesting source listings.
	DefaultMaxInteresting = 5
)

// Criteria selects the listings a study compares.
type Criteria struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	// Year is the minimum model year; 0 disables the year gate.
	Year int `json:"year"`
	// YearMax is an optional upper bound; 0 means none.
	YearMax int `json:"year_max,omitempty"`
	// MaxMileage in km; 0 means unlimited.
	MaxMileage int `json:"max_mileage"`
}

// Stats summarises the bounded target sample. All fields are zero for an
// empty pool.
type Stats struct {
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	P25     float64 `json:"p25"`
	P75     float64 `json:"p75"`
}

// Opportunity is the outcome of comparing the two markets.
type Opportunity struct {
	HasOpportunity      bool              `json:"has_opportunity"`
	TargetMedianPrice   float64           `json:"target_median_price"`
	BestSourcePrice     float64           `json:"best_source_price"`
	PriceDifference     float64           `json:"price_difference"`
	InterestingListings []scraper.Listing `json:"interesting_listings"`
}

// ShouldFilterListing reports whether a listing is noise: too cheap, a
// monthly/lease price, or a damaged vehicle.
func ShouldFilterListing(l scraper.Listing) bool {
	if scraper.PriceEUR(l) <= MinPriceEUR {
		return true
	}
	text := l.Title + " " + l.Description
	if l.PriceType == scraper.PricePerMonth || extractor.IsPriceMonthly(text) {
		return true
	}
	return extractor.IsDamagedVehicle(text)
}

// MatchesBrandModel requires the brand as a substring of the title and every
// model token as a substring too. reason names the first missing part.
func MatchesBrandModel(title, brand, model string) (bool, string) {
	lower := strings.ToLower(title)
	if b := strings.ToLower(strings.TrimSpace(brand)); b != "" && !strings.Contains(lower, b) {
		return false, "brand_missing:" + b
	}
	for _, tok := range modelTokens(model) {
		if !strings.Contains(lower, tok) {
			return false, "model_token_missing:" + tok
		}
	}
	return true, ""
}

func modelTokens(model string) []string {
	return strings.FieldsFunc(strings.ToLower(model), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// FilterListingsByStudy keeps the listings passing every gate, in input order.
// Listings with an unknown year fail an active year gate; an unknown mileage
// passes the mileage gate.
func FilterListingsByStudy(listings []scraper.Listing, c Criteria) []scraper.Listing {
	out := make([]scraper.Listing, 0, len(listings))
	for _, l := range listings {
		if ShouldFilterListing(l) {
			continue
		}
		if c.Year > 0 && (l.Year == nil || *l.Year < c.Year) {
			continue
		}
		if c.YearMax > 0 && (l.Year == nil || *l.Year > c.YearMax) {
			continue
		}
		if c.MaxMileage > 0 && l.Mileage != nil && *l.Mileage > c.MaxMileage {
			continue
		}
		if ok, _ := MatchesBrandModel(l.Title, c.Brand, c.Model); !ok {
			continue
		}
		out = append(out, l)
	}
	return out
}

// ComputeTargetMarketStats computes stats over the StatsSampleSize cheapest
// EUR prices.
func ComputeTargetMarketStats(listings []scraper.Listing) Stats {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		prices = append(prices, scraper.PriceEUR(l))
	}
	sort.Float64s(prices)
	if len(prices) > StatsSampleSize {
		prices = prices[:StatsSampleSize]
	}
	n := len(prices)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	return Stats{
		Count:   n,
		Min:     prices[0],
		Max:     prices[n-1],
		Average: round2(sum / float64(n)),
		Median:  median(prices),
		P25:     percentile(prices, 25),
		P75:     percentile(prices, 75),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile uses index ceil(n*p/100)-1.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DetectOpportunity compares the target median with the cheapest source
// listing. Both pools are noise-filtered first; an empty pool never yields
// an opportunity.
func DetectOpportunity(target, source []scraper.Listing, threshold float64, maxInteresting int) Opportunity {
	if maxInteresting <= 0 {
		maxInteresting = DefaultMaxInteresting
	}
	target = dropNoise(target)
	source = dropNoise(source)

	out := Opportunity{InterestingListings: []scraper.Listing{}}
	out.TargetMedianPrice = ComputeTargetMarketStats(target).Median
	if len(source) == 0 {
		return out
	}

	out.BestSourcePrice = scraper.PriceEUR(source[0])
	for _, l := range source[1:] {
		if p := scraper.PriceEUR(l); p < out.BestSourcePrice {
			out.BestSourcePrice = p
		}
	}
	if len(target) == 0 {
		return out
	}
	out.PriceDifference = out.TargetMedianPrice - out.BestSourcePrice
	out.HasOpportunity = out.PriceDifference >= threshold

	ceiling := out.TargetMedianPrice - threshold
	for _, l := range source {
		if scraper.PriceEUR(l) <= ceiling {
			out.InterestingListings = append(out.InterestingListings, l)
		}
	}
	sort.SliceStable(out.InterestingListings, func(i, j int) bool {
		a, b := out.InterestingListings[i], out.InterestingListings[j]
		pa, pb := scraper.PriceEUR(a), scraper.PriceEUR(b)
		if pa != pb {
			return pa < pb
		}
		return a.URL < b.URL
	})
	if len(out.InterestingListings) > maxInteresting {
		out.InterestingListings = out.InterestingListings[:maxInteresting]
	}
	return out
}

func dropNoise(listings []scraper.Listing) []scraper.Listing {
	out := make([]scraper.Listing, 0, len(listings))
	for _, l := range listings {
		if !ShouldFilterListing(l) {
			out = append(out, l)
		}
	}
	return out
}
