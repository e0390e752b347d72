package extractor

import (
	"math"
	"regexp"
	"strings"

	"carbitrage/internal/scraper"
)

// PriceMatch is an extracted price. Amount is in the currency found on the
// page, EUR is the comparison value.
type PriceMatch struct {
	Amount   float64
	Currency scraper.Currency
	EUR      float64
}

type pricePattern struct {
	re        *regexp.Regexp
	fromRight bool
}

var (
	eurPatterns = []pricePattern{
		{regexp.MustCompile(`€\s*` + numRun), false},
		{regexp.MustCompile(numRun + `\s*€`), true},
		{regexp.MustCompile(`(?i)\bEUR\s*` + numRun), false},
		{regexp.MustCompile(`(?i)` + numRun + `\s*EUR\b`), true},
		{regexp.MustCompile(`(?i)` + numRun + `\s*euros?\b`), true},
		{regexp.MustCompile(`(?i)prix\s*:\s*` + numRun), false},
	}
	dkkPatterns = []pricePattern{
		{regexp.MustCompile(`(?i)` + numRun + `\s*kr\b\.?`), true},
		{regexp.MustCompile(`(?i)` + numRun + `\s*DKK\b`), true},
		{regexp.MustCompile(`(?i)\bDKK\s*` + numRun), false},
	}
)

const (
	eurMin = 100
	eurMax = 500000
	dkkMin = 100
	dkkMax = 5000000
)

// ExtractPrice finds a EUR price in text, falling back to DKK. Values outside
// the plausible range are ignored.
func ExtractPrice(text string) (PriceMatch, bool) {
	if text == "" {
		return PriceMatch{}, false
	}
	if v, ok := firstInRange(text, eurPatterns, eurMin, eurMax); ok {
		return PriceMatch{Amount: v, Currency: scraper.CurrencyEUR, EUR: v}, true
	}
	if v, ok := firstInRange(text, dkkPatterns, dkkMin, dkkMax); ok {
		return PriceMatch{Amount: v, Currency: scraper.CurrencyDKK, EUR: DKKToEUR(v)}, true
	}
	return PriceMatch{}, false
}

// ExtractDKKPrice only considers the DKK patterns.
func ExtractDKKPrice(text string) (PriceMatch, bool) {
	v, ok := firstInRange(text, dkkPatterns, dkkMin, dkkMax)
	if !ok {
		return PriceMatch{}, false
	}
	return PriceMatch{Amount: v, Currency: scraper.CurrencyDKK, EUR: DKKToEUR(v)}, true
}

// DKKToEUR converts at the fixed rate and rounds to whole euros.
func DKKToEUR(v float64) float64 {
	return math.Round(v * scraper.DKKToEUR)
}

func firstInRange(text string, patterns []pricePattern, min, max float64) (float64, bool) {
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			v, ok := parseGrouped(m[1], p.fromRight)
			if ok && v > min && v < max {
				return v, true
			}
		}
	}
	return 0, false
}

// DetectCurrency returns DKK for Danish hosts or texts quoting "kr" prices.
func DetectCurrency(rawURL, text string) scraper.Currency {
	host := scraper.Hostname(rawURL)
	if strings.HasSuffix(host, ".dk") || host == "dk" {
		return scraper.CurrencyDKK
	}
	if strings.Contains(strings.ToLower(text), " kr") {
		return scraper.CurrencyDKK
	}
	return scraper.CurrencyEUR
}
