// Package parity fingerprints listing pools so that two executions over the
// same HTML can be compared byte for byte.
package parity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"carbitrage/internal/scraper"
)

const titleRunes = 50

// Canonical renders the pool as sorted "url\tprice\ttitle" lines. Prices
// are formatted with two decimals independent of locale; titles are cut at
// 50 runes.
func Canonical(listings []scraper.Listing) string {
	sorted := append([]scraper.Listing(nil), listings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].URL != sorted[j].URL {
			return sorted[i].URL < sorted[j].URL
		}
		return sorted[i].Price < sorted[j].Price
	})

	lines := make([]string, len(sorted))
	for i, l := range sorted {
		lines[i] = l.URL + "\t" + strconv.FormatFloat(l.Price, 'f', 2, 64) + "\t" + truncate(l.Title)
	}
	return strings.Join(lines, "\n")
}

// HashListingPool returns the hex SHA-256 of Canonical(listings).
func HashListingPool(listings []scraper.Listing) string {
	sum := sha256.Sum256([]byte(Canonical(listings)))
	return hex.EncodeToString(sum[:])
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= titleRunes {
		return s
	}
	r := []rune(s)
	return string(r[:titleRunes])
}
