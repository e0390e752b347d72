package extractor

import (
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	yearRe        = regexp.MustCompile(`\b(20\d{2})\b`)
	mileageRe     = regexp.MustCompile(`(?i)` + numRun + `\s*km\b`)
	kilometrageRe = regexp.MustCompile(`(?i)kilom[ée]trage\s*:\s*` + numRun)
	yearCeiling   atomic.Int64
)

// SetYearCeiling pins the newest accepted model year. Zero restores the
// default, the current calendar year.
func SetYearCeiling(year int) {
	yearCeiling.Store(int64(year))
}

// YearCeiling returns the newest accepted model year.
func YearCeiling() int {
	if v := yearCeiling.Load(); v > 0 {
		return int(v)
	}
	return time.Now().Year()
}

// ExtractYear returns the first 4-digit year in [2000, YearCeiling()].
func ExtractYear(text string) (int, bool) {
	ceiling := YearCeiling()
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		y, err := strconv.Atoi(m[1])
		if err == nil && y >= 2000 && y <= ceiling {
			return y, true
		}
	}
	return 0, false
}

// ExtractMileage returns a kilometre count in (0, 1,000,000).
func ExtractMileage(text string) (int, bool) {
	for _, m := range kilometrageRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseGrouped(m[1], false); ok && v > 0 && v < 1000000 {
			return int(v), true
		}
	}
	for _, m := range mileageRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseGrouped(m[1], true); ok && v > 0 && v < 1000000 {
			return int(v), true
		}
	}
	return 0, false
}

// ParseInt reads a plain or grouped integer such as "120.000" or "2019".
func ParseInt(s string) (int, bool) {
	v, ok := parseGrouped(s, false)
	if !ok {
		return 0, false
	}
	return int(v), true
}
