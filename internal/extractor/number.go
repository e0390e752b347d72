// Package extractor holds the text-to-value functions shared by all
// marketplace parsers. None of them panic or return errors: a value that
// cannot be established is reported as absent.
package extractor

import (
	"strconv"
	"strings"
	"unicode"
)

// numRun is a loose numeric run: a digit followed by digits and separators.
// parseGrouped decides which part of it is the actual number.
const numRun = `(\d[\d.,  \x{00A0}\x{202F}]*)`

type group struct {
	sep    rune // separator before the digits, 0 for the first group
	digits string
}

// splitGroups cuts a run into digit groups. Two separators in a row start a
// new segment, so "2019, 125.000" yields two segments.
func splitGroups(run string) [][]group {
	var segments [][]group
	var groups []group
	var sep rune
	var cur strings.Builder
	pendingSeps := 0
	flush := func() {
		if cur.Len() > 0 {
			groups = append(groups, group{sep: sep, digits: cur.String()})
			cur.Reset()
		}
	}
	for _, r := range run {
		if unicode.IsDigit(r) {
			if pendingSeps > 1 && len(groups) > 0 {
				segments = append(segments, groups)
				groups = nil
				sep = 0
			}
			pendingSeps = 0
			cur.WriteRune(r)
			continue
		}
		flush()
		pendingSeps++
		if pendingSeps == 1 {
			sep = r
		}
	}
	flush()
	if len(groups) > 0 {
		segments = append(segments, groups)
	}
	return segments
}

func isDecimalSep(r rune) bool { return r == '.' || r == ',' }

// sepClass folds the space variants together so "150 000" and "150 000"
// group the same way.
func sepClass(r rune) rune {
	if isDecimalSep(r) {
		return r
	}
	return ' '
}

// numbers splits one segment into the grouped numbers it holds. A number
// keeps one thousands separator: "16.950 120.000" is two numbers because the
// space after 950 is not the separator 16.950 was grouped with. A 1-2 digit
// group after a different decimal mark ends the number as its fraction.
func numbers(groups []group) []string {
	var out []string
	var cur strings.Builder
	var head string
	var thousands rune
	closed := false
	start := func(g group) {
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
		cur.Reset()
		cur.WriteString(g.digits)
		head, thousands, closed = g.digits, 0, false
	}
	for i, g := range groups {
		if i == 0 {
			start(g)
			continue
		}
		sc := sepClass(g.sep)
		switch {
		case !closed && len(head) <= 3 && len(g.digits) == 3 && (thousands == 0 || sc == thousands):
			thousands = sc
			cur.WriteString(g.digits)
		case !closed && isDecimalSep(g.sep) && sc != thousands && len(g.digits) <= 2:
			cur.WriteString("." + g.digits)
			closed = true
		default:
			start(g)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// parseGrouped reads a grouped number. fromRight takes the last number of the
// run, which is what a unit suffix ("125.000 kr", "120.000 km") needs;
// otherwise the first one wins, as after a currency prefix ("€ 16.950").
func parseGrouped(run string, fromRight bool) (float64, bool) {
	segments := splitGroups(run)
	if len(segments) == 0 {
		return 0, false
	}
	seg := segments[0]
	if fromRight {
		seg = segments[len(segments)-1]
	}
	nums := numbers(seg)
	if len(nums) == 0 {
		return 0, false
	}
	s := nums[0]
	if fromRight {
		s = nums[len(nums)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
