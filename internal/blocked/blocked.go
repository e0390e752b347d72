// Package blocked recognises bot-defense and CAPTCHA pages.
package blocked

import "strings"

const suspiciousMaxLength = 50000

const (
	ReasonKeywordMatch       = "keyword_match"
	ReasonSuspiciousNoResult = "no_listings_with_suspicious_content"
)

var blockKeywords = []string{
	"captcha",
	"access denied",
	"accès refusé",
	"cloudflare",
	"bot detection",
	"verify you are human",
	"are you a robot",
	"unusual traffic",
	"please enable javascript and cookies",
	"just a moment...",
	"attention required",
	"px-captcha",
	"request blocked",
	"ddos protection",
}

// suspiciousKeywords only count on short pages without listings. Anti-bot
// vendor names belong here: healthy pages embed their scripts too.
var suspiciousKeywords = []string{
	"datadome",
	"perimeterx",
	"robot",
	"security",
	"verification",
	"blocked",
}

// Result is the detector's verdict.
type Result struct {
	IsBlocked      bool   `json:"is_blocked"`
	MatchedKeyword string `json:"matched_keyword,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Detect classifies html. hasListings tells whether parsing the same page
// already produced listings; soft keywords only count on short, empty pages.
func Detect(html string, hasListings bool) Result {
	lower := strings.ToLower(html)
	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return Result{IsBlocked: true, MatchedKeyword: kw, Reason: ReasonKeywordMatch}
		}
	}
	if hasListings || len(html) >= suspiciousMaxLength {
		return Result{}
	}
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return Result{IsBlocked: true, MatchedKeyword: kw, Reason: ReasonSuspiciousNoResult}
		}
	}
	return Result{}
}

// Describe renders a block reason for a SearchResult.
func (r Result) Describe() string {
	if !r.IsBlocked {
		return ""
	}
	return r.Reason + ":" + r.MatchedKeyword
}
