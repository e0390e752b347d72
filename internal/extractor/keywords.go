package extractor

import (
	"regexp"
	"strings"
)

// monthlyKeywords mark lease or instalment prices (NL, FR, DK, EN).
var monthlyKeywords = []string{
	"private lease",
	"privé lease",
	"prive lease",
	"operational lease",
	"financial lease",
	"leasing",
	"location longue durée",
	"par mois",
	"/mois",
	"€/mois",
	"per maand",
	"p/m",
	"p.m.",
	"/maand",
	"per month",
	"/month",
	"pr. md",
	"pr. måned",
	"/md",
	"kr./md",
	"månedlig ydelse",
	"mdl. ydelse",
}

// damageKeywords mark damaged, salvage or parts-only vehicles.
var damageKeywords = []string{
	"accidenté",
	"accidente",
	"accident",
	"épave",
	"epave",
	"pour pièces",
	"pour pieces",
	"non roulant",
	"moteur cassé",
	"hors service",
	"salvage",
	"cat c",
	"cat d",
	"cat n",
	"cat s",
	"total loss",
	"total-loss",
	"for parts",
	"damaged",
	"schade",
	"schadeauto",
	"beschadigd",
	"motorschade",
	"defect",
	"skadet",
	"skadebil",
	"kaskoskade",
	"til ophug",
}

// Short tokens only count as whole words: as substrings "lease" hits
// "please" and "hs" hits almost any page.
var (
	monthlyWords = regexp.MustCompile(`(^|[^\p{L}])(lease|loa|lld)([^\p{L}]|$)`)
	damageWords  = regexp.MustCompile(`(^|[^\p{L}])hs([^\p{L}]|$)`)
)

// IsPriceMonthly reports whether text describes a lease or per-month price.
func IsPriceMonthly(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, monthlyKeywords) || monthlyWords.MatchString(lower)
}

// IsDamagedVehicle reports whether text mentions damage. This is substring
// matching, so "no accident" still matches "accident".
func IsDamagedVehicle(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, damageKeywords) || damageWords.MatchString(lower)
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
