// Package bilbasen parses bilbasen.dk search pages. Its markup has no stable
// card container, so each listing anchor is read together with a fixed
// window of the surrounding document.
package bilbasen

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"carbitrage/internal/extractor"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const (
	origin      = "https://www.bilbasen.dk"
	listingPath = "/brugt/bil/"
	window      = 2000

	StrategyAnchors = "anchor_window"
)

var (
	anchorRe  = regexp.MustCompile(`(?is)<a\b([^>]*?)\bhref\s*=\s*["']([^"']*` + regexp.QuoteMeta(listingPath) + `[^"']*)["']([^>]*)>(.*?)</a>`)
	titleAttr = regexp.MustCompile(`(?i)\btitle\s*=\s*["']([^"']+)["']`)
	imgRe     = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	idSegment = regexp.MustCompile(`/\d+/?$`)
)

// relatedMarkers flag recommendation blocks whose anchors are not results.
var relatedMarkers = []string{
	"relaterede",
	"lignende biler",
	"sponsoreret",
	"andre kiggede",
}

// Parser handles bilbasen.dk.
type Parser struct{}

func init() {
	scraper.Register(Parser{})
}

func (Parser) Kind() scraper.Kind { return scraper.KindBilbasen }

type anchor struct {
	url   string
	key   string
	title string
	pos   int
}

func (Parser) Parse(html, sourceURL string) scraper.ParseResult {
	var all, unique []*anchor
	byKey := map[string]*anchor{}

	for _, m := range anchorRe.FindAllStringSubmatchIndex(html, -1) {
		link := cards.AbsoluteURL(origin, html[m[4]:m[5]])
		if link == "" || !isListingURL(link) {
			continue
		}
		title := cards.StripHTML(html[m[8]:m[9]])
		if title == "" {
			attrs := html[m[2]:m[3]] + html[m[6]:m[7]]
			if t := titleAttr.FindStringSubmatch(attrs); t != nil {
				title = cards.Collapse(t[1])
			}
		}

		a := &anchor{url: link, key: cards.NormalizeURL(link), title: title, pos: m[0]}
		all = append(all, a)
		if first, ok := byKey[a.key]; ok {
			if first.title == "" {
				first.title = title
			}
			continue
		}
		byKey[a.key] = a
		unique = append(unique, a)
	}

	col := cards.NewCollector()
	skipped := 0
	for _, a := range unique {
		before, after := windowAround(html, a.pos)
		if containsAny(strings.ToLower(before+after), relatedMarkers) {
			continue
		}
		// facts of the next listing are not ours
		if next := nextOther(all, a); next != nil && next.pos-a.pos < len(after) {
			after = after[:next.pos-a.pos]
		}
		c, ok := fromWindow(a, after)
		if !ok {
			skipped++
			continue
		}
		col.Add(c)
	}
	res := col.Result(StrategyAnchors)
	res.Skipped += skipped
	return res
}

func nextOther(all []*anchor, a *anchor) *anchor {
	for _, b := range all {
		if b.pos > a.pos && b.key != a.key {
			return b
		}
	}
	return nil
}

// isListingURL accepts /brugt/bil/<make>/<model>/<slug>/<id> but not the
// search pages that share the prefix.
func isListingURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if scraper.SelectParserByHostname(link) != scraper.KindBilbasen {
		return false
	}
	return strings.Contains(u.Path, listingPath) && idSegment.MatchString(u.Path)
}

// windowAround returns up to window bytes on either side of pos, cut on rune
// boundaries.
func windowAround(html string, pos int) (string, string) {
	start := pos - window
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(html[start]) {
		start++
	}
	end := pos + window
	if end > len(html) {
		end = len(html)
	}
	for end < len(html) && !utf8.RuneStart(html[end]) {
		end--
	}
	before := html[start:pos]
	// drop a tag cut in half by the window edge
	if i := strings.IndexByte(before, '>'); i >= 0 && strings.LastIndexByte(before[:i], '<') < 0 {
		before = before[i+1:]
	}
	return before, html[pos:end]
}

// fromWindow reads the text from the anchor onwards: a card's price and
// facts follow its link.
func fromWindow(a *anchor, after string) (cards.Candidate, bool) {
	text := cards.StripHTML(after)
	c := cards.Candidate{Title: a.title, URL: a.url, Text: text, Currency: scraper.CurrencyDKK}
	m, ok := extractor.ExtractDKKPrice(text)
	if !ok {
		return c, false
	}
	c.Price = m.Amount

	if img := imgRe.FindString(after); img != "" {
		c.Thumbnail = cards.Thumbnail(cards.Document(img).Selection, origin)
	}
	return c, true
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
