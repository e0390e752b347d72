// Package gaspedaal parses gaspedaal.nl search pages.
package gaspedaal

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"carbitrage/internal/jsonvalue"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const (
	origin = "https://www.gaspedaal.nl"

	StrategyCards = "html_cards"
	StrategyJSON  = "script_json"
)

// cardSelectors are tried in order; the first one yielding listings wins.
var cardSelectors = []string{
	"[class*='occasion-item']",
	"[class*='occasion']",
	"[class*='listing-item']",
	"[class*='search-result']",
	"[class*='result-item']",
	"article",
	"[class*='card']",
}

// filterLink matches category and filter pages ("toyota-yaris-tot-15000",
// "vanaf-2018") that look like listings but are not.
var filterLink = regexp.MustCompile(`(?i)-tot-\d+|vanaf-\d+|/zoeken|[?&]page=`)

// Parser handles gaspedaal.nl.
type Parser struct{}

func init() {
	scraper.Register(Parser{})
}

func (Parser) Kind() scraper.Kind { return scraper.KindGaspedaal }

func (Parser) Parse(html, sourceURL string) scraper.ParseResult {
	doc := cards.Document(html)
	var best scraper.ParseResult
	for _, sel := range cardSelectors {
		res := parseCards(doc, sel)
		if len(res.Listings) > 0 {
			return res
		}
		best.Skipped += res.Skipped
	}
	res := cards.ScriptListings(html, origin, func(o *jsonvalue.Value) bool {
		return !filterLink.MatchString(jsonvalue.First(o, "url", "link", "href", "detailUrl").Text())
	}, StrategyJSON)
	res.Skipped += best.Skipped
	return res
}

func parseCards(doc *goquery.Document, sel string) scraper.ParseResult {
	col := cards.NewCollector()
	doc.Find(sel).Each(func(_ int, card *goquery.Selection) {
		// wrappers around several cards match the same selector
		if card.Find(sel).Length() > 0 {
			return
		}
		link := cardLink(card)
		if link == "" {
			return
		}
		c := cards.FromText(cards.Title(card), link, cards.Text(card))
		c.Thumbnail = cards.Thumbnail(card, origin)
		col.Add(c)
	})
	return col.Result(StrategyCards + ":" + sel)
}

// cardLink returns the first anchor that is not a category or filter link.
func cardLink(card *goquery.Selection) string {
	var link string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := cards.AbsoluteURL(origin, href)
		if abs == "" || filterLink.MatchString(abs) {
			return true
		}
		link = abs
		return false
	})
	return link
}
