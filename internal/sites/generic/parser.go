// Package generic parses search pages of marketplaces without a dedicated
// parser using broad card patterns and anchor heuristics.
package generic

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carbitrage/internal/extractor"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const (
	StrategyAnchors = "anchor_fallback"
	StrategyJSON    = "script_json"
	StrategyNone    = "none"

	// how far up from a listing anchor to look for its price
	maxAncestorDepth = 6
)

// cardPatterns are all tried; the one producing the most listings wins.
var cardPatterns = []string{
	"article",
	"[class*='listing']",
	"[class*='result']",
	".ad, [class*='ad-item'], [class*='ad-card']",
}

// anchorShapes are advert URL fragments of sites seen without a parser:
// AutoScout24 (several locales) and La Centrale.
var anchorShapes = []string{
	"/offers/",
	"/annonces/",
	"/angebote/",
	"/auto-occasion-annonce-",
}

// Parser is the fallback for unknown hostnames.
type Parser struct{}

func init() {
	scraper.Register(Parser{})
}

func (Parser) Kind() scraper.Kind { return scraper.KindGeneric }

func (Parser) Parse(html, sourceURL string) scraper.ParseResult {
	doc := cards.Document(html)

	var best scraper.ParseResult
	for _, pattern := range cardPatterns {
		res := parseCards(doc, pattern, sourceURL)
		if len(res.Listings) > len(best.Listings) {
			best = res
		}
	}
	if len(best.Listings) > 0 {
		return best
	}

	if res := parseAnchors(doc, sourceURL); len(res.Listings) > 0 {
		return res
	}
	if res := cards.ScriptListings(html, sourceURL, nil, StrategyJSON); len(res.Listings) > 0 || res.JSONErrors > 0 {
		return res
	}
	return scraper.ParseResult{Listings: []scraper.Listing{}, Strategy: StrategyNone}
}

func parseCards(doc *goquery.Document, pattern, base string) scraper.ParseResult {
	col := cards.NewCollector()
	doc.Find(pattern).Each(func(_ int, card *goquery.Selection) {
		if card.Find(pattern).Length() > 0 {
			return
		}
		href, _ := card.Find("a[href]").First().Attr("href")
		link := cards.AbsoluteURL(base, href)
		if link == "" {
			if h, ok := card.Attr("href"); ok {
				link = cards.AbsoluteURL(base, h)
			}
		}
		if link == "" {
			return
		}
		col.Add(candidate(card, cards.Title(card), link, base))
	})
	return col.Result("html_cards:" + pattern)
}

func parseAnchors(doc *goquery.Document, base string) scraper.ParseResult {
	col := cards.NewCollector()
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := cards.AbsoluteURL(base, href)
		if link == "" || !advertShaped(link) {
			return
		}
		card := a
		for depth := 0; depth < maxAncestorDepth; depth++ {
			if _, ok := extractor.ExtractPrice(cards.Text(card)); ok {
				break
			}
			if card.Parent().Length() == 0 {
				break
			}
			card = card.Parent()
		}
		title := cards.Title(card)
		if title == "" {
			title = cards.Text(a)
		}
		col.Add(candidate(card, title, link, base))
	})
	return col.Result(StrategyAnchors)
}

func advertShaped(link string) bool {
	for _, shape := range anchorShapes {
		if strings.Contains(link, shape) {
			return true
		}
	}
	return false
}

func candidate(card *goquery.Selection, title, link, base string) cards.Candidate {
	text := cards.Text(card)
	c := cards.FromText(title, link, text)
	if extractor.DetectCurrency(base, text) == scraper.CurrencyDKK {
		if m, ok := extractor.ExtractDKKPrice(text); ok {
			c.Price, c.Currency = m.Amount, m.Currency
		}
	}
	c.Thumbnail = cards.Thumbnail(card, base)
	return c
}
