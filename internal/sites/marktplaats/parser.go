// Package marktplaats parses marktplaats.nl car search pages.
package marktplaats

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carbitrage/internal/extractor"
	"carbitrage/internal/jsonvalue"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const (
	origin   = "https://www.marktplaats.nl"
	maxPages = 10

	StrategyCards = "html_cards"
	StrategyJSON  = "script_json"
)

var pageRe = regexp.MustCompile(`/p/(\d+)/?`)

// Parser handles marktplaats.nl.
type Parser struct{}

func init() {
	scraper.Register(Parser{})
}

func (Parser) Kind() scraper.Kind { return scraper.KindMarktplaats }

// Parse tries listing cards first and only falls back to embedded JSON when
// no card was found.
func (Parser) Parse(html, sourceURL string) scraper.ParseResult {
	if res := parseCards(html); len(res.Listings) > 0 {
		return res
	}
	return parseScripts(html)
}

func parseCards(html string) scraper.ParseResult {
	col := cards.NewCollector()
	cards.Document(html).Find("li.hz-Listing").Each(func(_ int, card *goquery.Selection) {
		if card.HasClass("hz-Listing--sponsored") {
			return
		}
		link := listingLink(card)
		if link == "" {
			if !strings.Contains(strings.ToLower(card.Text()), "topadvertentie") {
				col.Skipped++
			}
			return
		}

		title := cards.Text(card.Find(".hz-Listing-title").First())
		if title == "" {
			title = cards.Title(card)
		}
		text := cards.Text(card)
		c := cards.FromText(title, link, text)
		if m, ok := extractor.ExtractPrice(cards.Text(card.Find(".hz-Listing-price").First())); ok {
			c.Price, c.Currency = m.Amount, m.Currency
		}
		c.Thumbnail = cards.Thumbnail(card, origin)
		col.Add(c)
	})
	return col.Result(StrategyCards)
}

// listingLink prefers the advert link (/v/ or /a/) over seller or promo links.
func listingLink(card *goquery.Selection) string {
	var fallback, found string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := cards.AbsoluteURL(origin, href)
		if abs == "" {
			return true
		}
		if strings.Contains(abs, "/v/") || strings.Contains(abs, "/a/") {
			found = abs
			return false
		}
		if fallback == "" && scraper.SelectParserByHostname(abs) == scraper.KindMarktplaats {
			fallback = abs
		}
		return true
	})
	if found != "" {
		return found
	}
	return fallback
}

func listingShaped(o *jsonvalue.Value) bool {
	return jsonvalue.HasAny(o, "vipUrl", "url", "href") &&
		jsonvalue.HasAny(o, "title", "name") &&
		jsonvalue.HasAny(o, "priceInfo", "price", "priceCents")
}

func parseScripts(html string) scraper.ParseResult {
	col := cards.NewCollector()
	jsonErrors := 0
	for _, s := range jsonvalue.Scripts(html) {
		if !jsonvalue.LooksLikeJSON(s.Body) {
			continue
		}
		root, err := jsonvalue.ParseScript(s.Body)
		if err != nil {
			jsonErrors++
			continue
		}
		for _, obj := range jsonvalue.FindObjects(root, listingShaped) {
			col.Add(mapListing(obj))
		}
	}
	res := col.Result(StrategyJSON)
	res.JSONErrors = jsonErrors
	return res
}

// mapListing understands the search API shape: priceInfo.priceCents,
// attribute arrays and vipUrl.
func mapListing(o *jsonvalue.Value) cards.Candidate {
	c := cards.Candidate{
		Title:    jsonvalue.First(o, "title", "name").Text(),
		Text:     jsonvalue.First(o, "description", "categorySpecificDescription").Text(),
		Currency: scraper.CurrencyEUR,
	}
	href := jsonvalue.First(o, "vipUrl", "url", "href").Text()
	c.URL = cards.AbsoluteURL(origin, href)

	if cents, ok := o.Path("priceInfo", "priceCents").Float(); ok {
		c.Price = cents / 100
	} else if cents, ok := o.Get("priceCents").Float(); ok {
		c.Price = cents / 100
	} else if p, ok := o.Get("price").Float(); ok {
		c.Price = p
	} else if p, ok := o.Path("price", "amount").Float(); ok {
		c.Price = p
	}

	for _, key := range []string{"attributes", "extendedAttributes"} {
		for _, attr := range o.Get(key).Array() {
			value := attr.Get("value").Text()
			switch strings.ToLower(attr.Get("key").Text()) {
			case "mileage", "kilometer-stand", "kilometerstand":
				if km, ok := extractor.ParseInt(value); ok && km > 0 && km < 1000000 && c.Mileage == nil {
					c.Mileage = scraper.IntPtr(km)
				}
			case "year", "bouwjaar", "constructionyear":
				if y, ok := extractor.ExtractYear(value); ok && c.Year == nil {
					c.Year = scraper.IntPtr(y)
				}
			}
		}
	}

	if pics := o.Get("pictures"); pics != nil {
		first := pics.Index(0)
		c.Thumbnail = cards.AbsoluteURL(origin, jsonvalue.First(first, "mediumUrl", "largeUrl", "url").Text())
	} else if urls := o.Get("imageUrls"); urls != nil {
		c.Thumbnail = cards.AbsoluteURL(origin, urls.Index(0).Text())
	}
	return c
}

func (Parser) MaxPages() int { return maxPages }

// TotalPages returns the highest /p/<n>/ page marker linked from the page.
func (Parser) TotalPages(html string) int {
	highest := 0
	for _, m := range pageRe.FindAllStringSubmatch(html, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// PageURL rewrites or appends the /p/<n>/ path segment, keeping query and
// fragment.
func (Parser) PageURL(firstPage string, n int) string {
	u, err := url.Parse(firstPage)
	if err != nil {
		return firstPage
	}
	segment := fmt.Sprintf("/p/%d/", n)
	if pageRe.MatchString(u.Path) {
		u.Path = pageRe.ReplaceAllString(u.Path, segment)
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + segment
	}
	u.RawPath = ""
	return u.String()
}
