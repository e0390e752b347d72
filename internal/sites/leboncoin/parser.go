// Package leboncoin parses leboncoin.fr car search pages from their
// embedded __NEXT_DATA__ payload.
package leboncoin

import (
	"net/url"
	"strconv"

	"carbitrage/internal/extractor"
	"carbitrage/internal/jsonvalue"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const (
	origin     = "https://www.leboncoin.fr"
	scriptID   = "__NEXT_DATA__"
	maxPages   = 20
	adURLShape = origin + "/ad/voitures/"

	StrategyKnownPath  = "next_data_path"
	StrategyDeepSearch = "next_data_search"
	StrategyNone       = "none"
)

// adPaths are the known locations of the ads array, tried in order.
var adPaths = [][]string{
	{"props", "pageProps", "searchData", "ads"},
	{"props", "pageProps", "initialProps", "searchData", "ads"},
	{"props", "pageProps", "ads"},
}

// Parser handles leboncoin.fr.
type Parser struct{}

func init() {
	scraper.Register(Parser{})
}

func (Parser) Kind() scraper.Kind { return scraper.KindLeboncoin }

func (Parser) Parse(html, sourceURL string) scraper.ParseResult {
	root, jsonErrors := nextData(html)
	if root == nil {
		return scraper.ParseResult{Listings: []scraper.Listing{}, Strategy: StrategyNone, JSONErrors: jsonErrors}
	}

	strategy := StrategyKnownPath
	ads := knownAds(root)
	if ads == nil {
		strategy = StrategyDeepSearch
		ads = jsonvalue.FindArray(root, func(o *jsonvalue.Value) bool {
			return o.Get("subject") != nil && o.Get("price") != nil
		})
	}

	col := cards.NewCollector()
	for _, ad := range ads.Array() {
		col.Add(mapAd(ad))
	}
	return col.Result(strategy)
}

func nextData(html string) (*jsonvalue.Value, int) {
	body, ok := jsonvalue.ScriptByID(html, scriptID)
	if !ok {
		return nil, 0
	}
	root, err := jsonvalue.ParseScript(body)
	if err != nil {
		return nil, 1
	}
	return root, 0
}

func knownAds(root *jsonvalue.Value) *jsonvalue.Value {
	for _, path := range adPaths {
		if ads := root.Path(path...); len(ads.Array()) > 0 {
			return ads
		}
	}
	return nil
}

func mapAd(ad *jsonvalue.Value) cards.Candidate {
	c := cards.Candidate{
		Title:    ad.Get("subject").Text(),
		Text:     ad.Get("body").Text(),
		Currency: scraper.CurrencyEUR,
	}

	price := ad.Get("price")
	if price.Array() != nil {
		price = price.Index(0)
	}
	if p, ok := price.Float(); ok {
		c.Price = p
	} else if cents, ok := ad.Get("price_cents").Float(); ok {
		c.Price = cents / 100
	}

	if link := ad.Get("url").Text(); link != "" {
		c.URL = cards.AbsoluteURL(origin, link)
	} else if id := ad.Get("list_id").Text(); id != "" {
		c.URL = adURLShape + id
	}

	attrs := attributes(ad.Get("attributes"))
	if km, ok := extractor.ParseInt(attrs["mileage"]); ok && km > 0 && km < 1000000 {
		c.Mileage = scraper.IntPtr(km)
	}
	if y, ok := extractor.ExtractYear(attrs["regdate"]); ok {
		c.Year = scraper.IntPtr(y)
	}

	images := ad.Get("images")
	c.Thumbnail = cards.AbsoluteURL(origin, jsonvalue.First(images, "thumb_url", "small_url").Text())
	if c.Thumbnail == "" {
		c.Thumbnail = cards.AbsoluteURL(origin, images.Get("urls").Index(0).Text())
	}
	return c
}

// attributes flattens either [{key, value}] or {key: value} into a map.
func attributes(v *jsonvalue.Value) map[string]string {
	out := map[string]string{}
	switch {
	case v == nil:
	case v.Kind == jsonvalue.Array:
		for _, a := range v.Items {
			key := a.Get("key").Text()
			if key == "" {
				continue
			}
			if _, seen := out[key]; !seen {
				out[key] = jsonvalue.First(a, "value", "value_label").Text()
			}
		}
	case v.Kind == jsonvalue.Object:
		for _, m := range v.Members {
			out[m.Key] = m.Value.Text()
		}
	}
	return out
}

func (Parser) MaxPages() int { return maxPages }

// TotalPages reads totalPages (or max_pages) from the embedded payload.
func (Parser) TotalPages(html string) int {
	root, _ := nextData(html)
	if root == nil {
		return 0
	}
	v := jsonvalue.FindKey(root, "totalPages", "max_pages")
	n, ok := v.Float()
	if !ok || n < 1 {
		return 0
	}
	return int(n)
}

// PageURL sets the page query parameter.
func (Parser) PageURL(firstPage string, n int) string {
	u, err := url.Parse(firstPage)
	if err != nil {
		return firstPage
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}
