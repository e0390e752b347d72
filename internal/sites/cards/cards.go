// Package cards holds the helpers every marketplace parser shares: turning an
// HTML card or JSON object into a candidate, and a candidate into a Listing.
package cards

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carbitrage/internal/extractor"
	"carbitrage/internal/jsonvalue"
	"carbitrage/internal/scraper"
)

const (
	descriptionLimit = 500
	titleLimit       = 120
)

// Document parses html, returning an empty document on failure so callers
// can treat broken markup as "no cards".
func Document(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return doc
}

// Text returns the selection's text with whitespace collapsed.
func Text(s *goquery.Selection) string {
	return Collapse(s.Text())
}

// StripHTML returns the visible text of an HTML fragment.
func StripHTML(fragment string) string {
	return Text(Document(fragment).Selection)
}

// Collapse folds runs of whitespace into single spaces.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// AbsoluteURL resolves href against base. Only http(s) results are returned.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

// NormalizeURL strips query and fragment. It is the dedup key across cards
// and pages.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// Title picks a card title: a titled anchor, a heading, a title-ish element
// and finally an image alt text.
func Title(s *goquery.Selection) string {
	if t, ok := s.Find("a[title]").First().Attr("title"); ok && Collapse(t) != "" {
		return Truncate(Collapse(t), titleLimit)
	}
	for _, sel := range []string{"h2", "h3", "h1", "[class*='title']", "[class*='Title']"} {
		if t := Text(s.Find(sel).First()); t != "" {
			return Truncate(t, titleLimit)
		}
	}
	if alt, ok := s.Find("img[alt]").First().Attr("alt"); ok && Collapse(alt) != "" {
		return Truncate(Collapse(alt), titleLimit)
	}
	return ""
}

// Thumbnail returns the first usable image URL of a card.
func Thumbnail(s *goquery.Selection, base string) string {
	var found string
	s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		for _, attr := range []string{"data-src", "src", "srcset"} {
			v, ok := img.Attr(attr)
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if attr == "srcset" {
				first := strings.Fields(strings.Split(v, ",")[0])
				if len(first) == 0 {
					continue
				}
				v = first[0]
			}
			if v == "" || strings.HasPrefix(v, "data:") {
				continue
			}
			if abs := AbsoluteURL(base, v); abs != "" {
				found = abs
				return false
			}
		}
		return true
	})
	return found
}

// Candidate is a partially extracted listing. Zero values mean "unknown";
// Year and Mileage left nil are looked up in Title and Text.
type Candidate struct {
	Title     string
	URL       string
	Text      string
	Price     float64
	Currency  scraper.Currency
	PriceType scraper.PriceType
	Year      *int
	Mileage   *int
	Thumbnail string
}

// Listing validates the candidate. Without a positive price and an absolute
// URL there is no listing.
func (c Candidate) Listing() (scraper.Listing, bool) {
	if c.Price <= 0 || AbsoluteURL("", c.URL) == "" {
		return scraper.Listing{}, false
	}
	text := Collapse(c.Text)
	title := Collapse(c.Title)
	if title == "" {
		title = Truncate(text, titleLimit)
	}
	currency := c.Currency
	if currency == "" {
		currency = scraper.CurrencyEUR
	}
	both := title + " " + text

	priceType := c.PriceType
	if priceType == "" {
		priceType = scraper.PriceOneOff
		if extractor.IsPriceMonthly(both) {
			priceType = scraper.PricePerMonth
		}
	}

	year := c.Year
	if year == nil {
		if y, ok := extractor.ExtractYear(both); ok {
			year = scraper.IntPtr(y)
		}
	}
	mileage := c.Mileage
	if mileage == nil {
		if km, ok := extractor.ExtractMileage(both); ok {
			mileage = scraper.IntPtr(km)
		}
	}

	return scraper.Listing{
		Title:        title,
		Price:        c.Price,
		Currency:     currency,
		Mileage:      mileage,
		Year:         year,
		URL:          AbsoluteURL("", c.URL),
		Description:  Truncate(text, descriptionLimit),
		PriceType:    priceType,
		ThumbnailURL: scraper.StringPtr(c.Thumbnail),
	}, true
}

// FromText builds a candidate from free card text, extracting the price with
// the EUR-then-DKK extractor.
func FromText(title, link, text string) Candidate {
	c := Candidate{Title: title, URL: link, Text: text}
	if m, ok := extractor.ExtractPrice(title + " " + text); ok {
		c.Price, c.Currency = m.Amount, m.Currency
	}
	return c
}

// Collector accumulates listings in document order, dropping duplicates by
// normalized URL and counting rejected candidates.
type Collector struct {
	seen     map[string]bool
	listings []scraper.Listing
	Skipped  int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: map[string]bool{}}
}

// Add keeps c if it forms a valid, not yet seen listing.
func (col *Collector) Add(c Candidate) bool {
	l, ok := c.Listing()
	if !ok {
		col.Skipped++
		return false
	}
	key := NormalizeURL(l.URL)
	if col.seen[key] {
		return false
	}
	col.seen[key] = true
	col.listings = append(col.listings, l)
	return true
}

// Len reports how many listings were kept.
func (col *Collector) Len() int { return len(col.listings) }

// Result packages the collected listings.
func (col *Collector) Result(strategy string) scraper.ParseResult {
	listings := col.listings
	if listings == nil {
		listings = []scraper.Listing{}
	}
	return scraper.ParseResult{Listings: listings, Strategy: strategy, Skipped: col.Skipped}
}

var (
	jsonURLKeys   = []string{"url", "link", "href", "detailUrl", "vipUrl"}
	jsonTitleKeys = []string{"title", "name", "subject"}
	jsonPriceKeys = []string{"price", "priceValue", "amount", "priceInfo"}
)

// JSONListingShaped reports whether an object owns a URL-like, a title-like
// and a price-like field at once.
func JSONListingShaped(o *jsonvalue.Value) bool {
	return jsonvalue.HasAny(o, jsonURLKeys...) &&
		jsonvalue.HasAny(o, jsonTitleKeys...) &&
		jsonvalue.HasAny(o, jsonPriceKeys...)
}

// FromJSON maps a listing-shaped object using the common field names.
// Prices may be numbers, numeric strings, price text or {amount|value}
// objects.
func FromJSON(o *jsonvalue.Value, origin string) Candidate {
	c := Candidate{
		Title: jsonvalue.First(o, jsonTitleKeys...).Text(),
		URL:   AbsoluteURL(origin, jsonvalue.First(o, jsonURLKeys...).Text()),
		Text:  jsonvalue.First(o, "description", "subtitle", "body").Text(),
	}
	price := jsonvalue.First(o, jsonPriceKeys...)
	if price != nil && price.Kind == jsonvalue.Object {
		if cents, ok := price.Get("priceCents").Float(); ok {
			c.Price = cents / 100
		}
		price = jsonvalue.First(price, "amount", "value")
	}
	if c.Price == 0 && price != nil {
		if price.Kind == jsonvalue.Number {
			c.Price = price.Number
		} else if m, ok := extractor.ExtractPrice(price.Text()); ok {
			c.Price, c.Currency = m.Amount, m.Currency
		} else if p, ok := extractor.ParseInt(price.Text()); ok {
			c.Price = float64(p)
		}
	}
	if y, ok := extractor.ExtractYear(jsonvalue.First(o, "year", "buildYear", "bouwjaar", "constructionYear").Text()); ok {
		c.Year = scraper.IntPtr(y)
	}
	if km, ok := extractor.ParseInt(jsonvalue.First(o, "mileage", "kilometers", "km", "kilometerstand").Text()); ok && km > 0 && km < 1000000 {
		c.Mileage = scraper.IntPtr(km)
	}
	if img := jsonvalue.First(o, "image", "imageUrl", "thumbnail", "thumbnailUrl"); img != nil {
		if img.Kind == jsonvalue.Object {
			img = jsonvalue.First(img, "url", "src")
		}
		c.Thumbnail = AbsoluteURL(origin, img.Text())
	} else if imgs := jsonvalue.First(o, "images", "photos"); imgs != nil {
		first := imgs.Index(0)
		if first != nil && first.Kind == jsonvalue.Object {
			first = jsonvalue.First(first, "url", "src")
		}
		c.Thumbnail = AbsoluteURL(origin, first.Text())
	}
	return c
}

// ScriptListings deep-searches every JSON script block for listing-shaped
// objects, accept filters candidate objects before mapping.
func ScriptListings(html, origin string, accept func(*jsonvalue.Value) bool, strategy string) scraper.ParseResult {
	col := NewCollector()
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
		for _, obj := range jsonvalue.FindObjects(root, JSONListingShaped) {
			if accept != nil && !accept(obj) {
				col.Skipped++
				continue
			}
			col.Add(FromJSON(obj, origin))
		}
	}
	res := col.Result(strategy)
	res.JSONErrors = jsonErrors
	return res
}
