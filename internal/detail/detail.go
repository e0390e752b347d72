// Package detail turns a listing's own page into the DetailedListing record
// handed to the defect classifier.
package detail

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

const maxOptions = 200

// descriptionSelectors locate the seller's free text, most specific first.
var descriptionSelectors = []string{
	"[itemprop='description']",
	"[data-qa-id='adview_description_container']",
	"[class*='Description']",
	"[class*='description']",
	"#description",
	"article",
	"main",
}

// optionSelectors locate equipment lists (EN, NL, FR, DK wording).
var optionSelectors = []string{
	"[class*='option'] li",
	"[class*='Option'] li",
	"[class*='equipment'] li",
	"[class*='Equipment'] li",
	"[class*='uitrusting'] li",
	"[class*='accessoires'] li",
	"[class*='equipement'] li",
	"[class*='udstyr'] li",
	"[class*='feature'] li",
}

// Builder converts listing pages. It is safe for concurrent use.
type Builder struct{}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build extracts the full description as markdown and the option list.
// Pages without a recognisable description fall back to the listing's
// search-page excerpt.
func (b *Builder) Build(listing scraper.Listing, html string) (scraper.DetailedListing, error) {
	doc := cards.Document(html)
	doc.Find("script, style, noscript").Remove()

	out := scraper.DetailedListing{Listing: listing, Options: []string{}}
	if out.Listing.Title == "" {
		out.Listing.Title = pageTitle(doc)
	}

	if sel := firstMatch(doc, descriptionSelectors); sel != nil {
		inner, err := sel.Html()
		if err != nil {
			return out, fmt.Errorf("failed to read description HTML: %w", err)
		}
		text, err := toMarkdown(inner)
		if err != nil {
			return out, err
		}
		out.FullDescription = text
	}
	if out.FullDescription == "" {
		out.FullDescription = listing.Description
	}

	out.Options = options(doc)
	return out, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := cards.Text(doc.Find("h1").First()); t != "" {
		return cards.Truncate(t, 120)
	}
	return cards.Truncate(cards.Text(doc.Find("title").First()), 120)
}

func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		sel := doc.Find(s).First()
		if sel.Length() > 0 && cards.Text(sel) != "" {
			return sel
		}
	}
	return nil
}

func options(doc *goquery.Document) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range optionSelectors {
		doc.Find(s).Each(func(_ int, li *goquery.Selection) {
			if len(out) >= maxOptions {
				return
			}
			text := cards.Text(li)
			key := strings.ToLower(text)
			if text == "" || seen[key] {
				return
			}
			seen[key] = true
			out = append(out, text)
		})
	}
	return out
}

// toMarkdown renders a description block; technical data tables ("Kilometerstand |
// 120.000 km") become GitHub-flavored tables.
func toMarkdown(fragment string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	text, err := converter.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("failed to convert description to Markdown: %w", err)
	}
	return strings.TrimSpace(text), nil
}
