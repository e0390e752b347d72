package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"carbitrage/internal/market"
	"carbitrage/internal/scraper"
)

var listingHeaders = []string{"Title", "Price", "Currency", "Price EUR", "Year", "Mileage", "Price Type", "URL"}

func listingRow(l scraper.Listing) []string {
	return []string{
		l.Title,
		strconv.FormatFloat(l.Price, 'f', -1, 64),
		string(l.Currency),
		strconv.FormatFloat(scraper.PriceEUR(l), 'f', -1, 64),
		optInt(l.Year),
		optInt(l.Mileage),
		string(l.PriceType),
		l.URL,
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func eur(v float64) string {
	return "€" + strconv.FormatFloat(v, 'f', 0, 64)
}

func listingsCSV(listings []scraper.Listing) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(listingHeaders); err != nil {
		return "", err
	}
	for _, l := range listings {
		if err := w.Write(listingRow(l)); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func listingsText(sb *strings.Builder, listings []scraper.Listing) {
	for i, l := range listings {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s %s", i+1, l.Title, strconv.FormatFloat(l.Price, 'f', -1, 64), l.Currency))
		if l.Year != nil {
			sb.WriteString(fmt.Sprintf(" | %d", *l.Year))
		}
		if l.Mileage != nil {
			sb.WriteString(fmt.Sprintf(" | %d km", *l.Mileage))
		}
		if l.PriceType == scraper.PricePerMonth {
			sb.WriteString(" | per month")
		}
		sb.WriteString("\n   " + l.URL + "\n\n")
	}
}

func listingsMarkdown(listings []scraper.Listing) string {
	rows := make([][]string, len(listings))
	for i, l := range listings {
		row := listingRow(l)
		row[0] = fmt.Sprintf("[%s](%s)", l.Title, l.URL)
		rows[i] = row[:len(row)-1]
	}
	return markdownTable(listingHeaders[:len(listingHeaders)-1], rows)
}

// SearchContent is the result of one scrape request.
type SearchContent struct {
	URL         string               `json:"url"`
	Marketplace scraper.Kind         `json:"marketplace"`
	Result      scraper.SearchResult `json:"result"`
	// Hash is the listing-pool fingerprint, when computed.
	Hash string `json:"hash,omitempty"`
	// Strategy is set for offline parser runs.
	Strategy string `json:"strategy,omitempty"`
}

func (c *SearchContent) status() string {
	r := c.Result
	switch r.Outcome() {
	case scraper.OutcomeBlocked:
		return "blocked by provider: " + r.BlockReason
	case scraper.OutcomeFailed:
		return fmt.Sprintf("%s: %s", r.Error, r.ErrorReason)
	}
	return fmt.Sprintf("%d listings from %d page(s)", len(r.Listings), r.PagesFetched)
}

func (c *SearchContent) ToText() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)\n%s\n", c.URL, c.Marketplace, c.status()))
	if c.Strategy != "" {
		sb.WriteString("strategy: " + c.Strategy + "\n")
	}
	if c.Hash != "" {
		sb.WriteString("hash: " + c.Hash + "\n")
	}
	sb.WriteString("\n")
	listingsText(&sb, c.Result.Listings)
	return sb.String(), nil
}

func (c *SearchContent) ToMarkdown() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s search\n\n", c.Marketplace))
	sb.WriteString(fmt.Sprintf("<%s>\n\n%s\n\n", c.URL, c.status()))
	if c.Hash != "" {
		sb.WriteString(fmt.Sprintf("Pool hash: `%s`\n\n", c.Hash))
	}
	if len(c.Result.Listings) > 0 {
		sb.WriteString(listingsMarkdown(c.Result.Listings))
	}
	return sb.String(), nil
}

func (c *SearchContent) ToCSV() (string, error) {
	return listingsCSV(c.Result.Listings)
}

func (c *SearchContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// MultiSearchContent bundles several scrape results, in argument order.
type MultiSearchContent struct {
	Searches []*SearchContent `json:"searches"`
}

func (c *MultiSearchContent) ToText() (string, error) {
	parts := make([]string, 0, len(c.Searches))
	for _, s := range c.Searches {
		t, _ := s.ToText()
		parts = append(parts, t)
	}
	return strings.Join(parts, "---\n"), nil
}

func (c *MultiSearchContent) ToMarkdown() (string, error) {
	parts := make([]string, 0, len(c.Searches))
	for _, s := range c.Searches {
		m, _ := s.ToMarkdown()
		parts = append(parts, m)
	}
	return strings.Join(parts, "\n"), nil
}

// ToCSV writes one table with a leading search URL column.
func (c *MultiSearchContent) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{"Search"}, listingHeaders...)); err != nil {
		return "", err
	}
	for _, s := range c.Searches {
		for _, l := range s.Result.Listings {
			if err := w.Write(append([]string{s.URL}, listingRow(l)...)); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func (c *MultiSearchContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// StudyContent is one study execution.
type StudyContent struct {
	Study  market.Study                `json:"study"`
	Result market.StudyExecutionResult `json:"result"`
}

func (c *StudyContent) summary() [][2]string {
	r := c.Result
	s := r.TargetStats
	rows := [][2]string{
		{"Status", string(r.Status)},
		{"Run", r.RunID},
		{"Target listings (filtered/raw)", fmt.Sprintf("%d/%d", r.FilteredTargetCount, r.RawTargetCount)},
		{"Source listings (filtered/raw)", fmt.Sprintf("%d/%d", r.FilteredSourceCount, r.RawSourceCount)},
		{"Target median", eur(r.TargetMedianPrice)},
		{"Target range", fmt.Sprintf("%s - %s (p25 %s, p75 %s, n=%d)", eur(s.Min), eur(s.Max), eur(s.P25), eur(s.P75), s.Count)},
		{"Best source price", eur(r.BestSourcePrice)},
		{"Price difference", eur(r.PriceDifference)},
	}
	if r.TargetError != "" {
		rows = append(rows, [2]string{"Target error", r.TargetError})
	}
	if r.SourceError != "" {
		rows = append(rows, [2]string{"Source error", r.SourceError})
	}
	return rows
}

func (c *StudyContent) ToText() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Study %s %s (from %d)\n", c.Study.Criteria.Brand, c.Study.Criteria.Model, c.Study.Criteria.Year))
	for _, kv := range c.summary() {
		sb.WriteString(fmt.Sprintf("%-32s %s\n", kv[0]+":", kv[1]))
	}
	if len(c.Result.InterestingListings) > 0 {
		sb.WriteString("\nInteresting listings:\n")
		listingsText(&sb, c.Result.InterestingListings)
	}
	return sb.String(), nil
}

func (c *StudyContent) ToMarkdown() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Study: %s %s\n\n", c.Study.Criteria.Brand, c.Study.Criteria.Model))
	sb.WriteString(fmt.Sprintf("Target: <%s>  \nSource: <%s>\n\n", c.Study.TargetURL, c.Study.SourceURL))
	rows := make([][]string, 0, 10)
	for _, kv := range c.summary() {
		rows = append(rows, []string{kv[0], kv[1]})
	}
	sb.WriteString(markdownTable([]string{"Field", "Value"}, rows))
	if len(c.Result.InterestingListings) > 0 {
		sb.WriteString("\n## Interesting listings\n\n")
		sb.WriteString(listingsMarkdown(c.Result.InterestingListings))
	}
	return sb.String(), nil
}

// ToCSV lists the interesting listings.
func (c *StudyContent) ToCSV() (string, error) {
	return listingsCSV(c.Result.InterestingListings)
}

func (c *StudyContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// DetailContent wraps the classifier hand-off record.
type DetailContent struct {
	Detail scraper.DetailedListing
}

func (c *DetailContent) ToText() (string, error) {
	var sb strings.Builder
	listingsText(&sb, []scraper.Listing{c.Detail.Listing})
	sb.WriteString(c.Detail.FullDescription + "\n")
	if len(c.Detail.Options) > 0 {
		sb.WriteString("\nOptions:\n")
		for _, o := range c.Detail.Options {
			sb.WriteString("  - " + o + "\n")
		}
	}
	return sb.String(), nil
}

func (c *DetailContent) ToMarkdown() (string, error) {
	var sb strings.Builder
	l := c.Detail.Listing
	title := l.Title
	if title == "" {
		title = l.URL
	}
	sb.WriteString(fmt.Sprintf("# [%s](%s)\n\n", title, l.URL))
	if l.Price > 0 {
		sb.WriteString(fmt.Sprintf("%s %s\n\n", strconv.FormatFloat(l.Price, 'f', -1, 64), l.Currency))
	}
	sb.WriteString(c.Detail.FullDescription + "\n")
	if len(c.Detail.Options) > 0 {
		sb.WriteString("\n## Options\n\n")
		for _, o := range c.Detail.Options {
			sb.WriteString("- " + o + "\n")
		}
	}
	return sb.String(), nil
}

func (c *DetailContent) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"URL", "Title", "Options", "Description"})
	_ = w.Write([]string{c.Detail.Listing.URL, c.Detail.Listing.Title, strings.Join(c.Detail.Options, "; "), c.Detail.FullDescription})
	w.Flush()
	return buf.String(), w.Error()
}

func (c *DetailContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c.Detail, "", "  ")
}

// RunsContent lists stored study runs.
type RunsContent struct {
	Runs []market.StudyExecutionResult `json:"runs"`
}

var runHeaders = []string{"Run", "Status", "Target median", "Best source", "Difference", "Interesting"}

func runRow(r market.StudyExecutionResult) []string {
	return []string{r.RunID, string(r.Status), eur(r.TargetMedianPrice), eur(r.BestSourcePrice),
		eur(r.PriceDifference), strconv.Itoa(len(r.InterestingListings))}
}

func (c *RunsContent) ToText() (string, error) {
	if len(c.Runs) == 0 {
		return "No stored runs\n", nil
	}
	var sb strings.Builder
	for _, r := range c.Runs {
		sb.WriteString(strings.Join(runRow(r), "  ") + "\n")
	}
	return sb.String(), nil
}

func (c *RunsContent) ToMarkdown() (string, error) {
	rows := make([][]string, 0, len(c.Runs))
	for _, r := range c.Runs {
		rows = append(rows, runRow(r))
	}
	return markdownTable(runHeaders, rows), nil
}

func (c *RunsContent) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(runHeaders); err != nil {
		return "", err
	}
	for _, r := range c.Runs {
		if err := w.Write(runRow(r)); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func (c *RunsContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
