package gaspedaal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbitrage/internal/extractor"
)

const searchURL = "https://www.gaspedaal.nl/toyota/yaris"

func readFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestParseCards(t *testing.T) {
	extractor.SetYearCeiling(2025)
	defer extractor.SetYearCeiling(0)

	res := Parser{}.Parse(readFixture(t, "search_cards.html"), searchURL)
	assert.Equal(t, "html_cards:[class*='occasion-item']", res.Strategy)
	require.Len(t, res.Listings, 2)

	a := res.Listings[0]
	assert.Equal(t, "Toyota Yaris 1.5 Hybrid Active", a.Title)
	assert.Equal(t, "https://www.autotrader.nl/auto/toyota-yaris-1-5-hybrid-active-12345", a.URL)
	assert.Equal(t, 17945.0, a.Price)
	require.NotNil(t, a.Year)
	assert.Equal(t, 2020, *a.Year)
	require.NotNil(t, a.Mileage)
	assert.Equal(t, 58123, *a.Mileage)
	require.NotNil(t, a.ThumbnailURL)
	assert.Equal(t, "https://cdn.gaspedaal.nl/img/12345.jpg", *a.ThumbnailURL)

	b := res.Listings[1]
	assert.Equal(t, "https://www.gaspedaal.nl/toyota/yaris/occasion/67890", b.URL)
	assert.Equal(t, 9750.0, b.Price)

	for _, l := range res.Listings {
		assert.NotRegexp(t, filterLink, l.URL)
	}
}

func TestParseFallsBackToScriptJSON(t *testing.T) {
	extractor.SetYearCeiling(2025)
	defer extractor.SetYearCeiling(0)

	res := Parser{}.Parse(readFixture(t, "search_json.html"), searchURL)
	assert.Equal(t, StrategyJSON, res.Strategy)
	assert.Equal(t, 1, res.Skipped, "the facet link is rejected")
	require.Len(t, res.Listings, 2)

	a := res.Listings[0]
	assert.Equal(t, 19450.0, a.Price)
	require.NotNil(t, a.Year)
	assert.Equal(t, 2021, *a.Year)
	require.NotNil(t, a.Mileage)
	assert.Equal(t, 41000, *a.Mileage)
	require.NotNil(t, a.ThumbnailURL)

	b := res.Listings[1]
	assert.Equal(t, "https://www.gaspedaal.nl/toyota/yaris/occasion/a2", b.URL)
	assert.Equal(t, 8250.0, b.Price)
	require.NotNil(t, b.Mileage)
	assert.Equal(t, 121000, *b.Mileage)
	require.NotNil(t, b.Year)
	assert.Equal(t, 2014, *b.Year)
}

func TestFilterLink(t *testing.T) {
	for _, link := range []string{
		"https://www.gaspedaal.nl/toyota/yaris-tot-15000",
		"https://www.gaspedaal.nl/toyota/yaris/vanaf-2018",
		"https://www.gaspedaal.nl/zoeken?merk=toyota",
		"https://www.gaspedaal.nl/toyota/yaris?page=3",
	} {
		assert.Regexp(t, filterLink, link)
	}
	assert.NotRegexp(t, filterLink, "https://www.gaspedaal.nl/toyota/yaris/occasion/67890")
}

func TestParseIsDeterministic(t *testing.T) {
	html := readFixture(t, "search_cards.html")
	first := Parser{}.Parse(html, searchURL)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Parser{}.Parse(html, searchURL))
	}
}
