package market

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbitrage/internal/orchestrator"
	"carbitrage/internal/scraper"
)

func listing(url string, price float64) scraper.Listing {
	return scraper.Listing{
		Title:     "Toyota Yaris Cross 1.5 Hybrid",
		Price:     price,
		Currency:  scraper.CurrencyEUR,
		URL:       url,
		PriceType: scraper.PriceOneOff,
		Year:      scraper.IntPtr(2022),
		Mileage:   scraper.IntPtr(40000),
	}
}

func pool(prefix string, prices ...float64) []scraper.Listing {
	out := make([]scraper.Listing, len(prices))
	for i, p := range prices {
		out[i] = listing(fmt.Sprintf("https://%s.example/%d", prefix, i), p)
	}
	return out
}

func TestShouldFilterListing(t *testing.T) {
	base := listing("https://a", 15000)
	assert.False(t, ShouldFilterListing(base))

	cheap := base
	cheap.Price = 2000
	assert.True(t, ShouldFilterListing(cheap))

	dkk := base
	dkk.Currency, dkk.Price = scraper.CurrencyDKK, 15000 // 1950 EUR
	assert.True(t, ShouldFilterListing(dkk))

	monthly := base
	monthly.PriceType = scraper.PricePerMonth
	assert.True(t, ShouldFilterListing(monthly))

	lease := base
	lease.Description = "Private lease mogelijk"
	assert.True(t, ShouldFilterListing(lease))

	damaged := base
	damaged.Title = "Toyota Yaris accidentée"
	assert.True(t, ShouldFilterListing(damaged))
}

func TestMatchesBrandModel(t *testing.T) {
	ok, reason := MatchesBrandModel("Toyota Yaris 2024", "Toyota", "Yaris Cross")
	assert.False(t, ok)
	assert.Equal(t, "model_token_missing:cross", reason)

	ok, reason = MatchesBrandModel("Toyota Yaris Cross 2024", "Toyota", "Yaris Cross")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, _ = MatchesBrandModel("TOYOTA C-HR 1.8", "toyota", "C-HR")
	assert.True(t, ok)

	ok, reason = MatchesBrandModel("Peugeot 208", "Toyota", "")
	assert.False(t, ok)
	assert.Equal(t, "brand_missing:toyota", reason)
}

func TestFilterListingsByStudy(t *testing.T) {
	old := listing("https://old", 12000)
	old.Year = scraper.IntPtr(2018)
	noYear := listing("https://noyear", 12000)
	noYear.Year = nil
	far := listing("https://far", 12000)
	far.Mileage = scraper.IntPtr(150000)
	noKm := listing("https://nokm", 12000)
	noKm.Mileage = nil
	other := listing("https://other", 12000)
	other.Title = "Toyota Yaris 1.0"
	good := listing("https://good", 12000)

	in := []scraper.Listing{old, noYear, far, noKm, other, good}
	c := Criteria{Brand: "Toyota", Model: "Yaris Cross", Year: 2020, MaxMileage: 100000}

	out := FilterListingsByStudy(in, c)
	require.Len(t, out, 2)
	assert.Equal(t, "https://nokm", out[0].URL)
	assert.Equal(t, "https://good", out[1].URL)

	assert.Equal(t, out, FilterListingsByStudy(out, c))

	capped := FilterListingsByStudy([]scraper.Listing{good}, Criteria{Year: 2020, YearMax: 2021})
	assert.Empty(t, capped)
}

func TestComputeTargetMarketStats(t *testing.T) {
	target := pool("t", 22000, 15900, 17500, 16200, 25000, 16500, 17100, 16800)
	s := ComputeTargetMarketStats(target)
	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 15900.0, s.Min)
	assert.Equal(t, 17500.0, s.Max)
	assert.Equal(t, 16650.0, s.Median)
	assert.Equal(t, 16200.0, s.P25)
	assert.Equal(t, 17100.0, s.P75)
	assert.Equal(t, 16666.67, s.Average)

	assert.Equal(t, Stats{}, ComputeTargetMarketStats(nil))

	odd := ComputeTargetMarketStats(pool("o", 3000, 5000, 4000))
	assert.Equal(t, 4000.0, odd.Median)
	assert.Equal(t, 3000.0, odd.P25)
	assert.Equal(t, 5000.0, odd.P75)
}

func TestStatsIgnoreListingsAboveSixthCheapest(t *testing.T) {
	base := pool("t", 15900, 16200, 16500, 16800, 17100, 17500)
	want := ComputeTargetMarketStats(base)
	for _, extra := range []float64{17500, 18000, 50000, 99999} {
		more := append(append([]scraper.Listing{}, base...), listing(fmt.Sprintf("https://extra/%v", extra), extra))
		assert.Equal(t, want, ComputeTargetMarketStats(more))
		assert.LessOrEqual(t, ComputeTargetMarketStats(more).Count, StatsSampleSize)
	}
}

func TestDetectOpportunityScenario(t *testing.T) {
	target := pool("t", 15900, 16200, 16500, 16800, 17100, 17500, 22000, 25000)
	source := pool("s", 12000, 11500, 11000, 10500, 10000)

	opp := DetectOpportunity(target, source, 5000, DefaultMaxInteresting)
	assert.True(t, opp.HasOpportunity)
	assert.Equal(t, 16650.0, opp.TargetMedianPrice)
	assert.Equal(t, 10000.0, opp.BestSourcePrice)
	assert.Equal(t, 6650.0, opp.PriceDifference)

	var prices []float64
	for _, l := range opp.InterestingListings {
		prices = append(prices, l.Price)
	}
	assert.Equal(t, []float64{10000, 10500, 11000, 11500}, prices)
}

func TestDetectOpportunityEdges(t *testing.T) {
	target := pool("t", 16000, 16000)

	none := DetectOpportunity(target, pool("s", 14000), 5000, 5)
	assert.False(t, none.HasOpportunity)
	assert.Equal(t, 2000.0, none.PriceDifference)
	assert.Empty(t, none.InterestingListings)

	exact := DetectOpportunity(target, pool("s", 11000), 5000, 5)
	assert.True(t, exact.HasOpportunity)
	assert.Len(t, exact.InterestingListings, 1)

	emptySource := DetectOpportunity(target, nil, 5000, 5)
	assert.False(t, emptySource.HasOpportunity)
	assert.NotNil(t, emptySource.InterestingListings)

	emptyTarget := DetectOpportunity(nil, pool("s", 3000), 0, 5)
	assert.False(t, emptyTarget.HasOpportunity)

	capped := DetectOpportunity(pool("t", 30000), pool("s", 5000, 5100, 5200, 5300, 5400, 5500, 5600), 1000, 3)
	require.Len(t, capped.InterestingListings, 3)
	assert.Equal(t, 5000.0, capped.InterestingListings[0].Price)
	assert.Equal(t, 5200.0, capped.InterestingListings[2].Price)
}

type fakeScraper struct {
	results map[string]scraper.SearchResult
	calls   []string
}

func (f *fakeScraper) Scrape(_ context.Context, rawURL string, _ orchestrator.Mode) scraper.SearchResult {
	f.calls = append(f.calls, rawURL)
	return f.results[rawURL]
}

type memorySink struct{ runs []StudyExecutionResult }

func (m *memorySink) SaveStudyRun(_ context.Context, _ Study, res StudyExecutionResult, _, _ []scraper.Listing) error {
	m.runs = append(m.runs, res)
	return nil
}

var study = Study{
	Name:      "yaris-cross",
	TargetURL: "https://www.marktplaats.nl/l/auto-s/q/yaris+cross/",
	SourceURL: "https://www.leboncoin.fr/recherche?text=yaris+cross",
	Criteria:  Criteria{Brand: "Toyota", Model: "Yaris Cross", Year: 2020},
	Threshold: 5000,
}

func TestExecuteOpportunities(t *testing.T) {
	f := &fakeScraper{results: map[string]scraper.SearchResult{
		study.TargetURL: {Listings: pool("t", 15900, 16200, 16500, 16800, 17100, 17500, 22000, 25000)},
		study.SourceURL: {Listings: pool("s", 10000, 10500, 11000, 11500, 12000, 1500)},
	}}
	sink := &memorySink{}
	res := NewExecutor(f, WithSink(sink), WithRunID(func() string { return "run-1" })).Execute(context.Background(), study)

	assert.Equal(t, StatusOpportunities, res.Status)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 16650.0, res.TargetMedianPrice)
	assert.Equal(t, 6650.0, res.PriceDifference)
	assert.Equal(t, 8, res.RawTargetCount)
	assert.Equal(t, 8, res.FilteredTargetCount)
	assert.Equal(t, 6, res.RawSourceCount)
	assert.Equal(t, 5, res.FilteredSourceCount)
	assert.Len(t, res.InterestingListings, 4)
	require.Len(t, sink.runs, 1)
	assert.Equal(t, res, sink.runs[0])
}

func TestExecuteTargetBlockedSkipsSource(t *testing.T) {
	f := &fakeScraper{results: map[string]scraper.SearchResult{
		study.TargetURL: scraper.Blocked("keyword_match:captcha"),
	}}
	res := NewExecutor(f).Execute(context.Background(), study)
	assert.Equal(t, StatusTargetBlocked, res.Status)
	assert.Equal(t, "blocked:keyword_match:captcha", res.TargetError)
	assert.Equal(t, []string{study.TargetURL}, f.calls)
	assert.NotEmpty(t, res.RunID)
}

func TestExecuteTargetFailed(t *testing.T) {
	f := &fakeScraper{results: map[string]scraper.SearchResult{
		study.TargetURL: scraper.Failed("zero_listings:marktplaats"),
	}}
	res := NewExecutor(f).Execute(context.Background(), study)
	assert.Equal(t, StatusNull, res.Status)
	assert.Equal(t, "SCRAPER_FAILED:zero_listings:marktplaats", res.TargetError)
	assert.Len(t, f.calls, 1)
}

func TestExecuteSourceFailureKeepsTargetStats(t *testing.T) {
	f := &fakeScraper{results: map[string]scraper.SearchResult{
		study.TargetURL: {Listings: pool("t", 16000, 17000)},
		study.SourceURL: scraper.Blocked("website_ban:520"),
	}}
	res := NewExecutor(f).Execute(context.Background(), study)
	assert.Equal(t, StatusNull, res.Status)
	assert.Equal(t, 16500.0, res.TargetMedianPrice)
	assert.Equal(t, 2, res.TargetStats.Count)
	assert.Equal(t, "blocked:website_ban:520", res.SourceError)
}

func TestExecuteNoOpportunity(t *testing.T) {
	f := &fakeScraper{results: map[string]scraper.SearchResult{
		study.TargetURL: {Listings: pool("t", 16000, 17000)},
		study.SourceURL: {Listings: pool("s", 15000)},
	}}
	res := NewExecutor(f).Execute(context.Background(), study)
	assert.Equal(t, StatusNull, res.Status)
	assert.Equal(t, 1500.0, res.PriceDifference)
	assert.Empty(t, res.SourceError)
}
