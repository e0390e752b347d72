package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbitrage/internal/fetcher"
	"carbitrage/internal/metrics"
	"carbitrage/internal/scraper"
	_ "carbitrage/internal/sites/generic"
	"carbitrage/internal/sites/marktplaats"
)

const searchURL = "https://www.marktplaats.nl/l/auto-s/toyota/q/yaris/"

// mpPage renders a marktplaats result page with one card per id and a
// pagination bar announcing totalPages (0 for none).
func mpPage(totalPages int, ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="hz-Listing"><a href="/v/auto-s/toyota/m%d-toyota-yaris"><h3 class="hz-Listing-title">Toyota Yaris %d</h3></a><span class="hz-Listing-price">€ %d.500,-</span></li>`, id, id, 10+id)
	}
	b.WriteString("</ul>")
	if totalPages > 0 {
		fmt.Fprintf(&b, `<nav><a href="/l/auto-s/toyota/q/yaris/p/%d/">%d</a></nav>`, totalPages, totalPages)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type scripted struct {
	pages    map[string]func(profile int) (fetcher.Response, error)
	requests []fetcher.Request
}

func (s *scripted) Fetch(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	s.requests = append(s.requests, req)
	fn, ok := s.pages[req.URL]
	if !ok {
		return fetcher.Response{}, errors.New("unexpected url " + req.URL)
	}
	return fn(req.Profile)
}

func (s *scripted) urls() []string {
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.URL
	}
	return out
}

func html(s string) func(int) (fetcher.Response, error) {
	return func(int) (fetcher.Response, error) { return fetcher.Response{HTML: s, StatusCode: 200}, nil }
}

func pageURL(n int) string { return marktplaats.Parser{}.PageURL(searchURL, n) }

type recordedSleeps struct{ d []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.d = append(r.d, d)
	return nil
}

func newTestOrchestrator(f fetcher.Fetcher, sleeps *recordedSleeps, opts ...Option) *Orchestrator {
	cfg := DefaultConfig()
	cfg.PageDelayMin = 300 * time.Millisecond
	cfg.PageDelayMax = 300 * time.Millisecond
	return New(cfg, f, append([]Option{WithSleeper(sleeps.sleep)}, opts...)...)
}

func TestPaginationStopsAfterTwoPagesWithoutNewListings(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL:  html(mpPage(9, 1, 2, 3)),
		pageURL(2): html(mpPage(9, 4, 5)),
		pageURL(3): html(mpPage(9, 1, 2)),
		pageURL(4): html(mpPage(9, 3)),
		pageURL(5): html(mpPage(9, 6)),
	}}
	sleeps := &recordedSleeps{}

	res := newTestOrchestrator(f, sleeps).Scrape(context.Background(), searchURL, ModeFull)

	assert.Equal(t, scraper.OutcomeOK, res.Outcome())
	assert.Len(t, res.Listings, 5)
	assert.Equal(t, 4, res.PagesFetched)
	assert.Equal(t, []string{searchURL, pageURL(2), pageURL(3), pageURL(4)}, f.urls())
	assert.NotContains(t, f.urls(), pageURL(5))
	for _, d := range sleeps.d {
		assert.Equal(t, 300*time.Millisecond, d)
	}
}

func TestPaginationRespectsAnnouncedTotal(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL:  html(mpPage(2, 1)),
		pageURL(2): html(mpPage(2, 2)),
	}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFull)
	assert.Len(t, res.Listings, 2)
	assert.Equal(t, 2, res.PagesFetched)
	assert.Len(t, f.requests, 2)
}

func TestPaginationIterativeModeIsCapped(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){searchURL: html(mpPage(0, 1))}}
	for n := 2; n <= 15; n++ {
		f.pages[pageURL(n)] = html(mpPage(0, n))
	}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFull)
	assert.Len(t, res.Listings, 10)
	assert.Len(t, f.requests, 10)
}

func TestPaginationStopsAfterTwoFailedPages(t *testing.T) {
	fail := func(int) (fetcher.Response, error) { return fetcher.Response{}, fetcher.ErrEmptyBody }
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL:  html(mpPage(6, 1)),
		pageURL(2): fail,
		pageURL(3): func(int) (fetcher.Response, error) { return fetcher.Response{Banned: true}, nil },
		pageURL(4): html(mpPage(6, 4)),
	}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFull)
	assert.Len(t, res.Listings, 1)
	assert.Equal(t, 1, res.PagesFetched)
	assert.NotContains(t, f.urls(), pageURL(4))
}

func TestFollowUpPagesReuseSuccessfulProfile(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL: func(profile int) (fetcher.Response, error) {
			if profile < 2 {
				return fetcher.Response{Banned: true, BanReason: "website_ban:520"}, nil
			}
			return fetcher.Response{HTML: mpPage(2, 1)}, nil
		},
		pageURL(2): html(mpPage(2, 2)),
	}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFull)
	require.Equal(t, scraper.OutcomeOK, res.Outcome())
	require.Len(t, f.requests, 3)
	assert.Equal(t, 1, f.requests[0].Profile)
	assert.Equal(t, 2, f.requests[1].Profile)
	assert.Equal(t, 2, f.requests[2].Profile)
}

func TestFastModeReturnsFirstPageOnly(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){searchURL: html(mpPage(5, 1, 2))}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFast)
	assert.Len(t, res.Listings, 2)
	assert.Equal(t, 1, res.PagesFetched)
	assert.Len(t, f.requests, 1)
}

func TestAttemptsEscalateProfilesWithIncreasingDelays(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL: func(profile int) (fetcher.Response, error) {
			switch profile {
			case 1:
				return fetcher.Response{Banned: true, BanReason: "website_ban:520"}, nil
			case 2:
				return fetcher.Response{HTML: "<html><body>Please complete the captcha</body></html>"}, nil
			}
			return fetcher.Response{HTML: mpPage(0, 1)}, nil
		},
	}}
	sleeps := &recordedSleeps{}
	res := newTestOrchestrator(f, sleeps).Scrape(context.Background(), searchURL, ModeFast)

	assert.Equal(t, scraper.OutcomeBlocked, res.Outcome())
	assert.Equal(t, "keyword_match:captcha", res.BlockReason)
	assert.Len(t, f.requests, 2)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeps.d)

	f.requests = nil
	sleeps.d = nil
	res = newTestOrchestrator(f, sleeps).Scrape(context.Background(), searchURL, ModeFull)
	assert.Equal(t, scraper.OutcomeOK, res.Outcome())
	assert.Len(t, f.requests, 3+2)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, sleeps.d[:2])
}

func TestFetchFailuresExhaustBudget(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL: func(int) (fetcher.Response, error) { return fetcher.Response{}, fetcher.ErrProviderStatus },
	}}
	m := metrics.New()
	res := newTestOrchestrator(f, &recordedSleeps{}, WithMetrics(m)).Scrape(context.Background(), searchURL, ModeFull)
	assert.Equal(t, scraper.OutcomeFailed, res.Outcome())
	assert.Equal(t, scraper.ErrScraperFailed, res.Error)
	assert.False(t, res.BlockedByProvider)
	assert.Len(t, f.requests, 3)
	assert.Empty(t, res.Listings)
	assert.NotNil(t, res.Listings)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("marktplaats", "3", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("marktplaats", "failed")))
}

func TestZeroListingsOnRetryEligibleMarketplace(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL: html("<html><body><p>Geen resultaten</p></body></html>"),
	}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), searchURL, ModeFull)
	assert.Equal(t, "zero_listings:marktplaats", res.ErrorReason)
	assert.Len(t, f.requests, 3)
}

func TestGenericDoesNotRetryOnBanBlockOrZero(t *testing.T) {
	const u = "https://www.example-cars.com/search"
	tests := []struct {
		name    string
		resp    fetcher.Response
		outcome scraper.Outcome
		reason  string
	}{
		{"zero listings", fetcher.Response{HTML: "<html><body><p>Nothing found</p></body></html>"}, scraper.OutcomeFailed, "zero_listings:generic"},
		{"ban", fetcher.Response{Banned: true, BanReason: "website_ban:451"}, scraper.OutcomeBlocked, "website_ban:451"},
		{"block", fetcher.Response{HTML: "<html>Access denied</html>"}, scraper.OutcomeBlocked, "keyword_match:access denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp
			f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
				u: func(int) (fetcher.Response, error) { return resp, nil },
			}}
			res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), u, ModeFull)
			assert.Equal(t, tt.outcome, res.Outcome())
			assert.Equal(t, tt.reason, res.BlockReason+res.ErrorReason)
			assert.Len(t, f.requests, 1)
		})
	}
}

func TestGenericRetriesFetchFailures(t *testing.T) {
	const u = "https://www.example-cars.com/search"
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		u: func(int) (fetcher.Response, error) { return fetcher.Response{}, fetcher.ErrEmptyBody },
	}}
	res := newTestOrchestrator(f, &recordedSleeps{}).Scrape(context.Background(), u, ModeFull)
	assert.Equal(t, scraper.OutcomeFailed, res.Outcome())
	assert.Len(t, f.requests, 3)
}

func TestCanceledDuringBackoff(t *testing.T) {
	f := &scripted{pages: map[string]func(int) (fetcher.Response, error){
		searchURL: func(int) (fetcher.Response, error) { return fetcher.Response{}, fetcher.ErrEmptyBody },
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	res := New(cfg, f).Scrape(ctx, searchURL, ModeFull)
	assert.Equal(t, scraper.OutcomeFailed, res.Outcome())
	assert.Len(t, f.requests, 1)
}

func TestAttempts(t *testing.T) {
	o := New(Config{MaxRetries: 3, FastMaxRetries: 2}, nil)
	assert.Equal(t, 3, o.attempts(ModeFull))
	assert.Equal(t, 2, o.attempts(ModeFast))

	o = New(Config{MaxRetries: 1, FastMaxRetries: 2}, nil)
	assert.Equal(t, 1, o.attempts(ModeFast))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("fast")
	require.NoError(t, err)
	assert.Equal(t, ModeFast, m)
	_, err = ParseMode("slow")
	assert.Error(t, err)
}
