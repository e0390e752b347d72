// Package orchestrator drives one scrape request: the escalating attempt
// loop for the first page, block and ban handling, then pagination with
// deduplication and early stop.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"carbitrage/internal/blocked"
	"carbitrage/internal/fetcher"
	"carbitrage/internal/metrics"
	"carbitrage/internal/scraper"
	"carbitrage/internal/sites/cards"
)

// Mode selects single-page or paginated scraping.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeFull Mode = "full"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeFull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q (want fast or full)", s)
}

// Stop after this many consecutive pages with no new listings, or this many
// consecutive failed page fetches.
const (
	maxZeroNewPages  = 2
	maxFailedPages   = 2
	defaultPageDelay = 300 * time.Millisecond
)

// Config is the scraper configuration injected by the caller.
type Config struct {
	Endpoint       string
	APIKey         string
	MaxRetries     int
	FastMaxRetries int
	RetryDelays    []time.Duration
	RequestTimeout time.Duration
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		FastMaxRetries: 2,
		RetryDelays:    []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
		RequestTimeout: 60 * time.Second,
		PageDelayMin:   300 * time.Millisecond,
		PageDelayMax:   900 * time.Millisecond,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator runs scrape requests. Calls are independent; a single call
// fetches strictly sequentially.
type Orchestrator struct {
	cfg     Config
	fetcher fetcher.Fetcher
	log     *zap.Logger
	metrics *metrics.Recorder
	sleep   Sleeper
	rnd     *rand.Rand
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithMetrics(m *metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithSleeper replaces real waiting, mainly for tests.
func WithSleeper(s Sleeper) Option { return func(o *Orchestrator) { o.sleep = s } }

// WithRand seeds page-delay jitter.
func WithRand(r *rand.Rand) Option { return func(o *Orchestrator) { o.rnd = r } }

// New builds an Orchestrator around f.
func New(cfg Config, f fetcher.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: f,
		log:     zap.NewNop(),
		sleep:   sleepContext,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// retryEligible marketplaces escalate on ban, block and zero listings.
func retryEligible(kind scraper.Kind) bool {
	return kind != scraper.KindGeneric
}

func (o *Orchestrator) attempts(mode Mode) int {
	n := o.cfg.MaxRetries
	if n < 1 {
		n = 1
	}
	if mode == ModeFast && o.cfg.FastMaxRetries > 0 && o.cfg.FastMaxRetries < n {
		n = o.cfg.FastMaxRetries
	}
	return n
}

// retryDelay is the wait after the failed attempt with 0-based index i.
func (o *Orchestrator) retryDelay(i int) time.Duration {
	if len(o.cfg.RetryDelays) == 0 {
		return 0
	}
	if i >= len(o.cfg.RetryDelays) {
		i = len(o.cfg.RetryDelays) - 1
	}
	return o.cfg.RetryDelays[i]
}

func (o *Orchestrator) pageDelay() time.Duration {
	lo, hi := o.cfg.PageDelayMin, o.cfg.PageDelayMax
	if lo <= 0 && hi <= 0 {
		return defaultPageDelay
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(o.rnd.Int63n(int64(hi-lo)+1))
}

// page is one successfully parsed page.
type page struct {
	html    string
	result  scraper.ParseResult
	profile int
}

// Scrape runs one scrape request for rawURL. It never returns a Go error:
// failures are encoded in the SearchResult.
func (o *Orchestrator) Scrape(ctx context.Context, rawURL string, mode Mode) scraper.SearchResult {
	kind := scraper.SelectParserByHostname(rawURL)
	log := o.log.With(zap.String("marketplace", string(kind)), zap.String("url", rawURL), zap.String("mode", string(mode)))

	first, res, ok := o.firstPage(ctx, kind, rawURL, mode, log)
	if !ok {
		o.metrics.Outcome(string(kind), string(res.Outcome()), 0)
		log.Warn("scrape finished without listings",
			zap.String("outcome", string(res.Outcome())),
			zap.String("reason", res.BlockReason+res.ErrorReason))
		return res
	}

	seen := map[string]bool{}
	listings := make([]scraper.Listing, 0, len(first.result.Listings))
	listings = appendNew(listings, seen, first.result.Listings)
	pages := 1

	if pager, isPager := o.paginator(kind); isPager && mode == ModeFull {
		var more int
		listings, more = o.paginate(ctx, pager, kind, rawURL, first, listings, seen, log)
		pages += more
	}

	o.metrics.Outcome(string(kind), string(scraper.OutcomeOK), len(listings))
	log.Info("scrape finished", zap.Int("listings", len(listings)), zap.Int("pages", pages))
	return scraper.SearchResult{Listings: listings, PagesFetched: pages}
}

func (o *Orchestrator) paginator(kind scraper.Kind) (scraper.Paginator, bool) {
	p, ok := scraper.Get(kind)
	if !ok {
		return nil, false
	}
	pager, ok := p.(scraper.Paginator)
	return pager, ok
}

// firstPage runs the escalating attempt loop. The returned result is only
// meaningful when ok is false.
func (o *Orchestrator) firstPage(ctx context.Context, kind scraper.Kind, rawURL string, mode Mode, log *zap.Logger) (page, scraper.SearchResult, bool) {
	attempts := o.attempts(mode)
	eligible := retryEligible(kind)
	final := scraper.Failed(fmt.Sprintf("fetch_failed:%s", kind))

	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := o.sleep(ctx, o.retryDelay(i-1)); err != nil {
				return page{}, scraper.Failed(fmt.Sprintf("canceled:%v", err)), false
			}
		}
		profile := fetcher.ClampProfile(i + 1)
		last := i == attempts-1
		alog := log.With(zap.Int("attempt", i+1), zap.Int("profile", profile))

		resp, err := o.fetcher.Fetch(ctx, fetcher.Request{URL: rawURL, Kind: kind, Profile: profile})
		if err != nil {
			o.metrics.Attempt(string(kind), profile, "error")
			alog.Warn("fetch failed", zap.Error(err))
			final = scraper.Failed(fmt.Sprintf("fetch_failed:%v", err))
			continue
		}
		if resp.Banned {
			o.metrics.Attempt(string(kind), profile, "banned")
			alog.Warn("website ban reported", zap.String("reason", resp.BanReason))
			final = scraper.Blocked(resp.BanReason)
			if eligible && !last {
				continue
			}
			return page{}, final, false
		}

		result := scraper.Parse(kind, resp.HTML, rawURL)
		alog = alog.With(zap.String("strategy", result.Strategy), zap.Int("skipped", result.Skipped), zap.Int("json_errors", result.JSONErrors), zap.Int("off_host", result.OffHost))

		if det := blocked.Detect(resp.HTML, len(result.Listings) > 0); det.IsBlocked {
			o.metrics.Attempt(string(kind), profile, "blocked")
			alog.Warn("blocked content detected", zap.String("reason", det.Describe()))
			final = scraper.Blocked(det.Describe())
			if eligible && !last {
				continue
			}
			return page{}, final, false
		}
		if len(result.Listings) == 0 {
			o.metrics.Attempt(string(kind), profile, "empty")
			alog.Warn("no listings parsed")
			final = scraper.Failed(fmt.Sprintf("zero_listings:%s", kind))
			if eligible && !last {
				continue
			}
			return page{}, final, false
		}

		o.metrics.Attempt(string(kind), profile, "ok")
		o.metrics.Page(string(kind))
		alog.Info("page parsed", zap.Int("page", 1), zap.Int("listings", len(result.Listings)))
		return page{html: resp.HTML, result: result, profile: profile}, scraper.SearchResult{}, true
	}
	return page{}, final, false
}

// paginate fetches pages 2.. with the profile that worked for page 1 and
// returns the accumulated listings and the number of extra pages parsed.
func (o *Orchestrator) paginate(ctx context.Context, pager scraper.Paginator, kind scraper.Kind, rawURL string, first page, listings []scraper.Listing, seen map[string]bool, log *zap.Logger) ([]scraper.Listing, int) {
	limit := pager.MaxPages()
	total := pager.TotalPages(first.html)
	if total > 0 && total < limit {
		limit = total
	}
	log.Debug("pagination planned", zap.Int("total_pages", total), zap.Int("limit", limit))

	fetched, zeroNew, failed := 0, 0, 0
	for n := 2; n <= limit; n++ {
		if err := o.sleep(ctx, o.pageDelay()); err != nil {
			break
		}
		pageURL := pager.PageURL(rawURL, n)
		plog := log.With(zap.Int("page", n), zap.String("page_url", pageURL))

		result, ok := o.fetchPage(ctx, kind, pageURL, first.profile, plog)
		if !ok {
			failed++
			if failed >= maxFailedPages {
				plog.Info("stopping pagination after consecutive failed pages")
				break
			}
			continue
		}
		failed = 0
		fetched++

		before := len(listings)
		listings = appendNew(listings, seen, result.Listings)
		added := len(listings) - before
		plog.Info("page parsed", zap.Int("listings", len(result.Listings)), zap.Int("new_unique", added))

		if added == 0 {
			zeroNew++
			if zeroNew >= maxZeroNewPages {
				plog.Info("stopping pagination after pages without new listings")
				break
			}
			continue
		}
		zeroNew = 0
	}
	return listings, fetched
}

// fetchPage makes the single attempt allowed for a follow-up page.
func (o *Orchestrator) fetchPage(ctx context.Context, kind scraper.Kind, pageURL string, profile int, log *zap.Logger) (scraper.ParseResult, bool) {
	resp, err := o.fetcher.Fetch(ctx, fetcher.Request{URL: pageURL, Kind: kind, Profile: profile})
	if err != nil {
		o.metrics.Attempt(string(kind), profile, "error")
		log.Warn("page fetch failed", zap.Error(err))
		return scraper.ParseResult{}, false
	}
	if resp.Banned {
		o.metrics.Attempt(string(kind), profile, "banned")
		log.Warn("page banned", zap.String("reason", resp.BanReason))
		return scraper.ParseResult{}, false
	}
	result := scraper.Parse(kind, resp.HTML, pageURL)
	if det := blocked.Detect(resp.HTML, len(result.Listings) > 0); det.IsBlocked {
		o.metrics.Attempt(string(kind), profile, "blocked")
		log.Warn("page blocked", zap.String("reason", det.Describe()))
		return scraper.ParseResult{}, false
	}
	o.metrics.Attempt(string(kind), profile, "ok")
	o.metrics.Page(string(kind))
	return result, true
}

// appendNew adds listings whose normalized URL has not been seen yet.
func appendNew(dst []scraper.Listing, seen map[string]bool, src []scraper.Listing) []scraper.Listing {
	for _, l := range src {
		key := cards.NormalizeURL(l.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, l)
	}
	return dst
}
