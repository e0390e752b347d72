// Package fetcher retrieves rendered search pages, either through an
// external rendering provider or a local headless browser.
package fetcher

import (
	"context"
	"errors"

	"carbitrage/internal/scraper"
)

// Profile levels escalate across retries.
const (
	ProfilePlain   = 1 // plain render request
	ProfileGeoJS   = 2 // + geolocation and JS execution
	ProfileGeoWait = 3 // + fixed wait after JS load
	MaxProfile     = ProfileGeoWait
)

var (
	// ErrEmptyBody is returned when a fetch succeeds but carries no HTML.
	ErrEmptyBody = errors.New("empty HTML body")
	// ErrProviderStatus wraps non-success provider responses.
	ErrProviderStatus = errors.New("provider returned non-success status")
)

// Request is one page fetch.
type Request struct {
	URL     string
	Kind    scraper.Kind
	Profile int
}

// Response is a fetched page. Banned responses carry no HTML and are not
// errors: the orchestrator decides whether to escalate.
type Response struct {
	HTML       string
	StatusCode int
	Banned     bool
	BanReason  string
}

// Fetcher fetches one page. Any error counts as a failed fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Fetch(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// ClampProfile keeps a profile level within [ProfilePlain, MaxProfile].
func ClampProfile(p int) int {
	if p < ProfilePlain {
		return ProfilePlain
	}
	if p > MaxProfile {
		return MaxProfile
	}
	return p
}
