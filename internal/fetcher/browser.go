package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"carbitrage/internal/browser"
)

const (
	idleWindow   = 500 * time.Millisecond
	settleDelay  = 3 * time.Second
	browserLimit = 30 * time.Second
)

// BrowserFetcher renders pages in a local Chromium. Profile 1 waits for the
// load event, profile 2 also waits for network idle, profile 3 adds a settle
// delay on top. The browser is launched lazily and reused.
type BrowserFetcher struct {
	cfg     browser.Config
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	browser *browser.Browser
}

// NewBrowserFetcher returns a fetcher that launches Chromium on first use.
func NewBrowserFetcher(cfg browser.Config, timeout time.Duration, log *zap.Logger) *BrowserFetcher {
	if timeout <= 0 {
		timeout = browserLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BrowserFetcher{cfg: cfg, timeout: timeout, log: log}
}

func (f *BrowserFetcher) ensure() (*browser.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}
	b, err := browser.New(f.cfg)
	if err != nil {
		return nil, err
	}
	f.browser = b
	return b, nil
}

// Fetch navigates to req.URL and returns the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	b, err := f.ensure()
	if err != nil {
		return Response{}, fmt.Errorf("failed to create browser: %w", err)
	}
	page, err := b.NewPage()
	if err != nil {
		return Response{}, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	page = page.Context(ctx)

	if err := page.Navigate(req.URL); err != nil {
		return Response{}, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return Response{}, fmt.Errorf("failed to wait for page load: %w", err)
	}

	profile := ClampProfile(req.Profile)
	if profile >= ProfileGeoJS {
		wait := page.WaitRequestIdle(idleWindow, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia})
		wait()
	}
	if profile >= ProfileGeoWait {
		select {
		case <-ctx.Done():
			return Response{}, fmt.Errorf("settle wait: %w", ctx.Err())
		case <-time.After(settleDelay):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return Response{}, fmt.Errorf("failed to get full HTML: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return Response{}, ErrEmptyBody
	}
	if !strings.Contains(html, "<!DOCTYPE") && !strings.Contains(html, "<!doctype") {
		html = "<!DOCTYPE html>\n" + html
	}
	f.log.Debug("browser fetch done", zap.String("url", req.URL), zap.Int("profile", profile), zap.Int("bytes", len(html)))
	return Response{HTML: html, StatusCode: 200}, nil
}

// Close shuts the browser down if it was launched.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
