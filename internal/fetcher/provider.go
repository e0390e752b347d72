package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"carbitrage/internal/scraper"
)

const (
	profileWaitSeconds = 3
	maxErrorBody       = 4096
)

// geolocations per marketplace, applied from profile 2 on.
var geolocations = map[scraper.Kind]string{
	scraper.KindMarktplaats: "NL",
	scraper.KindGaspedaal:   "NL",
	scraper.KindLeboncoin:   "FR",
	scraper.KindBilbasen:    "DK",
}

type providerAction struct {
	Action  string `json:"action"`
	Timeout int    `json:"timeout"`
}

type providerRequest struct {
	URL         string           `json:"url"`
	BrowserHTML bool             `json:"browserHtml"`
	Geolocation string           `json:"geolocation,omitempty"`
	JavaScript  *bool            `json:"javascript,omitempty"`
	Actions     []providerAction `json:"actions,omitempty"`
}

type providerResponse struct {
	URL         string `json:"url"`
	BrowserHTML string `json:"browserHtml"`
}

type providerError struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// ProviderClient talks to a managed rendering API.
type ProviderClient struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	log      *zap.Logger
}

// ProviderOption customises a ProviderClient.
type ProviderOption func(*ProviderClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *ProviderClient) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *ProviderClient) { p.log = l }
}

// NewProviderClient builds a client. timeout bounds every call.
func NewProviderClient(endpoint, apiKey string, timeout time.Duration, opts ...ProviderOption) *ProviderClient {
	p := &ProviderClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		client:   &http.Client{},
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// buildRequest returns the provider payload for req's profile level.
func buildRequest(req Request) providerRequest {
	body := providerRequest{URL: req.URL, BrowserHTML: true}
	profile := ClampProfile(req.Profile)
	if profile >= ProfileGeoJS {
		body.Geolocation = geolocations[req.Kind]
		js := true
		body.JavaScript = &js
	}
	if profile >= ProfileGeoWait {
		body.Actions = []providerAction{{Action: "waitForTimeout", Timeout: profileWaitSeconds}}
	}
	return body
}

// Fetch posts one render request. Website bans come back as a Banned
// response; every other non-2xx status and an empty page are errors.
func (p *ProviderClient) Fetch(ctx context.Context, req Request) (Response, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode provider request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(p.apiKey, "")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status < 200 || status >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var perr providerError
		_ = json.Unmarshal(raw, &perr)
		if isBan(status, perr) {
			p.log.Debug("provider reported website ban",
				zap.String("url", req.URL), zap.Int("status", status), zap.String("type", perr.Type))
			return Response{StatusCode: status, Banned: true, BanReason: banReason(status, perr)}, nil
		}
		return Response{StatusCode: status}, fmt.Errorf("%w: %d %s", ErrProviderStatus, status, perr.Title)
	}

	var out providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{StatusCode: status}, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if strings.TrimSpace(out.BrowserHTML) == "" {
		return Response{StatusCode: status}, ErrEmptyBody
	}
	return Response{HTML: out.BrowserHTML, StatusCode: status}, nil
}

func isBan(status int, perr providerError) bool {
	return status == 520 || status == http.StatusUnavailableForLegalReasons ||
		strings.Contains(perr.Type, "website-ban")
}

func banReason(status int, perr providerError) string {
	if perr.Type != "" {
		return fmt.Sprintf("website_ban:%d:%s", status, perr.Type)
	}
	return fmt.Sprintf("website_ban:%d", status)
}
