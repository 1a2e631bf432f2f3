// Package fetcher loads the page a session annotates: a single HTTP GET
// that produces a Snapshot, plus a signal telling whether the HTML carries
// enough text to be used without a browser.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/glossmark/idgen"
	"github.com/hazyhaar/glossmark/mutation"
)

// ErrStatus is returned for non-2xx responses.
var ErrStatus = errors.New("fetcher: unexpected status")

// Result is the outcome of an HTTP fetch.
type Result struct {
	Snapshot   mutation.Snapshot
	Sufficient bool // enough text to skip rendering
	StatusCode int
}

// Fetcher performs HTTP GETs and produces Snapshots.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	minText  int
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithMaxBytes caps the body size. Default: 10MB.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithMinText sets the visible text needed for a page to be sufficient.
// Default: 200.
func WithMinText(n int) Option {
	return func(f *Fetcher) { f.minText = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; glossmark/1.0)",
		maxBytes: 10 << 20,
		minText:  200,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs a URL and returns a Snapshot of its body.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, pageID string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	res := &Result{
		Snapshot: mutation.Snapshot{
			ID:        idgen.New(),
			PageURL:   pageURL,
			PageID:    pageID,
			HTML:      body,
			HTMLHash:  mutation.HashHTML(body),
			Timestamp: time.Now().UnixMilli(),
		},
		StatusCode: resp.StatusCode,
		Sufficient: IsSufficient(body, f.minText),
	}

	f.logger.Debug("fetcher: fetched",
		"url", pageURL, "status", resp.StatusCode,
		"size", len(body), "sufficient", res.Sufficient)

	return res, nil
}
