package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/glossmark/mutation"
	"github.com/hazyhaar/glossmark/session/internal/fetcher"
	"github.com/hazyhaar/glossmark/session/internal/render"
)

// Renderer returns the DOM of a page after its scripts ran.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// LoaderConfig controls page acquisition.
type LoaderConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	MinText   int
	// Render enables the headless browser for pages whose HTML lacks text.
	Render bool
	// Remote is the WebSocket URL of an external Chrome.
	Remote string
	// Block lists resource types the browser skips.
	Block []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRenderer replaces the headless browser.
func WithRenderer(r Renderer) LoaderOption {
	return func(l *Loader) { l.render = r }
}

// WithHTTPClient sets the client used for plain fetches.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// Loader fetches pages over HTTP and falls back to a browser when the HTML
// is an application shell.
type Loader struct {
	fetch  *fetcher.Fetcher
	render Renderer
	client *http.Client
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig, opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: cfg.Timeout}
	}
	fopts := []fetcher.Option{fetcher.WithClient(l.client), fetcher.WithLogger(l.logger)}
	if cfg.UserAgent != "" {
		fopts = append(fopts, fetcher.WithUserAgent(cfg.UserAgent))
	}
	if cfg.MaxBytes > 0 {
		fopts = append(fopts, fetcher.WithMaxBytes(cfg.MaxBytes))
	}
	if cfg.MinText > 0 {
		fopts = append(fopts, fetcher.WithMinText(cfg.MinText))
	}
	l.fetch = fetcher.New(fopts...)
	if l.render == nil && cfg.Render {
		l.render = render.New(render.Config{
			Remote:  cfg.Remote,
			Block:   cfg.Block,
			Timeout: cfg.Timeout,
			Logger:  l.logger,
		})
	}
	return l
}

// Load returns a snapshot of pageURL.
func (l *Loader) Load(ctx context.Context, pageURL, pageID string) (mutation.Snapshot, error) {
	res, err := l.fetch.Fetch(ctx, pageURL, pageID)
	if err != nil {
		return mutation.Snapshot{}, fmt.Errorf("session: load %s: %w", pageURL, err)
	}
	snap := res.Snapshot
	if res.Sufficient || l.render == nil {
		return snap, nil
	}

	l.logger.Info("session: rendering page", "url", pageURL)
	body, err := l.render.Render(ctx, pageURL)
	if err != nil {
		l.logger.Warn("session: render failed, using fetched HTML", "url", pageURL, "error", err)
		return snap, nil
	}
	snap.HTML = body
	snap.HTMLHash = mutation.HashHTML(body)
	return snap, nil
}

// Close releases the browser, if one was started.
func (l *Loader) Close() error {
	if c, ok := l.render.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
