// Package render loads pages that need scripts to show their text. It runs
// a headless Chrome through Rod with stealth patches applied, and returns
// the serialised DOM once the page has loaded.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome. Empty launches a
	// local headless Chrome on first use.
	Remote string
	// Block lists resource types not to load (images, fonts, media,
	// stylesheets).
	Block []string
	// Timeout bounds navigation and load. Default: 30s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Browser renders pages. It connects lazily and is safe for concurrent use.
type Browser struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New creates a Browser. Chrome is started on the first Render.
func New(cfg Config) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Browser{cfg: cfg}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("render: browser is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.Remote
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.cfg.Logger.Info("render: launched local chrome", "url", wsURL)
	} else {
		b.cfg.Logger.Info("render: connecting to remote", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	b.browser = rb
	return rb, nil
}

// Render navigates a stealth tab to pageURL and returns its outer HTML.
func (b *Browser) Render(ctx context.Context, pageURL string) ([]byte, error) {
	rb, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(rb)
	if err != nil {
		return nil, fmt.Errorf("render: create tab: %w", err)
	}
	defer page.Close()

	if len(b.cfg.Block) > 0 {
		router := page.HijackRequests()
		blocked := blockSet(b.cfg.Block)
		router.MustAdd("*", func(h *rod.Hijack) {
			if shouldBlock(blocked, string(h.Request.Type())) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			h.ContinueRequest(&proto.FetchContinueRequest{})
		})
		go router.Run()
		defer router.Stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("render: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("render: wait load", "url", pageURL, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("render: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cleanup()
	return nil
}

func (b *Browser) cleanup() {
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return set
}

// shouldBlock maps CDP resource types to configuration names.
func shouldBlock(set map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return set["images"]
	case "font":
		return set["fonts"]
	case "media":
		return set["media"]
	case "stylesheet":
		return set["stylesheets"]
	}
	return set[lower]
}
