package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/glossmark/controller"
	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/idgen"
	"github.com/hazyhaar/glossmark/internal/sink"
	"github.com/hazyhaar/glossmark/mutation"
)

var (
	ErrTooMany  = errors.New("session: too many sessions")
	ErrNoSource = errors.New("session: url or html required")
	ErrNoLoader = errors.New("session: fetching is disabled")
	ErrClosed   = errors.New("session: manager closed")
)

// Config bounds and shapes sessions.
type Config struct {
	MaxSessions int
	IdleTimeout time.Duration
	// ExtensionRoot is the id of the element hosting popovers. It is
	// created at the end of the body when the page lacks it.
	ExtensionRoot string
	// Controller is the template for every session's controller. PageID,
	// Origin and SnapshotRef are filled per session.
	Controller controller.Config
}

// OpenRequest creates a session from a URL or from inline HTML.
type OpenRequest struct {
	URL    string `json:"url,omitempty"`
	HTML   string `json:"html,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal sets the sink receiving snapshots, batches and events.
func WithJournal(s sink.Sink) Option { return func(m *Manager) { m.journal = s } }

// WithLoader enables sessions opened by URL.
func WithLoader(l *Loader) Option { return func(m *Manager) { m.loader = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithIDGenerator sets the session id source.
func WithIDGenerator(g idgen.Generator) Option { return func(m *Manager) { m.newID = g } }

// WithControllerOptions adds options to every controller.
func WithControllerOptions(opts ...controller.Option) Option {
	return func(m *Manager) { m.ctrlOpts = append(m.ctrlOpts, opts...) }
}

// Manager owns the live sessions.
type Manager struct {
	cfg      Config
	backend  controller.Backend
	journal  sink.Sink
	loader   *Loader
	logger   *slog.Logger
	newID    idgen.Generator
	ctrlOpts []controller.Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager annotating through backend.
func NewManager(backend controller.Backend, cfg Config, opts ...Option) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	m := &Manager{
		cfg:      cfg,
		backend:  backend,
		logger:   slog.Default(),
		newID:    idgen.Default,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open creates a session and starts its loop.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.URL == "" && req.HTML == "" {
		return nil, ErrNoSource
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooMany
	}
	m.mu.Unlock()

	id := m.newID()
	raw, err := m.source(ctx, id, req)
	if err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("session: parse: %w", err)
	}
	ext := m.extensionRoot(doc)

	body := []byte(dom.Render(doc))
	snap := mutation.Snapshot{
		ID:        idgen.New(),
		PageURL:   req.URL,
		PageID:    id,
		HTML:      body,
		HTMLHash:  mutation.HashHTML(body),
		Timestamp: time.Now().UnixMilli(),
	}
	if m.journal != nil {
		if err := m.journal.SendSnapshot(ctx, snap); err != nil {
			m.logger.Warn("session: send snapshot", "session", id, "error", err)
		}
	}

	origin := req.Origin
	if origin == "" {
		origin = req.URL
	}
	ccfg := m.cfg.Controller
	ccfg.PageID, ccfg.Origin, ccfg.SnapshotRef = id, origin, snap.ID

	opts := []controller.Option{controller.WithLogger(m.logger.With("session", id))}
	if ext != nil {
		opts = append(opts, controller.WithExtensionRoot(ext))
	}
	if m.journal != nil {
		opts = append(opts, controller.WithJournal(m.journal))
	}
	opts = append(opts, m.ctrlOpts...)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		url:        req.URL,
		origin:     origin,
		snapshotID: snap.ID,
		created:    time.Now(),
		doc:        doc,
		ctrl:       controller.New(dom.NewTree(doc), m.backend, ccfg, opts...),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.touch()

	m.mu.Lock()
	if m.closed || len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		cancel()
		if m.closed {
			return nil, ErrClosed
		}
		return nil, ErrTooMany
	}
	m.sessions[id] = s
	m.mu.Unlock()

	go func() {
		defer close(s.done)
		s.ctrl.Run(runCtx)
	}()
	m.logger.Info("session: opened", "session", id, "url", req.URL, "bytes", len(body))
	return s, nil
}

func (m *Manager) source(ctx context.Context, id string, req OpenRequest) (string, error) {
	if req.HTML != "" {
		return req.HTML, nil
	}
	if m.loader == nil {
		return "", ErrNoLoader
	}
	snap, err := m.loader.Load(ctx, req.URL, id)
	if err != nil {
		return "", err
	}
	return string(snap.HTML), nil
}

// extensionRoot finds or creates the popover host element.
func (m *Manager) extensionRoot(doc *html.Node) *html.Node {
	if m.cfg.ExtensionRoot == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if v, ok := dom.Attr(c, "id"); ok && v == m.cfg.ExtensionRoot {
					found = c
					return
				}
				walk(c)
			}
		}
	}
	walk(doc)
	if found != nil {
		return found
	}
	body := dom.Body(doc)
	if body == nil {
		return nil
	}
	div := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "id", Val: m.cfg.ExtensionRoot}},
	}
	body.AppendChild(div)
	return div
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns the live sessions ordered by id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Close stops a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.stop()
	m.logger.Info("session: closed", "session", id)
	return nil
}

// Reap closes sessions idle since before now minus the idle timeout.
func (m *Manager) Reap(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	limit := now.Add(-m.cfg.IdleTimeout).UnixMilli()
	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.lastUsed.Load() < limit {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()
	for _, id := range idle {
		if err := m.Close(id); err == nil {
			m.logger.Info("session: reaped idle session", "session", id)
		}
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done, then closes all of them.
func (m *Manager) Run(ctx context.Context) error {
	every := m.cfg.IdleTimeout / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return ctx.Err()
		case now := <-t.C:
			m.Reap(now)
		}
	}
}

// Shutdown closes every session and refuses new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.stop()
	}
}
