// Command glossmark serves annotation sessions over HTTP and MCP.
//
// Usage:
//
//	glossmark -config glossmark.yaml      # HTTP API, MCP at /mcp
//	glossmark -mcp-stdio                  # MCP over stdin/stdout
//	glossmark -print-config               # print the effective configuration
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/controller"
	"github.com/hazyhaar/glossmark/internal/config"
	"github.com/hazyhaar/glossmark/internal/shield"
	"github.com/hazyhaar/glossmark/internal/sink"
	"github.com/hazyhaar/glossmark/internal/store"
	"github.com/hazyhaar/glossmark/session"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to glossmark.yaml (default $GLOSSMARK_CONFIG or ./glossmark.yaml)")
	logLevel := flag.String("log-level", "", "override log level: debug, info, warn, error")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *mcpStdio); err != nil {
		logger.Error("glossmark: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdio bool) error {
	st, journal, err := openJournal(cfg, logger, stdio)
	if err != nil {
		return err
	}
	defer func() {
		if journal != nil {
			if err := journal.Close(); err != nil {
				logger.Warn("glossmark: close journal", "error", err)
			}
		}
	}()

	backend := annotation.New(cfg.Backend.BaseURL,
		annotation.WithTimeout(cfg.Backend.Timeout),
		annotation.WithLogger(logger))

	loader := session.NewLoader(session.LoaderConfig{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		MinText:   cfg.Fetch.MinText,
		Render:    cfg.Fetch.Render,
		Remote:    cfg.Fetch.Remote,
		Block:     cfg.Fetch.Block,
	}, session.WithLoaderLogger(logger))
	defer loader.Close()

	debounce := cfg.Marks.CaretDebounce
	if debounce == 0 {
		debounce = -1
	}
	opts := []session.Option{session.WithLoader(loader), session.WithLogger(logger)}
	if journal != nil {
		opts = append(opts, session.WithJournal(journal))
	}
	mgr := session.NewManager(backend, session.Config{
		MaxSessions:   cfg.Session.MaxSessions,
		IdleTimeout:   cfg.Session.IdleTimeout,
		ExtensionRoot: cfg.Session.ExtensionRoot,
		Controller: controller.Config{
			CaretDebounce:  debounce,
			RequestTimeout: cfg.Backend.Timeout,
			Frame:          cfg.Session.Frame,
			QueueSize:      cfg.Session.QueueSize,
			Marks:          cfg.Marks.Options(),
		},
	}, opts...)
	reapCtx, cancel := context.WithCancel(ctx)
	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		mgr.Run(reapCtx)
	}()
	defer func() {
		cancel()
		<-reaped
	}()

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "glossmark", Version: version}, nil)
	mgr.RegisterMCP(mcpSrv, logger)

	if stdio {
		logger.Info("glossmark: serving MCP on stdio")
		err := mcpSrv.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return serveHTTP(ctx, cfg, logger, mgr, mcpSrv, st)
}

// openJournal builds the journal sink from the store and sinks sections.
// It returns a nil sink when nothing is configured.
func openJournal(cfg *config.Config, logger *slog.Logger, stdio bool) (*store.Store, sink.Sink, error) {
	router := sink.NewRouter(logger)
	var st *store.Store
	if cfg.Store.Path != "" {
		var err error
		st, err = store.Open(cfg.Store.Path, store.WithMkdirAll())
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		router.Add(sink.NewSQLite(st))
	}
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			if stdio {
				logger.Warn("glossmark: stdout sink disabled while MCP uses stdio")
				continue
			}
			router.Add(sink.NewStdout(os.Stdout))
		case "webhook":
			router.Add(sink.NewWebhook(sc.URL,
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookLogger(logger)))
		}
	}
	if router.Len() == 0 {
		return st, nil, nil
	}
	return st, sink.NewAsync(router, 1024, logger), nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, logger *slog.Logger, mgr *session.Manager, mcpSrv *mcp.Server, st *store.Store) error {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(shield.Options{
		MaxBody:   cfg.Server.MaxBody,
		RateLimit: cfg.Server.RateLimit,
		Exclude:   []string{"/health", "/mcp"},
	}) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version, "sessions": len(mgr.List())})
	})
	if st != nil {
		r.Mount("/pages", journalRoutes(st))
	}
	if cfg.Server.MCP {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	r.Mount("/", mgr.Routes(logger))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("glossmark: listening", "addr", cfg.Server.Addr, "mcp", cfg.Server.MCP, "journal", st != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("glossmark: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("glossmark: shutdown", "error", err)
	}
	logger.Info("glossmark: stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
