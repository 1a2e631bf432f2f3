package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/glossmark/mark"
)

// Validate checks the loaded configuration. Load calls it.
func (c *Config) Validate() error {
	if err := validateURL(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if c.Marks.Threshold <= 0 {
		return fmt.Errorf("marks.threshold must be > 0 (got %v)", c.Marks.Threshold)
	}
	if c.Marks.CaretDebounce < 0 {
		return fmt.Errorf("marks.caret_debounce must be >= 0 (got %v)", c.Marks.CaretDebounce)
	}
	switch c.Marks.ContextMode {
	case mark.ContextWords, mark.ContextBlock, mark.ContextMarkdown:
	default:
		return fmt.Errorf("marks.context_mode %q: want words, block or markdown", c.Marks.ContextMode)
	}
	if c.Marks.ContextWords < 0 {
		return fmt.Errorf("marks.context_words must be >= 0 (got %d)", c.Marks.ContextWords)
	}
	if c.Server.MaxBody < 0 || c.Server.RateLimit < 0 {
		return fmt.Errorf("server.max_body and server.rate_limit must be >= 0")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be > 0 (got %d)", c.Session.MaxSessions)
	}
	if c.Session.Frame < 0 {
		return fmt.Errorf("session.frame must be >= 0 (got %v)", c.Session.Frame)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if err := validateURL(s.URL); err != nil {
				return fmt.Errorf("sinks[%d].url: %w", i, err)
			}
		default:
			return fmt.Errorf("sinks[%d].type %q: want stdout or webhook", i, s.Type)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: want json or text", c.Log.Format)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q: want http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
