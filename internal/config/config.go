// Package config holds the glossmark server configuration. Values come
// from a YAML file, environment variables and env-default tags, in that
// order of increasing precedence for the environment.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/glossmark/mark"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Marks   MarksConfig   `yaml:"marks"`
	Session SessionConfig `yaml:"session"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Store   StoreConfig   `yaml:"store"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"GLOSSMARK_ADDR"             env-default:":8420"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"GLOSSMARK_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"GLOSSMARK_WRITE_TIMEOUT"    env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GLOSSMARK_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MCP             bool          `yaml:"mcp"              env:"GLOSSMARK_MCP"              env-default:"true"`
	MaxBody         int64         `yaml:"max_body"         env:"GLOSSMARK_MAX_BODY"         env-default:"16777216"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `yaml:"rate_limit" env:"GLOSSMARK_RATE_LIMIT" env-default:"600"`
}

// BackendConfig points at the annotation service.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"GLOSSMARK_BACKEND_URL"     env-default:"http://localhost:8000"`
	Timeout time.Duration `yaml:"timeout"  env:"GLOSSMARK_BACKEND_TIMEOUT" env-default:"30s"`
}

// MarksConfig tunes marks and their context.
type MarksConfig struct {
	Threshold     time.Duration `yaml:"threshold"      env:"GLOSSMARK_THRESHOLD"      env-default:"1600ms"`
	CaretDebounce time.Duration `yaml:"caret_debounce" env:"GLOSSMARK_CARET_DEBOUNCE" env-default:"200ms"`
	Tag           string        `yaml:"tag"            env:"GLOSSMARK_MARK_TAG"       env-default:"mark"`
	ContextMode   string        `yaml:"context_mode"   env:"GLOSSMARK_CONTEXT_MODE"   env-default:"words"`
	ContextWords  int           `yaml:"context_words"  env:"GLOSSMARK_CONTEXT_WORDS"  env-default:"3"`
}

// Options converts the section to mark options.
func (m MarksConfig) Options() mark.Options {
	return mark.Options{
		Threshold: m.Threshold,
		Tag:       m.Tag,
		Context:   mark.ContextOptions{Mode: m.ContextMode, Words: m.ContextWords},
	}
}

// SessionConfig bounds the page sessions kept by the server.
type SessionConfig struct {
	MaxSessions   int           `yaml:"max_sessions"   env:"GLOSSMARK_MAX_SESSIONS"   env-default:"64"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"   env:"GLOSSMARK_IDLE_TIMEOUT"   env-default:"30m"`
	Frame         time.Duration `yaml:"frame"          env:"GLOSSMARK_FRAME"          env-default:"0s"`
	QueueSize     int           `yaml:"queue_size"     env:"GLOSSMARK_QUEUE_SIZE"     env-default:"256"`
	ExtensionRoot string        `yaml:"extension_root" env:"GLOSSMARK_EXTENSION_ROOT" env-default:"glossmark-extension-root"`
}

// FetchConfig controls how pages are loaded for a session.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"    env:"GLOSSMARK_FETCH_TIMEOUT"  env-default:"20s"`
	MaxBytes  int64         `yaml:"max_bytes"  env:"GLOSSMARK_FETCH_MAX"      env-default:"10485760"`
	UserAgent string        `yaml:"user_agent" env:"GLOSSMARK_USER_AGENT"     env-default:"glossmark/1.0"`
	Render    bool          `yaml:"render"     env:"GLOSSMARK_RENDER"         env-default:"false"`
	Remote    string        `yaml:"remote"     env:"GLOSSMARK_BROWSER_REMOTE"`
	MinText   int           `yaml:"min_text"   env:"GLOSSMARK_MIN_TEXT"       env-default:"200"`
	Block     []string      `yaml:"block"      env:"GLOSSMARK_BROWSER_BLOCK"  env-default:"images,fonts,media" env-separator:","`
}

// StoreConfig enables the SQLite journal when Path is set.
type StoreConfig struct {
	Path string `yaml:"path" env:"GLOSSMARK_STORE"`
}

// SinkConfig defines an extra journal output.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
