package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxBody caps the response size read from the backend.
const maxBody = 1 << 20

// Client talks to the annotation backend.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type wordRequest struct {
	Word     string  `json:"word"`
	Context  string  `json:"context"`
	Previous *string `json:"previous"`
}

type textRequest struct {
	Text     string  `json:"text"`
	Origin   string  `json:"origin"`
	Previous *string `json:"previous"`
}

type successRequest struct {
	ID     int64 `json:"id"`
	Result bool  `json:"result"`
}

// AnnotateWord requests an annotation for word. previous carries the prior
// annotation when regenerating and serialises as null otherwise.
func (c *Client) AnnotateWord(ctx context.Context, word, context string, previous *string) (Annotation, error) {
	return c.annotate(ctx, "/translate-word", wordRequest{Word: word, Context: context, Previous: previous})
}

// AnnotateText requests an annotation for a selection taken from origin.
func (c *Client) AnnotateText(ctx context.Context, text, origin string, previous *string) (Annotation, error) {
	return c.annotate(ctx, "/translate-text", textRequest{Text: text, Origin: origin, Previous: previous})
}

// RecordSuccess reports whether annotation id was understood. The response
// body is ignored.
func (c *Client) RecordSuccess(ctx context.Context, id int64, result bool) error {
	_, err := c.post(ctx, "/success-record", successRequest{ID: id, Result: result})
	return err
}

func (c *Client) annotate(ctx context.Context, path string, body any) (Annotation, error) {
	data, err := c.post(ctx, path, body)
	if err != nil {
		return Annotation{}, err
	}
	var wire struct {
		Annotation *string `json:"annotation"`
		ID         *int64  `json:"id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Annotation{}, &Error{Kind: ErrIntegration, Err: err}
	}
	if wire.Annotation == nil || wire.ID == nil {
		return Annotation{}, &Error{Kind: ErrIntegration, Err: fmt.Errorf("missing annotation or id in %s response", path)}
	}
	return Annotation{Annotation: *wire.Annotation, ID: *wire.ID}, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: fmt.Errorf("marshal: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("annotation: request failed", "path", path, "error", err)
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("annotation: bad status", "path", path, "status", resp.StatusCode)
		return nil, &Error{Kind: statusKind(resp.StatusCode), Status: resp.StatusCode}
	}
	c.logger.Debug("annotation: ok", "path", path, "size", len(data))
	return data, nil
}
