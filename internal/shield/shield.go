// Package shield holds the HTTP middleware wrapped around the glossmark API:
// request ids with a per-request logger, security headers, HEAD handling,
// body limits and per-client rate limiting.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(shield.Options{MaxBody: 16 << 20, RateLimit: 600}) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"time"
)

// Options selects the default stack.
type Options struct {
	// MaxBody bounds request bodies in bytes. Zero disables the limit.
	MaxBody int64
	// RateLimit is the number of requests a client may make per Window.
	// Zero disables rate limiting.
	RateLimit int
	Window    time.Duration
	// Exclude lists path prefixes that bypass rate limiting.
	Exclude []string
}

// Stack returns the middleware in order: HeadToGet, SecurityHeaders,
// MaxBody, RequestID, RateLimiter.
func Stack(o Options) []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
	}
	if o.MaxBody > 0 {
		mws = append(mws, MaxBody(o.MaxBody))
	}
	mws = append(mws, RequestID)
	if o.RateLimit > 0 {
		mws = append(mws, NewRateLimiter(o.RateLimit, o.Window, o.Exclude...).Middleware)
	}
	return mws
}
