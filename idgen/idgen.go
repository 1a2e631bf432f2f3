// Package idgen generates the identifiers used across glossmark: trigger
// ids, journal batch and event ids, session ids.
//
// Trigger ids are written into the DOM and parsed back by lookup, so every
// generator here produces RFC 9562 UUID strings.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces UUID v7 strings. They sort in
// creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Sequence returns a Generator of deterministic, strictly increasing v7-shaped
// UUIDs. Used for replay and tests where ids must be predictable.
func Sequence() Generator {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("00000000-0000-7000-8000-%012x", n.Add(1))
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
