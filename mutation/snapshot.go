package mutation

import (
	"crypto/sha256"
	"encoding/hex"
)

// Snapshot is a full serialisation of a page document, taken when a page is
// opened and on demand.
type Snapshot struct {
	ID        string `json:"id"` // UUIDv7
	PageURL   string `json:"page_url,omitempty"`
	PageID    string `json:"page_id"`
	HTML      []byte `json:"html"`
	HTMLHash  string `json:"html_hash"` // SHA-256 hex
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return hex.EncodeToString(h[:])
}
