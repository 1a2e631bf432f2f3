// Package mutation defines the journal emitted by the glossmark engine: the
// DOM writes applied by each controller step, the lifecycle events of marks
// and triggers, and document snapshots. Sinks and external consumers import
// this package to receive them.
package mutation

// Op is the type of DOM write.
type Op string

const (
	OpInsert  Op = "insert"   // node inserted (includes serialised subtree HTML)
	OpRemove  Op = "remove"   // node removed
	OpAttr    Op = "attr"     // attribute set
	OpAttrDel Op = "attr_del" // attribute removed
)

// Record is a single DOM write.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	NodeType int    `json:"node_type,omitempty"` // 1=element, 3=text, 8=comment
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"`     // new value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialised subtree for insert
}

// Batch groups the writes applied while handling one controller event.
type Batch struct {
	ID          string   `json:"id"` // UUIDv7
	PageID      string   `json:"page_id"`
	Seq         uint64   `json:"seq"`   // monotonically increasing per page
	Cause       string   `json:"cause"` // event kind that produced the writes
	Records     []Record `json:"records"`
	Timestamp   int64    `json:"timestamp"`    // epoch milliseconds
	SnapshotRef string   `json:"snapshot_ref"` // ID of the page's initial snapshot
}
