package mutation

// EventKind names a lifecycle transition of a mark or trigger.
type EventKind string

const (
	EventMounted          EventKind = "mounted"           // pending mark mounted
	EventReverted         EventKind = "reverted"          // pending mark reverted
	EventPromoted         EventKind = "promoted"          // pending mark became a trigger
	EventShown            EventKind = "shown"             // trigger id added to the visible set
	EventHidden           EventKind = "hidden"            // trigger id removed from the visible set
	EventRequested        EventKind = "requested"         // annotation request dispatched
	EventAnnotated        EventKind = "annotated"         // annotation stored
	EventAnnotationFailed EventKind = "annotation_failed" // error stored in the annotation slot
	EventDropped          EventKind = "dropped"           // stale response discarded
	EventFeedback         EventKind = "feedback"          // feedback report dispatched
	EventRemoved          EventKind = "removed"           // trigger unmounted and forgotten
)

// Event is one lifecycle notification.
type Event struct {
	ID           string    `json:"id"` // UUIDv7
	PageID       string    `json:"page_id"`
	Kind         EventKind `json:"kind"`
	MarkKind     string    `json:"mark_kind,omitempty"` // word | text
	TriggerID    string    `json:"trigger_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	AnnotationID int64     `json:"annotation_id,omitempty"`
	Result       *bool     `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    int64     `json:"timestamp"` // epoch milliseconds
}
