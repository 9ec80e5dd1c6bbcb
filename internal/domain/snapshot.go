package domain

import "time"

// CaptureMode selects how much of a site is captured.
type CaptureMode string

const (
	CaptureFull        CaptureMode = "full"
	CaptureLightweight CaptureMode = "lightweight"
)

// Snapshot is a point-in-time copy of an entity's website content.
type Snapshot struct {
	ID         string
	EntityKind EntityKind
	EntityID   string
	Content    SnapshotContent
	Metadata   map[string]string
	CapturedAt time.Time
}

// SnapshotContent holds the parsed fields of a captured page.
type SnapshotContent struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Headings    []string `json:"headings,omitempty"`
	Features    []string `json:"features,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// Age returns how old the snapshot is at the given instant.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}
