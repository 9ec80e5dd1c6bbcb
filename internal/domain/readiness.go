package domain

// ReadinessResult reports whether a project has the entities generation needs.
type ReadinessResult struct {
	IsReady        bool
	HasProduct     bool
	HasCompetitors bool
	HasProductData bool
	MissingData    []string
	Score          int
}

// FreshnessClass buckets how stale a project's snapshots are.
type FreshnessClass string

const (
	Fresh          FreshnessClass = "fresh"
	PartiallyStale FreshnessClass = "partially_stale"
	MostlyStale    FreshnessClass = "mostly_stale"
	Critical       FreshnessClass = "critical"
)

// Priority is the caller's latency/quality preference.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free-form input onto a Priority, defaulting to normal.
func ParsePriority(v string) Priority {
	switch Priority(v) {
	case PriorityHigh, PriorityLow:
		return Priority(v)
	default:
		return PriorityNormal
	}
}
