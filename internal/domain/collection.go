package domain

import "time"

// Tier is one of the ordered data-sourcing strategies.
type Tier int

const (
	TierFormData Tier = iota + 1
	TierFreshSnapshot
	TierFastCollection
	TierExistingSnapshot
	TierBasicMetadata
)

func (t Tier) String() string {
	switch t {
	case TierFormData:
		return "form_data"
	case TierFreshSnapshot:
		return "fresh_snapshot"
	case TierFastCollection:
		return "fast_collection"
	case TierExistingSnapshot:
		return "existing_snapshot"
	case TierBasicMetadata:
		return "basic_metadata"
	default:
		return "unknown"
	}
}

// Fresh reports whether the tier produced newly sourced data.
func (t Tier) Fresh() bool {
	return t == TierFormData || t == TierFreshSnapshot || t == TierFastCollection
}

// DataQuality tags how trustworthy a collected entity is.
type DataQuality string

const (
	QualityHigh    DataQuality = "high"
	QualityMedium  DataQuality = "medium"
	QualityLow     DataQuality = "low"
	QualityMinimal DataQuality = "minimal"
)

// DataFreshness summarises where the collected data came from.
type DataFreshness string

const (
	FreshnessNew      DataFreshness = "new"
	FreshnessExisting DataFreshness = "existing"
	FreshnessMixed    DataFreshness = "mixed"
	FreshnessBasic    DataFreshness = "basic"
)

// CollectionResult records how a single entity was satisfied.
type CollectionResult struct {
	Entity   EntityRef
	Tier     Tier
	Quality  DataQuality
	Snapshot *Snapshot
	Duration time.Duration
	// Attempts lists the tiers that failed before Tier succeeded.
	Attempts []TierAttempt
}

// TierAttempt is a failed or skipped tier for one entity.
type TierAttempt struct {
	Tier    Tier
	Skipped bool
	Reason  string
}

// DataCollectionSummary aggregates the per-entity outcomes of a project.
type DataCollectionSummary struct {
	ProjectID         string
	Product           *CollectionResult
	Competitors       []CollectionResult
	TierCounts        map[Tier]int
	CompletenessScore int
	Freshness         DataFreshness
	Duration          time.Duration
}

// Results returns product and competitor outcomes in one slice.
func (s DataCollectionSummary) Results() []CollectionResult {
	out := make([]CollectionResult, 0, len(s.Competitors)+1)
	if s.Product != nil {
		out = append(out, *s.Product)
	}
	return append(out, s.Competitors...)
}
