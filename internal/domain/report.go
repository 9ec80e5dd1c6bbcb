package domain

import "time"

// ReportStatus enumerates report lifecycle states.
type ReportStatus string

const (
	ReportGenerating ReportStatus = "generating"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// ReportKind tells which generation path produced the content.
type ReportKind string

const (
	KindFull      ReportKind = "full"
	KindPartial   ReportKind = "partial"
	KindEmergency ReportKind = "emergency"
)

// QualityTier is the qualitative label derived from the completeness score.
type QualityTier string

const (
	TierBasic    QualityTier = "basic"
	TierEnhanced QualityTier = "enhanced"
	TierFresh    QualityTier = "fresh"
	TierComplete QualityTier = "complete"
)

// QualityTierFor maps a completeness score onto a quality tier.
func QualityTierFor(score int) QualityTier {
	switch {
	case score >= 85:
		return TierComplete
	case score >= 70:
		return TierFresh
	case score >= 50:
		return TierEnhanced
	default:
		return TierBasic
	}
}

// Report is the persisted header row. A completed report always has at
// least one ReportVersion committed in the same transaction.
type Report struct {
	ID           string
	ProjectID    string
	CompetitorID string
	Name         string
	Status       ReportStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportVersion is an immutable content revision of a report.
type ReportVersion struct {
	ID        string
	ReportID  string
	Version   int
	Content   ReportContent
	CreatedAt time.Time
}

// ReportContent is the serialized payload of a version.
type ReportContent struct {
	Title                    string                  `json:"title"`
	ExecutiveSummary         string                  `json:"executiveSummary"`
	KeyFindings              []string                `json:"keyFindings"`
	StrategicRecommendations Recommendations         `json:"strategicRecommendations"`
	CompetitiveIntelligence  CompetitiveIntelligence `json:"competitiveIntelligence"`
	DataGaps                 []DataGap               `json:"dataGaps,omitempty"`
	Metadata                 ReportMetadata          `json:"metadata"`
}

// Empty reports whether the payload carries no viewable content.
func (c ReportContent) Empty() bool {
	return c.Title == "" && c.ExecutiveSummary == "" && len(c.KeyFindings) == 0 && c.StrategicRecommendations.Empty()
}

// Recommendations groups strategic actions by horizon.
type Recommendations struct {
	Immediate []string `json:"immediate"`
	ShortTerm []string `json:"shortTerm"`
	LongTerm  []string `json:"longTerm"`
}

// Empty reports whether no recommendation is present.
func (r Recommendations) Empty() bool {
	return len(r.Immediate) == 0 && len(r.ShortTerm) == 0 && len(r.LongTerm) == 0
}

// CompetitiveIntelligence summarises market position and threats.
type CompetitiveIntelligence struct {
	MarketPosition string   `json:"marketPosition"`
	Threats        []string `json:"threats"`
	Opportunities  []string `json:"opportunities"`
}

// DataGap names a degraded or missing input of a partial report.
type DataGap struct {
	Entity string `json:"entity"`
	Kind   string `json:"kind"`
	Tier   string `json:"tier"`
	Impact string `json:"impact"`
}

// ReportMetadata is attached to every version.
type ReportMetadata struct {
	ProjectID         string        `json:"projectId"`
	ProjectName       string        `json:"projectName"`
	ProductName       string        `json:"productName,omitempty"`
	CompetitorCount   int           `json:"competitorCount"`
	Kind              ReportKind    `json:"kind"`
	Template          string        `json:"template"`
	Status            string        `json:"status"`
	CompletenessScore int           `json:"completenessScore"`
	DataFreshness     DataFreshness `json:"dataFreshness"`
	QualityTier       QualityTier   `json:"qualityTier"`
	Confidence        int           `json:"confidence"`
	AnalysisIncluded  bool          `json:"analysisIncluded"`
	GeneratedAt       time.Time     `json:"generatedAt"`
}

// GeneratedReport is what a generation attempt hands back to callers.
type GeneratedReport struct {
	Report    Report
	Version   ReportVersion
	Reused    bool
	Emergency bool
	Stages    []StageOutcome
}

// StageStatus tags the outcome of one pipeline stage.
type StageStatus string

const (
	StageSuccess  StageStatus = "success"
	StageDegraded StageStatus = "degraded"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageOutcome is the explicit result a pipeline stage reports.
type StageOutcome struct {
	Stage    string
	Status   StageStatus
	Detail   string
	Duration time.Duration
}
