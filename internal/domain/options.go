package domain

import "time"

// Template names accepted by the generator.
const (
	TemplateComprehensive = "comprehensive"
	TemplateExecutive     = "executive"
	TemplateTechnical     = "technical"
	TemplateStrategic     = "strategic"
)

// GenerateOptions is the inbound call contract of report generation.
type GenerateOptions struct {
	Template             string
	Priority             Priority
	Timeout              time.Duration
	FallbackToPartial    bool
	RequireFreshSnapshot bool
	ForceGeneration      bool
	// InitialReport marks generation right after project creation.
	InitialReport bool
}

// Normalize fills defaults for unset fields.
func (o GenerateOptions) Normalize() GenerateOptions {
	switch o.Template {
	case TemplateComprehensive, TemplateExecutive, TemplateTechnical, TemplateStrategic:
	default:
		o.Template = TemplateComprehensive
	}
	o.Priority = ParsePriority(string(o.Priority))
	return o
}

// AnalysisInput is what the analysis collaborator receives.
type AnalysisInput struct {
	ProjectName     string
	Template        string
	Product         *EntityRef
	ProductSnapshot *Snapshot
	ProductForm     *Product
	Competitors     []CompetitorInput
}

// CompetitorInput pairs a competitor with its best available snapshot.
type CompetitorInput struct {
	Competitor EntityRef
	Snapshot   *Snapshot
}

// Analysis is the opaque text produced by the analysis collaborator.
type Analysis struct {
	Summary         string
	KeyFindings     []string
	Recommendations Recommendations
	MarketPosition  string
	Threats         []string
	Opportunities   []string
	Confidence      int
}

// AlertSeverity classifies alert events.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a structured event handed to the notification collaborator.
type Alert struct {
	Severity  AlertSeverity
	Operation string
	ProjectID string
	ReportID  string
	Message   string
	At        time.Time
}
