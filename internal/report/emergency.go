package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// EmergencyConfidence is the fixed confidence of an emergency report.
const EmergencyConfidence = 20

// EmergencyGenerator builds the last-resort report from project metadata.
type EmergencyGenerator struct {
	projects  ports.ProjectRepository
	persister *Persister
	logger    *slog.Logger
	now       func() time.Time
}

// NewEmergencyGenerator wires the generator.
func NewEmergencyGenerator(projects ports.ProjectRepository, persister *Persister, logger *slog.Logger) *EmergencyGenerator {
	return &EmergencyGenerator{projects: projects, persister: persister, logger: logger, now: time.Now}
}

// Generate re-reads the project and persists a minimal labelled report.
// Any failure here is terminal for the generation attempt.
func (e *EmergencyGenerator) Generate(ctx context.Context, projectID string, cause error, opts domain.GenerateOptions) (domain.Report, domain.ReportVersion, error) {
	opts = opts.Normalize()

	project, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return domain.Report{}, domain.ReportVersion{}, domain.NewStageError(domain.FailureTerminal, "emergency", fmt.Errorf("reload project: %w", err))
	}

	content := EmergencyContent(project, cause, opts.Template, e.now().UTC())
	report, version, err := e.persister.Persist(ctx, project, content)
	if err != nil {
		return domain.Report{}, domain.ReportVersion{}, domain.NewStageError(domain.FailureTerminal, "emergency", err)
	}
	if e.logger != nil {
		e.logger.Warn("emergency report persisted", "project", projectID, "report", report.ID, "cause", cause)
	}
	return report, version, nil
}

// EmergencyContent is the minimal payload written by the emergency path.
func EmergencyContent(project domain.Project, cause error, template string, at time.Time) domain.ReportContent {
	name := projectName(project)
	md := domain.ReportMetadata{
		ProjectID:       project.ID,
		ProjectName:     project.Name,
		CompetitorCount: len(project.Competitors),
		Kind:            domain.KindEmergency,
		Template:        template,
		DataFreshness:   domain.FreshnessBasic,
		QualityTier:     domain.TierBasic,
		Confidence:      EmergencyConfidence,
		GeneratedAt:     at,
	}
	if product, ok := project.PrimaryProduct(); ok {
		md.ProductName = product.Name
	}

	return domain.ReportContent{
		Title: "Emergency Report: " + name,
		ExecutiveSummary: fmt.Sprintf(
			"%s tracks %d competitor(s). A full comparative analysis could not be produced because %s. "+
				"This emergency report contains only basic project information.",
			name, len(project.Competitors), UserSafeReason(cause)),
		KeyFindings: []string{
			fmt.Sprintf("%d competitor(s) are configured for this project.", len(project.Competitors)),
			"Detailed competitor data was not available when this report was generated.",
		},
		StrategicRecommendations: domain.Recommendations{
			Immediate: []string{"Check system health"},
			ShortTerm: []string{"Re-run report generation"},
			LongTerm:  []string{"Implement monitoring"},
		},
		CompetitiveIntelligence: domain.CompetitiveIntelligence{
			MarketPosition: "Not assessed in emergency mode.",
		},
		Metadata: md,
	}
}

// UserSafeReason describes cause in plain language. The raw error text is
// never included.
func UserSafeReason(cause error) string {
	switch {
	case cause == nil:
		return "an unexpected problem occurred"
	case errors.Is(cause, context.DeadlineExceeded), errors.Is(cause, domain.ErrCaptureTimeout):
		return "the generation took longer than allowed"
	case errors.Is(cause, domain.ErrNotReady):
		return "the project is missing a product or competitors"
	}
	kind, _ := domain.FailureKindOf(cause)
	switch kind {
	case domain.FailureReadiness:
		return "the project is missing a product or competitors"
	case domain.FailureCollection:
		return "competitor data could not be collected"
	case domain.FailureAssembly:
		return "the analysis service was unavailable"
	case domain.FailurePersistence:
		return "the report could not be saved"
	default:
		return "an unexpected problem occurred"
	}
}
