package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/telemetry"
)

// RiskLevel grades the chance that a report is a zombie.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Verdict is the result of an integrity check.
type Verdict struct {
	ReportID     string
	ProjectID    string
	Status       domain.ReportStatus
	Valid        bool
	VersionCount int
	Risk         RiskLevel
	Issues       []string
}

// IntegrityValidator checks reports out of band. It only reads the store.
type IntegrityValidator struct {
	reports  ports.ReportRepository
	alerter  ports.Alerter
	failures *telemetry.FailureTracker
	logger   *slog.Logger
	now      func() time.Time
}

// NewIntegrityValidator wires the validator. alerter and failures may be nil.
func NewIntegrityValidator(reports ports.ReportRepository, alerter ports.Alerter, failures *telemetry.FailureTracker, logger *slog.Logger) *IntegrityValidator {
	return &IntegrityValidator{reports: reports, alerter: alerter, failures: failures, logger: logger, now: time.Now}
}

// Validate confirms the report has a non-empty version.
func (v *IntegrityValidator) Validate(ctx context.Context, reportID string) (Verdict, error) {
	report, err := v.reports.GetReport(ctx, reportID)
	if err != nil {
		return Verdict{}, fmt.Errorf("load report %s: %w", reportID, err)
	}
	versions, err := v.reports.ListVersions(ctx, reportID)
	if err != nil {
		return Verdict{}, fmt.Errorf("list versions of %s: %w", reportID, err)
	}

	verdict := Assess(report, versions)
	if verdict.Risk == RiskHigh {
		v.raise(ctx, verdict)
	}
	return verdict, nil
}

// Assess grades a report given its versions.
func Assess(report domain.Report, versions []domain.ReportVersion) Verdict {
	verdict := Verdict{
		ReportID:     report.ID,
		ProjectID:    report.ProjectID,
		Status:       report.Status,
		VersionCount: len(versions),
		Risk:         RiskLow,
	}

	if len(versions) == 0 {
		verdict.Issues = append(verdict.Issues, "no content versions")
		if report.Status == domain.ReportCompleted {
			verdict.Risk = RiskHigh
		} else {
			verdict.Risk = RiskMedium
		}
		return verdict
	}

	latest := versions[len(versions)-1]
	if latest.Content.Empty() {
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("version %d has empty content", latest.Version))
		verdict.Risk = RiskMedium
		return verdict
	}
	if report.Status != domain.ReportCompleted {
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("status is %s", report.Status))
		verdict.Risk = RiskMedium
		return verdict
	}
	verdict.Valid = true
	return verdict
}

// Sweep validates every report created since the given instant. Reports
// that cannot be read are logged and skipped.
func (v *IntegrityValidator) Sweep(ctx context.Context, since time.Time) ([]Verdict, error) {
	reports, err := v.reports.ListReportsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	verdicts := make([]Verdict, 0, len(reports))
	for _, r := range reports {
		verdict, err := v.Validate(ctx, r.ID)
		if err != nil {
			v.failures.Record(ctx, telemetry.OpIntegrityCheck, err)
			if v.logger != nil {
				v.logger.Warn("integrity check failed", "report", r.ID, "error", err)
			}
			continue
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

func (v *IntegrityValidator) raise(ctx context.Context, verdict Verdict) {
	if v.logger != nil {
		v.logger.Error("zombie report detected", "report", verdict.ReportID, "project", verdict.ProjectID)
	}
	if v.alerter == nil {
		return
	}
	err := v.alerter.Send(ctx, domain.Alert{
		Severity:  domain.SeverityCritical,
		Operation: telemetry.OpIntegrityCheck,
		ProjectID: verdict.ProjectID,
		ReportID:  verdict.ReportID,
		Message:   fmt.Sprintf("report %s is marked %s but has no content", verdict.ReportID, verdict.Status),
		At:        v.now(),
	})
	if err != nil && v.logger != nil {
		v.logger.Warn("integrity alert not delivered", "report", verdict.ReportID, "error", err)
	}
}
