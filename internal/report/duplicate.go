package report

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// DefaultDuplicateWindow is how long a completed report suppresses regeneration.
const DefaultDuplicateWindow = 5 * time.Minute

// DuplicateGuard short-circuits generation when the project already has a
// recent completed report, and collapses concurrent in-process requests.
// Requests racing across processes may still both write.
type DuplicateGuard struct {
	reports ports.ReportRepository
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewDuplicateGuard creates a guard with the given window.
func NewDuplicateGuard(reports ports.ReportRepository, window time.Duration, logger *slog.Logger) *DuplicateGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateGuard{reports: reports, window: window, logger: logger, now: time.Now}
}

// Recent returns the newest completed report of the window, or nil. Lookup
// errors are logged and treated as a miss.
func (g *DuplicateGuard) Recent(ctx context.Context, projectID string) *domain.GeneratedReport {
	report, err := g.reports.FindRecentReport(ctx, projectID, g.now().Add(-g.window))
	if err != nil {
		g.warn("duplicate check failed", "project", projectID, "error", err)
		return nil
	}
	if report == nil {
		return nil
	}

	out := &domain.GeneratedReport{Report: *report, Reused: true}
	versions, err := g.reports.ListVersions(ctx, report.ID)
	if err != nil {
		g.warn("load versions of recent report failed", "report", report.ID, "error", err)
		return nil
	}
	if len(versions) == 0 {
		// A completed report without content is never handed back.
		g.warn("recent report has no versions", "report", report.ID)
		return nil
	}
	out.Version = versions[len(versions)-1]
	return out
}

// Do returns a recent report unless force is set, otherwise runs generate.
// Concurrent unforced calls for the same project share one run.
func (g *DuplicateGuard) Do(ctx context.Context, projectID string, force bool, generate func() (domain.GeneratedReport, error)) (domain.GeneratedReport, error) {
	if force {
		return generate()
	}
	if recent := g.Recent(ctx, projectID); recent != nil {
		if g.logger != nil {
			g.logger.Info("returning recent report", "project", projectID, "report", recent.Report.ID)
		}
		return *recent, nil
	}

	v, err, _ := g.group.Do(projectID, func() (any, error) {
		return generate()
	})
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	return v.(domain.GeneratedReport), nil
}

func (g *DuplicateGuard) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
