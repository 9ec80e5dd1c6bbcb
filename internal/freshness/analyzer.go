package freshness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// DefaultThreshold is the age after which a snapshot counts as stale.
const DefaultThreshold = 7 * 24 * time.Hour

// EntityAge is the snapshot age of a single entity.
type EntityAge struct {
	Entity      domain.EntityRef
	HasSnapshot bool
	CapturedAt  time.Time
	Age         time.Duration
	Stale       bool
}

// Report is the outcome of a freshness analysis.
type Report struct {
	ProjectID      string
	Threshold      time.Duration
	Entities       []EntityAge
	StaleCount     int
	Classification domain.FreshnessClass
}

// StaleEntities returns the entities whose snapshot is missing or too old.
func (r Report) StaleEntities() []domain.EntityRef {
	var out []domain.EntityRef
	for _, e := range r.Entities {
		if e.Stale {
			out = append(out, e.Entity)
		}
	}
	return out
}

// RefreshRequest carries the caller's preferences for refresh decisions.
type RefreshRequest struct {
	RequireFresh bool
	Priority     domain.Priority
}

// Analyzer inspects snapshot ages of a project's entities.
type Analyzer struct {
	projects  ports.ProjectRepository
	snapshots ports.SnapshotRepository
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewAnalyzer builds an analyzer; a non-positive threshold means DefaultThreshold.
func NewAnalyzer(projects ports.ProjectRepository, snapshots ports.SnapshotRepository, threshold time.Duration, logger *slog.Logger) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Analyzer{projects: projects, snapshots: snapshots, threshold: threshold, now: time.Now, logger: logger}
}

// Analyze classifies the project's overall freshness. Entities without a
// snapshot count as stale.
func (a *Analyzer) Analyze(ctx context.Context, projectID string) (Report, error) {
	project, err := a.projects.GetProject(ctx, projectID)
	if err != nil {
		return Report{}, fmt.Errorf("load project %s: %w", projectID, err)
	}

	now := a.now()
	report := Report{ProjectID: projectID, Threshold: a.threshold}
	for _, entity := range project.Entities() {
		snap, err := a.snapshots.LatestSnapshot(ctx, entity.Kind, entity.ID)
		if err != nil {
			return Report{}, fmt.Errorf("latest snapshot of %s %s: %w", entity.Kind, entity.ID, err)
		}

		age := EntityAge{Entity: entity, Stale: true}
		if snap != nil {
			age.HasSnapshot = true
			age.CapturedAt = snap.CapturedAt
			age.Age = snap.Age(now)
			age.Stale = age.Age > a.threshold
		}
		if age.Stale {
			report.StaleCount++
		}
		report.Entities = append(report.Entities, age)
	}

	report.Classification = Classify(report.StaleCount, len(report.Entities))
	a.debug("freshness analysed", "project", projectID, "stale", report.StaleCount,
		"total", len(report.Entities), "classification", report.Classification)
	return report, nil
}

// Classify buckets the stale fraction of a project.
func Classify(stale, total int) domain.FreshnessClass {
	if total == 0 || stale == 0 {
		return domain.Fresh
	}
	fraction := float64(stale) / float64(total)
	switch {
	case fraction <= 0.5:
		return domain.PartiallyStale
	case fraction < 0.8:
		return domain.MostlyStale
	default:
		return domain.Critical
	}
}

// ShouldTriggerStaleRefresh decides whether stale data warrants a capture
// before generation.
func ShouldTriggerStaleRefresh(report Report, req RefreshRequest) bool {
	if report.Classification == domain.Fresh {
		return false
	}
	if req.RequireFresh && report.StaleCount > 0 {
		return true
	}

	switch report.Classification {
	case domain.Critical:
		return true
	case domain.MostlyStale:
		return req.Priority != domain.PriorityLow
	case domain.PartiallyStale:
		return req.Priority == domain.PriorityHigh
	default:
		return false
	}
}

func (a *Analyzer) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
