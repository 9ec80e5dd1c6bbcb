package ports

import (
	"context"
	"time"

	"CompetitorReports/internal/domain"
)

// ProjectRepository loads projects with their products and competitors.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
}

// SnapshotRepository reads and stores entity snapshots.
type SnapshotRepository interface {
	// LatestSnapshot returns nil without error when the entity has none.
	LatestSnapshot(ctx context.Context, kind domain.EntityKind, entityID string) (*domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error
}

// ReportRepository is the read side of report storage.
type ReportRepository interface {
	GetReport(ctx context.Context, id string) (domain.Report, error)
	// FindRecentReport returns the newest completed report created at or after since.
	FindRecentReport(ctx context.Context, projectID string, since time.Time) (*domain.Report, error)
	ListVersions(ctx context.Context, reportID string) ([]domain.ReportVersion, error)
	ListReportsSince(ctx context.Context, since time.Time) ([]domain.Report, error)
	// FindZombieReports lists completed reports without any version.
	FindZombieReports(ctx context.Context) ([]domain.Report, error)
}

// ReportWriter is only reachable inside a transaction.
type ReportWriter interface {
	InsertReport(ctx context.Context, report domain.Report) error
	InsertReportVersion(ctx context.Context, version domain.ReportVersion) error
}

// Transactor runs fn with all-or-nothing commit semantics.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ReportWriter) error) error
}

// Store bundles the persistence collaborators used by generation.
type Store interface {
	ProjectRepository
	SnapshotRepository
	ReportRepository
	Transactor
}

// Scraper captures an entity's website and persists the snapshot.
type Scraper interface {
	Capture(ctx context.Context, target domain.EntityRef, mode domain.CaptureMode) (domain.Snapshot, error)
}

// Analyzer produces summary and recommendation text for the report.
type Analyzer interface {
	Analyze(ctx context.Context, input domain.AnalysisInput) (domain.Analysis, error)
}

// Alerter hands alert events to a delivery channel.
type Alerter interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
