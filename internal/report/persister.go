package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// Persister writes a report and its first version in one transaction.
type Persister struct {
	tx      ports.Transactor
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// NewPersister creates a persister bounded by timeout per write.
func NewPersister(tx ports.Transactor, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Persister{tx: tx, timeout: timeout, now: time.Now, newID: uuid.NewString}
}

// Persist commits a completed report with version 1 carrying content, or
// nothing at all. Failures are persistence StageErrors.
func (p *Persister) Persist(ctx context.Context, project domain.Project, content domain.ReportContent) (domain.Report, domain.ReportVersion, error) {
	if content.Empty() {
		return domain.Report{}, domain.ReportVersion{}, domain.NewStageError(domain.FailurePersistence, "persist", errors.New("refusing to persist empty content"))
	}

	now := p.now().UTC()
	report := domain.Report{
		ID:           p.newID(),
		ProjectID:    project.ID,
		CompetitorID: project.PrimaryCompetitorID(),
		Name:         content.Title,
		Status:       domain.ReportCompleted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	content.Metadata.Status = string(report.Status)
	if content.Metadata.GeneratedAt.IsZero() {
		content.Metadata.GeneratedAt = now
	}
	version := domain.ReportVersion{
		ID:        p.newID(),
		ReportID:  report.ID,
		Version:   1,
		Content:   content,
		CreatedAt: now,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.tx.RunInTx(ctx, func(ctx context.Context, w ports.ReportWriter) error {
		if err := w.InsertReport(ctx, report); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		if err := w.InsertReportVersion(ctx, version); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Report{}, domain.ReportVersion{}, domain.NewStageError(domain.FailurePersistence, "persist", err)
	}
	return report, version, nil
}
