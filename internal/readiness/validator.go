package readiness

import (
	"context"
	"fmt"
	"log/slog"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

const (
	productWeight     = 40
	productDataWeight = 20
	competitorWeight  = 40
)

// Validator scores whether a project has what generation needs.
type Validator struct {
	projects  ports.ProjectRepository
	snapshots ports.SnapshotRepository
	logger    *slog.Logger
}

// NewValidator wires the repositories used to inspect a project.
func NewValidator(projects ports.ProjectRepository, snapshots ports.SnapshotRepository, logger *slog.Logger) *Validator {
	return &Validator{projects: projects, snapshots: snapshots, logger: logger}
}

// Validate inspects the project. It only fails when the project cannot be loaded.
func (v *Validator) Validate(ctx context.Context, projectID string) (domain.ReadinessResult, error) {
	project, err := v.projects.GetProject(ctx, projectID)
	if err != nil {
		return domain.ReadinessResult{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return v.Evaluate(ctx, project), nil
}

// Evaluate scores an already loaded project.
func (v *Validator) Evaluate(ctx context.Context, project domain.Project) domain.ReadinessResult {
	result := domain.ReadinessResult{
		HasProduct:     len(project.Products) > 0,
		HasCompetitors: len(project.Competitors) > 0,
	}

	if product, ok := project.PrimaryProduct(); ok && v.snapshots != nil {
		snap, err := v.snapshots.LatestSnapshot(ctx, domain.EntityProduct, product.ID)
		if err != nil {
			v.debug("product snapshot lookup failed", "project", project.ID, "error", err)
		}
		result.HasProductData = snap != nil
	}

	if result.HasProduct {
		result.Score += productWeight
	} else {
		result.MissingData = append(result.MissingData, "product")
	}
	if result.HasProductData {
		result.Score += productDataWeight
	} else {
		result.MissingData = append(result.MissingData, "product snapshot")
	}
	if result.HasCompetitors {
		result.Score += competitorWeight
	} else {
		result.MissingData = append(result.MissingData, "competitors")
	}
	if result.Score > 100 {
		result.Score = 100
	}

	result.IsReady = result.HasProduct && result.HasCompetitors
	return result
}

func (v *Validator) debug(msg string, args ...any) {
	if v.logger != nil {
		v.logger.Debug(msg, args...)
	}
}
