package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CompetitorReports/internal/collection"
	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/freshness"
	"CompetitorReports/internal/logging"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/readiness"
	"CompetitorReports/internal/report"
	"CompetitorReports/internal/telemetry"
)

// Stage names reported in GeneratedReport.Stages.
const (
	StageReadiness  = "readiness"
	StageFreshness  = "freshness"
	StageRefresh    = "snapshot-refresh"
	StageCollection = "data-collection"
	StageAssembly   = "assembly"
	StagePersist    = "persist"
	StageEmergency  = "emergency"
)

// GeneratorDeps wires all collaborators into the generation pipeline.
type GeneratorDeps struct {
	Projects  ports.ProjectRepository
	Readiness *readiness.Validator
	Freshness *freshness.Analyzer
	Snapshots *collection.SnapshotCollector
	Collector *collection.PriorityDataCollector
	Assembler *report.Assembler
	Persister *report.Persister
	Guard     *report.DuplicateGuard
	Emergency *report.EmergencyGenerator
	Failures  *telemetry.FailureTracker
	Alerter   ports.Alerter
	Logger    *slog.Logger

	OverallTimeout time.Duration
	// MaxCaptureWait bounds the snapshot refresh and the capture tiers.
	MaxCaptureWait time.Duration
}

// ReportGenerator runs the generation stages and falls back to the
// emergency report when any of them fails.
type ReportGenerator struct {
	projects  ports.ProjectRepository
	readiness *readiness.Validator
	freshness *freshness.Analyzer
	snapshots *collection.SnapshotCollector
	collector *collection.PriorityDataCollector
	assembler *report.Assembler
	persister *report.Persister
	guard     *report.DuplicateGuard
	emergency *report.EmergencyGenerator
	failures  *telemetry.FailureTracker
	alerter   ports.Alerter
	logger    *slog.Logger

	overallTimeout time.Duration
	maxCaptureWait time.Duration
}

// NewReportGenerator constructs the orchestration component.
func NewReportGenerator(deps GeneratorDeps) *ReportGenerator {
	g := &ReportGenerator{
		projects:       deps.Projects,
		readiness:      deps.Readiness,
		freshness:      deps.Freshness,
		snapshots:      deps.Snapshots,
		collector:      deps.Collector,
		assembler:      deps.Assembler,
		persister:      deps.Persister,
		guard:          deps.Guard,
		emergency:      deps.Emergency,
		failures:       deps.Failures,
		alerter:        deps.Alerter,
		logger:         deps.Logger,
		overallTimeout: deps.OverallTimeout,
		maxCaptureWait: deps.MaxCaptureWait,
	}
	if g.logger == nil {
		g.logger = logging.Discard()
	}
	if g.overallTimeout <= 0 {
		g.overallTimeout = 3 * time.Minute
	}
	if g.maxCaptureWait <= 0 {
		g.maxCaptureWait = 45 * time.Second
	}
	return g
}

// Generate returns a completed report for the project: a reused recent one,
// a freshly generated one or an emergency one. An error is only returned
// when the emergency path fails too.
func (g *ReportGenerator) Generate(ctx context.Context, projectID string, opts domain.GenerateOptions) (domain.GeneratedReport, error) {
	opts = opts.Normalize()
	if g.guard == nil {
		return g.run(ctx, projectID, opts)
	}
	return g.guard.Do(ctx, projectID, opts.ForceGeneration, func() (domain.GeneratedReport, error) {
		return g.run(ctx, projectID, opts)
	})
}

type stageLog struct {
	outcomes []domain.StageOutcome
}

func (s *stageLog) add(stage string, status domain.StageStatus, started time.Time, detail string) {
	s.outcomes = append(s.outcomes, domain.StageOutcome{Stage: stage, Status: status, Detail: detail, Duration: time.Since(started)})
}

func (g *ReportGenerator) run(ctx context.Context, projectID string, opts domain.GenerateOptions) (domain.GeneratedReport, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.overallTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stages := &stageLog{}
	logger := g.logger.With("project", projectID)

	out, err := g.primary(runCtx, logger, projectID, opts, stages)
	if err == nil {
		out.Stages = stages.outcomes
		logger.Info("report generated", "report", out.Report.ID, "kind", out.Version.Content.Metadata.Kind,
			"score", out.Version.Content.Metadata.CompletenessScore)
		return out, nil
	}

	logger.Warn("generation failed, falling back to emergency report", "error", err)
	g.failures.Record(ctx, telemetry.OpReportGeneration, err)
	return g.fallback(ctx, logger, projectID, err, opts, stages)
}

func (g *ReportGenerator) primary(ctx context.Context, logger *slog.Logger, projectID string, opts domain.GenerateOptions, stages *stageLog) (domain.GeneratedReport, error) {
	started := time.Now()
	project, err := g.projects.GetProject(ctx, projectID)
	if err != nil {
		stages.add(StageReadiness, domain.StageFailed, started, "project could not be loaded")
		return domain.GeneratedReport{}, domain.NewStageError(domain.FailureReadiness, StageReadiness, err)
	}

	ready := g.readiness.Evaluate(ctx, project)
	switch {
	case ready.IsReady:
		stages.add(StageReadiness, domain.StageSuccess, started, fmt.Sprintf("score %d", ready.Score))
	case opts.FallbackToPartial:
		stages.add(StageReadiness, domain.StageDegraded, started, fmt.Sprintf("score %d, missing %v", ready.Score, ready.MissingData))
		logger.Warn("project not ready, continuing with partial data", "missing", ready.MissingData)
	default:
		stages.add(StageReadiness, domain.StageFailed, started, fmt.Sprintf("missing %v", ready.MissingData))
		return domain.GeneratedReport{}, domain.NewStageError(domain.FailureReadiness, StageReadiness,
			fmt.Errorf("%w: %v", domain.ErrNotReady, ready.MissingData))
	}

	refreshed, allRefreshed := g.refreshStale(ctx, logger, projectID, opts, stages)

	started = time.Now()
	summary, err := g.collector.Collect(ctx, projectID, collection.PriorityOptions{
		RequireFresh:   opts.RequireFreshSnapshot && !allRefreshed,
		MaxCaptureTime: g.maxCaptureWait,
		AllowPartial:   true,
		Refreshed:      refreshed,
	})
	if err != nil {
		stages.add(StageCollection, domain.StageFailed, started, "")
		return domain.GeneratedReport{}, domain.NewStageError(domain.FailureCollection, StageCollection, err)
	}
	collectStatus := domain.StageSuccess
	if summary.Freshness != domain.FreshnessNew {
		collectStatus = domain.StageDegraded
	}
	stages.add(StageCollection, collectStatus, started, fmt.Sprintf("completeness %d, freshness %s", summary.CompletenessScore, summary.Freshness))

	started = time.Now()
	content, err := g.assembler.Assemble(ctx, project, summary, opts)
	if err != nil {
		stages.add(StageAssembly, domain.StageFailed, started, "")
		return domain.GeneratedReport{}, err
	}
	assemblyStatus := domain.StageSuccess
	if content.Metadata.Kind == domain.KindPartial {
		assemblyStatus = domain.StageDegraded
	}
	stages.add(StageAssembly, assemblyStatus, started, string(content.Metadata.Kind))

	started = time.Now()
	rep, version, err := g.persister.Persist(ctx, project, content)
	if err != nil {
		stages.add(StagePersist, domain.StageFailed, started, "")
		return domain.GeneratedReport{}, err
	}
	stages.add(StagePersist, domain.StageSuccess, started, rep.ID)
	return domain.GeneratedReport{Report: rep, Version: version}, nil
}

// refreshStale is best effort: failures are counted and logged, never
// returned. It returns the snapshots it captured and whether every stale
// entity was captured.
func (g *ReportGenerator) refreshStale(ctx context.Context, logger *slog.Logger, projectID string, opts domain.GenerateOptions, stages *stageLog) ([]domain.Snapshot, bool) {
	if g.freshness == nil {
		stages.add(StageFreshness, domain.StageSkipped, time.Now(), "no freshness analyzer")
		return nil, false
	}

	started := time.Now()
	fr, err := g.freshness.Analyze(ctx, projectID)
	if err != nil {
		g.failures.Record(ctx, telemetry.OpStaleSnapshotCheck, err)
		logger.Warn("stale snapshot check failed", "error", err)
		stages.add(StageFreshness, domain.StageFailed, started, "staleness could not be determined")
		return nil, false
	}
	stages.add(StageFreshness, domain.StageSuccess, started, string(fr.Classification))

	if !freshness.ShouldTriggerStaleRefresh(fr, freshness.RefreshRequest{RequireFresh: opts.RequireFreshSnapshot, Priority: opts.Priority}) {
		stages.add(StageRefresh, domain.StageSkipped, time.Now(), "not required")
		return nil, false
	}
	if g.snapshots == nil {
		stages.add(StageRefresh, domain.StageSkipped, time.Now(), "no snapshot collector")
		return nil, false
	}

	started = time.Now()
	res := g.snapshots.Collect(ctx, collection.CaptureRequest{
		ProjectID:     projectID,
		Priority:      opts.Priority,
		InitialReport: opts.InitialReport,
		MaxWait:       g.maxCaptureWait,
		Entities:      fr.StaleEntities(),
	})
	if res.Err != nil {
		g.failures.Record(ctx, telemetry.OpStaleSnapshotCheck, res.Err)
		stages.add(StageRefresh, domain.StageFailed, started, "refresh could not start")
		return nil, false
	}
	detail := fmt.Sprintf("captured %d of %d", res.Captured, res.Total)
	if !res.Success {
		logger.Warn("snapshot refresh incomplete", "captured", res.Captured, "total", res.Total, "failures", len(res.Failures))
		stages.add(StageRefresh, domain.StageDegraded, started, detail)
		return res.Snapshots, false
	}
	stages.add(StageRefresh, domain.StageSuccess, started, detail)
	return res.Snapshots, true
}

func (g *ReportGenerator) fallback(ctx context.Context, logger *slog.Logger, projectID string, cause error, opts domain.GenerateOptions, stages *stageLog) (domain.GeneratedReport, error) {
	// The emergency report must still be written when the run deadline
	// has passed; the persister applies its own write timeout.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	if g.emergency == nil {
		err := domain.NewStageError(domain.FailureTerminal, StageEmergency, fmt.Errorf("no emergency generator: %w", cause))
		stages.add(StageEmergency, domain.StageFailed, started, "")
		return domain.GeneratedReport{}, err
	}

	rep, version, err := g.emergency.Generate(ctx, projectID, cause, opts)
	if err != nil {
		stages.add(StageEmergency, domain.StageFailed, started, "")
		g.failures.Record(ctx, telemetry.OpEmergencyFallback, err)
		g.alert(ctx, domain.SeverityCritical, projectID, "", fmt.Sprintf("report generation failed completely: %s", report.UserSafeReason(cause)))
		logger.Error("emergency report failed", "error", err, "cause", cause)
		return domain.GeneratedReport{}, errors.Join(err, cause)
	}

	stages.add(StageEmergency, domain.StageDegraded, started, rep.ID)
	g.alert(ctx, domain.SeverityWarning, projectID, rep.ID, fmt.Sprintf("emergency report generated because %s", report.UserSafeReason(cause)))
	return domain.GeneratedReport{Report: rep, Version: version, Emergency: true, Stages: stages.outcomes}, nil
}

func (g *ReportGenerator) alert(ctx context.Context, severity domain.AlertSeverity, projectID, reportID, message string) {
	if g.alerter == nil {
		return
	}
	err := g.alerter.Send(ctx, domain.Alert{
		Severity:  severity,
		Operation: telemetry.OpReportGeneration,
		ProjectID: projectID,
		ReportID:  reportID,
		Message:   message,
		At:        time.Now(),
	})
	if err != nil {
		g.logger.Warn("alert not delivered", "project", projectID, "error", err)
	}
}

// Validate exposes the readiness check on its own.
func (g *ReportGenerator) Validate(ctx context.Context, projectID string) (domain.ReadinessResult, error) {
	return g.readiness.Validate(ctx, projectID)
}
