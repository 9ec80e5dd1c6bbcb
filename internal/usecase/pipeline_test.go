package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"CompetitorReports/internal/collection"
	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/freshness"
	"CompetitorReports/internal/infrastructure/storage"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/readiness"
	"CompetitorReports/internal/report"
	"CompetitorReports/internal/telemetry"
)

type stubAnalyzer struct{ err error }

func (s stubAnalyzer) Analyze(_ context.Context, input domain.AnalysisInput) (domain.Analysis, error) {
	if s.err != nil {
		return domain.Analysis{}, s.err
	}
	return domain.Analysis{
		Summary:         "Comparison of " + input.ProjectName,
		KeyFindings:     []string{"Globex leads on price"},
		Recommendations: domain.Recommendations{Immediate: []string{"Publish pricing"}},
		Confidence:      75,
	}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (r *recordingAlerter) Send(_ context.Context, alert domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

type fixture struct {
	store     *storage.SQLStore
	generator *ReportGenerator
	alerter   *recordingAlerter
}

func newFixture(t *testing.T, analyzer ports.Analyzer) fixture {
	t.Helper()
	ctx := context.Background()

	backend, err := storage.Open(ctx, filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	store := backend.(*storage.SQLStore)

	project := domain.Project{
		ID:       "proj-1",
		Name:     "Acme Analysis",
		Products: []domain.Product{{ID: "prod-1", Name: "Acme", Website: "https://acme.test", Positioning: "Fast widgets"}},
		Competitors: []domain.Competitor{
			{ID: "comp-1", Name: "Globex", Website: "https://globex.test"},
			{ID: "comp-2", Name: "Initech", Website: "https://initech.test"},
		},
	}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	err = store.SaveSnapshot(ctx, domain.Snapshot{
		ID:         "snap-1",
		EntityKind: domain.EntityCompetitor,
		EntityID:   "comp-1",
		Content:    domain.SnapshotContent{URL: "https://globex.test", Title: "Globex", Features: []string{"Cheap"}},
		CapturedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	alerter := &recordingAlerter{}
	generator := newGenerator(store, generatorParts{analyzer: analyzer, alerter: alerter})
	return fixture{store: store, generator: generator, alerter: alerter}
}

type generatorParts struct {
	analyzer ports.Analyzer
	scraper  ports.Scraper
	alerter  *recordingAlerter
	// collectorProjects replaces the store as the data collector's project source.
	collectorProjects ports.ProjectRepository
}

func newGenerator(store *storage.SQLStore, parts generatorParts) *ReportGenerator {
	if parts.alerter == nil {
		parts.alerter = &recordingAlerter{}
	}
	var collectorProjects ports.ProjectRepository = store
	if parts.collectorProjects != nil {
		collectorProjects = parts.collectorProjects
	}
	failures := telemetry.NewFailureTracker(telemetry.Options{Registerer: prometheus.NewRegistry(), Alerter: parts.alerter})
	persister := report.NewPersister(store, 5*time.Second)

	return NewReportGenerator(GeneratorDeps{
		Projects:  store,
		Readiness: readiness.NewValidator(store, store, nil),
		Freshness: freshness.NewAnalyzer(store, store, freshness.DefaultThreshold, nil),
		Snapshots: collection.NewSnapshotCollector(store, store, parts.scraper, nil, nil, failures, collection.SnapshotCollectorConfig{}, nil),
		Collector: collection.NewPriorityDataCollector(collectorProjects, store, parts.scraper, nil, nil, collection.PriorityConfig{}, nil),
		Assembler: report.NewAssembler(parts.analyzer, report.AssemblerConfig{}, nil),
		Persister: persister,
		Guard:     report.NewDuplicateGuard(store, report.DefaultDuplicateWindow, nil),
		Emergency: report.NewEmergencyGenerator(store, persister, nil),
		Failures:  failures,
		Alerter:   parts.alerter,

		MaxCaptureWait: 5 * time.Second,
	})
}

func assertNoZombies(t *testing.T, store ports.ReportRepository) {
	t.Helper()
	zombies, err := store.FindZombieReports(context.Background())
	if err != nil {
		t.Fatalf("FindZombieReports: %v", err)
	}
	if len(zombies) != 0 {
		t.Fatalf("found zombie reports: %+v", zombies)
	}
}

func countReports(t *testing.T, store ports.ReportRepository) int {
	t.Helper()
	reports, err := store.ListReportsSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("ListReportsSince: %v", err)
	}
	return len(reports)
}

func TestGenerateEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{})

	ready, err := f.generator.Validate(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ready.Score != 80 || !ready.IsReady {
		t.Fatalf("unexpected readiness: %+v", ready)
	}

	out, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Emergency || out.Reused {
		t.Fatalf("expected a freshly generated report: %+v", out)
	}

	md := out.Version.Content.Metadata
	if md.CompletenessScore < 50 || md.CompletenessScore > 70 {
		t.Fatalf("completeness %d outside expected range", md.CompletenessScore)
	}
	if md.DataFreshness != domain.FreshnessMixed {
		t.Fatalf("freshness = %s", md.DataFreshness)
	}

	versions, err := f.store.ListVersions(ctx, out.Report.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 {
		t.Fatalf("expected exactly one version, got %+v", versions)
	}
	stored, err := f.store.GetReport(ctx, out.Report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if versions[0].Content.Metadata.Status != string(stored.Status) {
		t.Fatalf("content status %q does not match report status %q", versions[0].Content.Metadata.Status, stored.Status)
	}
	if len(out.Stages) == 0 {
		t.Fatalf("stage outcomes missing")
	}
	assertNoZombies(t, f.store)
}

func TestGenerateSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{})

	first, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.Reused || second.Report.ID != first.Report.ID || countReports(t, f.store) != 1 {
		t.Fatalf("second call should reuse %s, got %s", first.Report.ID, second.Report.ID)
	}

	forced, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{ForceGeneration: true})
	if err != nil {
		t.Fatalf("forced Generate: %v", err)
	}
	if forced.Report.ID == first.Report.ID || countReports(t, f.store) != 2 {
		t.Fatalf("forced call must write a new report")
	}
}

func TestGenerateFallsBackToEmergency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{err: errors.New("dial tcp: lookup api ENOTFOUND")})

	out, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Emergency || out.Version.Content.Metadata.Kind != domain.KindEmergency {
		t.Fatalf("expected emergency report: %+v", out.Version.Content.Metadata)
	}
	summary := out.Version.Content.ExecutiveSummary
	for _, banned := range []string{"undefined", "null", "ENOTFOUND"} {
		if strings.Contains(summary, banned) {
			t.Fatalf("summary leaks %q: %s", banned, summary)
		}
	}
	if out.Version.Content.StrategicRecommendations.Empty() {
		t.Fatalf("emergency report needs recommendations")
	}
	if len(f.alerter.alerts) == 0 {
		t.Fatalf("expected an emergency alert")
	}
	assertNoZombies(t, f.store)
}

func TestGenerateNotReadyWithoutPartialFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{})
	lonely := domain.Project{ID: "proj-2", Name: "Solo", Products: []domain.Product{{ID: "prod-2", Name: "Solo"}}}
	if err := f.store.CreateProject(ctx, lonely); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	out, err := f.generator.Generate(ctx, "proj-2", domain.GenerateOptions{})
	if err != nil || !out.Emergency {
		t.Fatalf("expected emergency report, got %+v err=%v", out, err)
	}

	partial, err := f.generator.Generate(ctx, "proj-2", domain.GenerateOptions{FallbackToPartial: true, ForceGeneration: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if partial.Emergency || partial.Version.Content.Metadata.Kind != domain.KindPartial {
		t.Fatalf("expected partial report, got %+v", partial.Version.Content.Metadata)
	}
}

func TestGeneratePersistenceFaultIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{})
	_, err := f.store.DB().ExecContext(ctx, `CREATE TRIGGER fail_version_insert BEFORE INSERT ON report_versions
BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err = f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{})
	if kind, ok := domain.FailureKindOf(err); !ok || kind != domain.FailureTerminal {
		t.Fatalf("expected terminal failure, got %v", err)
	}
	if countReports(t, f.store) != 0 {
		t.Fatalf("failed transactions must not leave report rows")
	}
	assertNoZombies(t, f.store)
}

func TestGenerateUnknownProjectIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, stubAnalyzer{})
	_, err := f.generator.Generate(context.Background(), "missing", domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestIntegritySweepRunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, stubAnalyzer{})
	if _, err := f.generator.Generate(ctx, "proj-1", domain.GenerateOptions{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sweep := NewIntegritySweep(nil, report.NewIntegrityValidator(f.store, f.alerter, nil, nil), time.Hour, nil)
	verdicts, err := sweep.RunOnce(ctx, time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(verdicts) != 1 || !verdicts[0].Valid {
		t.Fatalf("unexpected verdicts: %+v", verdicts)
	}
}

// storingScraper saves every capture like the real capturer and counts
// calls per entity and mode.
type storingScraper struct {
	store ports.SnapshotRepository

	mu       sync.Mutex
	calls    map[string]int
	failOnce map[string]bool
}

func newStoringScraper(store ports.SnapshotRepository, failOnce ...string) *storingScraper {
	s := &storingScraper{store: store, calls: map[string]int{}, failOnce: map[string]bool{}}
	for _, id := range failOnce {
		s.failOnce[id] = true
	}
	return s
}

func (s *storingScraper) Capture(ctx context.Context, target domain.EntityRef, mode domain.CaptureMode) (domain.Snapshot, error) {
	s.mu.Lock()
	s.calls[target.ID+"/"+string(mode)]++
	n := s.calls[target.ID+"/"+string(mode)]
	fail := s.failOnce[target.ID] && n == 1
	s.mu.Unlock()

	if fail {
		return domain.Snapshot{}, errors.New("connection reset")
	}
	snap := domain.Snapshot{
		ID:         fmt.Sprintf("%s-%s-%d", target.ID, mode, n),
		EntityKind: target.Kind,
		EntityID:   target.ID,
		Content:    domain.SnapshotContent{URL: target.Website, Title: target.Name, Features: []string{"Widgets"}},
		CapturedAt: time.Now(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (s *storingScraper) count(id string, mode domain.CaptureMode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id+"/"+string(mode)]
}

func seedStaleProject(t *testing.T, store *storage.SQLStore) {
	t.Helper()
	project := domain.Project{
		ID:       "proj-stale",
		Name:     "Stale Analysis",
		Products: []domain.Product{{ID: "prod-s", Name: "Acme", Website: "https://acme.test"}},
		Competitors: []domain.Competitor{
			{ID: "comp-s1", Name: "Globex", Website: "https://globex.test"},
			{ID: "comp-s2", Name: "Initech", Website: "https://initech.test"},
		},
	}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
}

func TestGenerateReusesRefreshedSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t, stubAnalyzer{})
	seedStaleProject(t, f.store)
	scraper := newStoringScraper(f.store)
	generator := newGenerator(f.store, generatorParts{analyzer: stubAnalyzer{}, scraper: scraper})

	out, err := generator.Generate(context.Background(), "proj-stale", domain.GenerateOptions{
		RequireFreshSnapshot: true,
		Priority:             domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Emergency {
		t.Fatalf("unexpected emergency report: %+v", out.Stages)
	}

	for _, id := range []string{"prod-s", "comp-s1", "comp-s2"} {
		if full, light := scraper.count(id, domain.CaptureFull), scraper.count(id, domain.CaptureLightweight); full != 1 || light != 0 {
			t.Fatalf("%s captured full=%d lightweight=%d, want one full capture", id, full, light)
		}
	}
	if score := out.Version.Content.Metadata.CompletenessScore; score != 100 {
		t.Fatalf("completeness = %d, want 100", score)
	}
	if out.Version.Content.Metadata.DataFreshness != domain.FreshnessNew {
		t.Fatalf("freshness = %s, want new", out.Version.Content.Metadata.DataFreshness)
	}
}

func TestGenerateRecapturesOnlyFailedRefreshes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, stubAnalyzer{})
	seedStaleProject(t, f.store)
	scraper := newStoringScraper(f.store, "comp-s2")
	generator := newGenerator(f.store, generatorParts{analyzer: stubAnalyzer{}, scraper: scraper})

	out, err := generator.Generate(context.Background(), "proj-stale", domain.GenerateOptions{
		RequireFreshSnapshot: true,
		Priority:             domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := map[string]int{"prod-s": 1, "comp-s1": 1, "comp-s2": 2}
	for id, n := range want {
		if got := scraper.count(id, domain.CaptureFull); got != n {
			t.Fatalf("%s full captures = %d, want %d", id, got, n)
		}
		if got := scraper.count(id, domain.CaptureLightweight); got != 0 {
			t.Fatalf("%s lightweight captures = %d, want 0", id, got)
		}
	}
	if score := out.Version.Content.Metadata.CompletenessScore; score != 100 {
		t.Fatalf("completeness = %d, want 100", score)
	}
}

type collectionFailingProjects struct {
	err error
}

func (p collectionFailingProjects) GetProject(context.Context, string) (domain.Project, error) {
	return domain.Project{}, p.err
}

func TestGenerateCollectionFailureYieldsSafeEmergencyReport(t *testing.T) {
	t.Parallel()

	f := newFixture(t, stubAnalyzer{})
	alerter := &recordingAlerter{}
	generator := newGenerator(f.store, generatorParts{
		analyzer:          stubAnalyzer{},
		alerter:           alerter,
		collectorProjects: collectionFailingProjects{err: errors.New("getaddrinfo ENOTFOUND db.internal: value is null")},
	})

	out, err := generator.Generate(context.Background(), "proj-1", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Emergency || out.Version.Content.Metadata.Kind != domain.KindEmergency {
		t.Fatalf("expected emergency report: %+v", out.Version.Content.Metadata)
	}

	var collectionFailed bool
	for _, stage := range out.Stages {
		if stage.Stage == StageCollection && stage.Status == domain.StageFailed {
			collectionFailed = true
		}
	}
	if !collectionFailed {
		t.Fatalf("expected failed data-collection stage: %+v", out.Stages)
	}

	summary := out.Version.Content.ExecutiveSummary
	for _, banned := range []string{"undefined", "null", "ENOTFOUND"} {
		if strings.Contains(summary, banned) {
			t.Fatalf("summary leaks %q: %s", banned, summary)
		}
	}
	recs := out.Version.Content.StrategicRecommendations
	if recs.Empty() {
		t.Fatalf("emergency report needs recommendations")
	}
	for _, list := range [][]string{recs.Immediate, recs.ShortTerm, recs.LongTerm} {
		for _, r := range list {
			if strings.TrimSpace(r) == "" {
				t.Fatalf("blank recommendation in %+v", recs)
			}
		}
	}
	if len(alerter.alerts) == 0 {
		t.Fatalf("expected an emergency alert")
	}
	assertNoZombies(t, f.store)
}
