package freshness

import (
	"context"
	"errors"
	"testing"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/infrastructure/storage"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stale, total int
		want         domain.FreshnessClass
	}{
		{0, 0, domain.Fresh},
		{0, 4, domain.Fresh},
		{1, 4, domain.PartiallyStale},
		{2, 4, domain.PartiallyStale},
		{3, 5, domain.MostlyStale},
		{4, 5, domain.Critical},
		{3, 3, domain.Critical},
	}
	for _, tc := range cases {
		if got := Classify(tc.stale, tc.total); got != tc.want {
			t.Fatalf("Classify(%d, %d) = %s, want %s", tc.stale, tc.total, got, tc.want)
		}
	}
}

func TestShouldTriggerStaleRefresh(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		class domain.FreshnessClass
		stale int
		req   RefreshRequest
		want  bool
	}{
		{"fresh never refreshes", domain.Fresh, 0, RefreshRequest{RequireFresh: true, Priority: domain.PriorityHigh}, false},
		{"partial normal", domain.PartiallyStale, 1, RefreshRequest{Priority: domain.PriorityNormal}, false},
		{"partial high", domain.PartiallyStale, 1, RefreshRequest{Priority: domain.PriorityHigh}, true},
		{"partial require fresh", domain.PartiallyStale, 1, RefreshRequest{RequireFresh: true, Priority: domain.PriorityLow}, true},
		{"mostly low", domain.MostlyStale, 3, RefreshRequest{Priority: domain.PriorityLow}, false},
		{"mostly normal", domain.MostlyStale, 3, RefreshRequest{Priority: domain.PriorityNormal}, true},
		{"critical low", domain.Critical, 4, RefreshRequest{Priority: domain.PriorityLow}, true},
		{"critical normal", domain.Critical, 4, RefreshRequest{Priority: domain.PriorityNormal}, true},
	}
	for _, tc := range cases {
		report := Report{Classification: tc.class, StaleCount: tc.stale}
		if got := ShouldTriggerStaleRefresh(report, tc.req); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAnalyzeCountsMissingSnapshotsAsStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	err := store.CreateProject(ctx, domain.Project{
		ID:          "p1",
		Products:    []domain.Product{{ID: "prod"}},
		Competitors: []domain.Competitor{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s1", EntityKind: domain.EntityProduct, EntityID: "prod", CapturedAt: now.Add(-24 * time.Hour)})
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s2", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: now.Add(-2 * time.Hour)})
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s3", EntityKind: domain.EntityCompetitor, EntityID: "c2", CapturedAt: now.Add(-30 * 24 * time.Hour)})

	analyzer := NewAnalyzer(store, store, 0, nil)
	analyzer.now = func() time.Time { return now }

	report, err := analyzer.Analyze(ctx, "p1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.StaleCount != 2 {
		t.Fatalf("expected 2 stale entities, got %d", report.StaleCount)
	}
	if report.Classification != domain.PartiallyStale {
		t.Fatalf("expected partially_stale, got %s", report.Classification)
	}
	stale := report.StaleEntities()
	if len(stale) != 2 || stale[0].ID != "c2" || stale[1].ID != "c3" {
		t.Fatalf("unexpected stale entities: %+v", stale)
	}
}

func TestAnalyzeHonoursCustomThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.CreateProject(ctx, domain.Project{ID: "p1", Competitors: []domain.Competitor{{ID: "c1"}}})

	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s1", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: now.Add(-48 * time.Hour)})

	analyzer := NewAnalyzer(store, store, 24*time.Hour, nil)
	analyzer.now = func() time.Time { return now }

	report, err := analyzer.Analyze(ctx, "p1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Classification != domain.Critical {
		t.Fatalf("expected critical with 1-day threshold, got %s", report.Classification)
	}
}

func TestAnalyzeUnknownProject(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	_, err := NewAnalyzer(store, store, 0, nil).Analyze(context.Background(), "missing")
	if !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}
