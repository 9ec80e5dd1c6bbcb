package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/infrastructure/storage"
	"CompetitorReports/internal/telemetry"
)

func newTracker() *telemetry.FailureTracker {
	return telemetry.NewFailureTracker(telemetry.Options{Registerer: prometheus.NewRegistry()})
}

func TestSnapshotCollectorCapturesAll(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	scraper := newFakeScraper()

	c := NewSnapshotCollector(store, store, scraper, nil, nil, newTracker(), SnapshotCollectorConfig{MaxConcurrency: 2}, nil)
	res := c.Collect(context.Background(), CaptureRequest{ProjectID: "p1", Priority: domain.PriorityHigh, MaxWait: time.Second})

	if !res.Success || res.Captured != 3 || res.Total != 3 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Usage.PeakConcurrency < 1 || res.Usage.PeakConcurrency > 2 {
		t.Fatalf("peak concurrency %d outside pool bounds", res.Usage.PeakConcurrency)
	}
	if scraper.count(domain.CaptureFull) != 3 {
		t.Fatalf("expected 3 full captures, got %d", scraper.count(domain.CaptureFull))
	}
}

func TestSnapshotCollectorDeadline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "old", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: time.Now().Add(-time.Hour)})

	scraper := newFakeScraper()
	scraper.delay = 5 * time.Second

	c := NewSnapshotCollector(store, store, scraper, nil, nil, newTracker(), SnapshotCollectorConfig{PerEntityTimeout: 10 * time.Second}, nil)
	start := time.Now()
	res := c.Collect(ctx, CaptureRequest{ProjectID: "p1", MaxWait: 50 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("collector blocked past max wait: %s", elapsed)
	}

	if res.Success || res.Captured != 0 || len(res.Failures) != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, f := range res.Failures {
		if f.ErrorClass != ErrorClassTimeout {
			t.Fatalf("expected timeout class, got %+v", f)
		}
		if f.EntityID == "c1" && !f.FallbackUsed {
			t.Fatalf("c1 has a stored snapshot to fall back on")
		}
		if f.EntityID == "c2" && f.FallbackUsed {
			t.Fatalf("c2 has no stored snapshot")
		}
	}
}

func TestSnapshotCollectorCircuitOpens(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	project := domain.Project{
		ID:       "p1",
		Products: []domain.Product{{ID: "prod", Website: "https://same.test"}},
		Competitors: []domain.Competitor{
			{ID: "c1", Website: "https://same.test/a"},
			{ID: "c2", Website: "https://same.test/b"},
			{ID: "c3", Website: "https://same.test/c"},
		},
	}
	seedProject(t, store, project)
	scraper := newFakeScraper()
	scraper.fail[domain.CaptureFull] = errors.New("connection refused")

	breaker := NewDomainBreaker(BreakerConfig{FailureThreshold: 2, Window: time.Minute, Cooldown: time.Hour})
	c := NewSnapshotCollector(store, store, scraper, breaker, nil, newTracker(), SnapshotCollectorConfig{MaxConcurrency: 1}, nil)
	res := c.Collect(context.Background(), CaptureRequest{ProjectID: "p1", MaxWait: time.Second})

	classes := map[string]int{}
	for _, f := range res.Failures {
		classes[f.ErrorClass]++
	}
	if classes[ErrorClassCapture] != 2 || classes[ErrorClassCircuitOpen] != 2 {
		t.Fatalf("unexpected failure classes: %v", classes)
	}
	if scraper.count(domain.CaptureFull) != 2 {
		t.Fatalf("open circuit must skip the scraper, calls=%d", scraper.count(domain.CaptureFull))
	}
}

func TestSnapshotCollectorWithoutScraper(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	c := NewSnapshotCollector(store, store, nil, nil, nil, nil, SnapshotCollectorConfig{}, nil)
	res := c.Collect(context.Background(), CaptureRequest{ProjectID: "p1"})
	if res.Success || len(res.Failures) != 3 || res.Failures[0].ErrorClass != ErrorClassUnavailable {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSnapshotCollectorUnknownProject(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	c := NewSnapshotCollector(store, store, nil, nil, nil, nil, SnapshotCollectorConfig{}, nil)
	res := c.Collect(context.Background(), CaptureRequest{ProjectID: "missing"})
	if !errors.Is(res.Err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", res.Err)
	}
}

func TestClassifyCaptureError(t *testing.T) {
	t.Parallel()

	cases := map[error]string{
		domain.ErrCaptureTimeout:     ErrorClassTimeout,
		context.DeadlineExceeded:     ErrorClassTimeout,
		domain.ErrCircuitOpen:        ErrorClassCircuitOpen,
		domain.ErrScraperUnavailable: ErrorClassUnavailable,
		errors.New("dns"):            ErrorClassCapture,
	}
	for err, want := range cases {
		if got := ClassifyCaptureError(err); got != want {
			t.Fatalf("ClassifyCaptureError(%v) = %s, want %s", err, got, want)
		}
	}
}
