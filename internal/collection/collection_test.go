package collection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/infrastructure/storage"
)

type fakeScraper struct {
	mu    sync.Mutex
	calls map[domain.CaptureMode]int
	fail  map[domain.CaptureMode]error
	delay time.Duration
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{calls: map[domain.CaptureMode]int{}, fail: map[domain.CaptureMode]error{}}
}

func (f *fakeScraper) Capture(ctx context.Context, target domain.EntityRef, mode domain.CaptureMode) (domain.Snapshot, error) {
	f.mu.Lock()
	f.calls[mode]++
	err := f.fail[mode]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.Snapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		ID:         target.ID + "-" + string(mode),
		EntityKind: target.Kind,
		EntityID:   target.ID,
		Content:    domain.SnapshotContent{URL: target.Website, Title: target.Name},
		CapturedAt: time.Now(),
	}, nil
}

func (f *fakeScraper) count(mode domain.CaptureMode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[mode]
}

type countingSnapshots struct {
	*storage.MemoryStore
	latest atomic.Int64
}

func (c *countingSnapshots) LatestSnapshot(ctx context.Context, kind domain.EntityKind, id string) (*domain.Snapshot, error) {
	c.latest.Add(1)
	return c.MemoryStore.LatestSnapshot(ctx, kind, id)
}

func seedProject(t *testing.T, store *storage.MemoryStore, project domain.Project) {
	t.Helper()
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
}

func twoCompetitorProject() domain.Project {
	return domain.Project{
		ID:       "p1",
		Name:     "Acme",
		Products: []domain.Product{{ID: "prod", Name: "Acme App", Website: "https://acme.test", Positioning: "fastest"}},
		Competitors: []domain.Competitor{
			{ID: "c1", Name: "Rival One", Website: "https://one.test"},
			{ID: "c2", Name: "Rival Two", Website: "https://two.test"},
		},
	}
}

func TestPriorityStopsAtFreshCapture(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	snaps := &countingSnapshots{MemoryStore: store}
	scraper := newFakeScraper()

	c := NewPriorityDataCollector(store, snaps, scraper, nil, nil, PriorityConfig{BaseTimeout: time.Second}, nil)
	summary, err := c.Collect(context.Background(), "p1", PriorityOptions{RequireFresh: true, AllowPartial: true, MaxCaptureTime: 5 * time.Second})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	for _, r := range summary.Competitors {
		if r.Tier != domain.TierFreshSnapshot || r.Quality != domain.QualityHigh {
			t.Fatalf("competitor %s resolved at %s/%s", r.Entity.ID, r.Tier, r.Quality)
		}
	}
	if got := scraper.count(domain.CaptureLightweight); got != 0 {
		t.Fatalf("expected no lightweight captures, got %d", got)
	}
	if got := snaps.latest.Load(); got != 0 {
		t.Fatalf("expected no stored snapshot lookups, got %d", got)
	}
	if summary.Product == nil || summary.Product.Tier != domain.TierFormData {
		t.Fatalf("product should resolve from form data: %+v", summary.Product)
	}
	if summary.CompletenessScore != 100 || summary.Freshness != domain.FreshnessNew {
		t.Fatalf("unexpected summary: score=%d freshness=%s", summary.CompletenessScore, summary.Freshness)
	}
}

func TestPriorityUsesRefreshedSnapshots(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	project := twoCompetitorProject()
	project.Products[0].Positioning = ""
	seedProject(t, store, project)
	snaps := &countingSnapshots{MemoryStore: store}
	scraper := newFakeScraper()

	refreshed := []domain.Snapshot{
		{ID: "r-prod", EntityKind: domain.EntityProduct, EntityID: "prod", CapturedAt: time.Now()},
		{ID: "r-c1", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: time.Now()},
	}
	c := NewPriorityDataCollector(store, snaps, scraper, nil, nil, PriorityConfig{BaseTimeout: time.Second}, nil)
	summary, err := c.Collect(context.Background(), "p1", PriorityOptions{
		RequireFresh:   true,
		AllowPartial:   true,
		MaxCaptureTime: 5 * time.Second,
		Refreshed:      refreshed,
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if summary.Product == nil || summary.Product.Tier != domain.TierFreshSnapshot || summary.Product.Snapshot.ID != "r-prod" {
		t.Fatalf("product should reuse its refreshed snapshot: %+v", summary.Product)
	}
	if r := summary.Competitors[0]; r.Tier != domain.TierFreshSnapshot || r.Snapshot.ID != "r-c1" {
		t.Fatalf("c1 should reuse its refreshed snapshot: %+v", r)
	}
	if r := summary.Competitors[1]; r.Tier != domain.TierFreshSnapshot || r.Snapshot.ID != "c2-full" {
		t.Fatalf("c2 should be captured fresh: %+v", r)
	}
	if full, light := scraper.count(domain.CaptureFull), scraper.count(domain.CaptureLightweight); full != 1 || light != 0 {
		t.Fatalf("captures full=%d lightweight=%d, want only c2 captured", full, light)
	}
	if got := snaps.latest.Load(); got != 0 {
		t.Fatalf("expected no stored snapshot lookups, got %d", got)
	}
}

func TestPriorityFallsThroughTiers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	old := time.Now().Add(-30 * 24 * time.Hour)
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s1", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: old})

	scraper := newFakeScraper()
	scraper.fail[domain.CaptureFull] = errors.New("boom")
	scraper.fail[domain.CaptureLightweight] = errors.New("boom")

	c := NewPriorityDataCollector(store, store, scraper, nil, nil, PriorityConfig{BaseTimeout: time.Second}, nil)
	summary, err := c.Collect(ctx, "p1", PriorityOptions{RequireFresh: true, AllowPartial: true})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	c1, c2 := summary.Competitors[0], summary.Competitors[1]
	if c1.Tier != domain.TierExistingSnapshot || c1.Quality != domain.QualityLow || c1.Snapshot == nil {
		t.Fatalf("c1: %+v", c1)
	}
	if c2.Tier != domain.TierBasicMetadata || c2.Quality != domain.QualityMinimal {
		t.Fatalf("c2: %+v", c2)
	}
	if len(c2.Attempts) != 4 {
		t.Fatalf("expected 4 failed tiers for c2, got %+v", c2.Attempts)
	}
	if summary.TierCounts[domain.TierBasicMetadata] != 1 || summary.TierCounts[domain.TierExistingSnapshot] != 1 {
		t.Fatalf("tier counts: %v", summary.TierCounts)
	}
}

func TestPriorityWithoutScraper(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	project := twoCompetitorProject()
	seedProject(t, store, project)
	_ = store.SaveSnapshot(ctx, domain.Snapshot{ID: "s1", EntityKind: domain.EntityCompetitor, EntityID: "c1", CapturedAt: time.Now()})

	c := NewPriorityDataCollector(store, store, nil, nil, nil, PriorityConfig{}, nil)
	summary, err := c.Collect(ctx, "p1", PriorityOptions{RequireFresh: true, AllowPartial: true})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	// 40 for form data plus 60 * ((0.4 + 0.2) / 2) / 0.6.
	if summary.CompletenessScore != 70 {
		t.Fatalf("score = %d, want 70", summary.CompletenessScore)
	}
	if summary.Freshness != domain.FreshnessMixed {
		t.Fatalf("freshness = %s", summary.Freshness)
	}
	if summary.Competitors[0].Quality != domain.QualityMedium {
		t.Fatalf("recent snapshot should be medium quality: %+v", summary.Competitors[0])
	}
}

func TestPriorityCaptureBudget(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	seedProject(t, store, twoCompetitorProject())
	scraper := newFakeScraper()
	scraper.delay = time.Second

	c := NewPriorityDataCollector(store, store, scraper, nil, nil, PriorityConfig{BaseTimeout: 5 * time.Second}, nil)
	start := time.Now()
	summary, err := c.Collect(context.Background(), "p1", PriorityOptions{RequireFresh: true, AllowPartial: true, MaxCaptureTime: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("capture budget not enforced: %s", elapsed)
	}
	for _, r := range summary.Competitors {
		if r.Tier != domain.TierBasicMetadata {
			t.Fatalf("expected basic metadata after budget, got %s", r.Tier)
		}
	}
}

func TestPriorityProjectNotFound(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	c := NewPriorityDataCollector(store, store, nil, nil, nil, PriorityConfig{}, nil)
	if _, err := c.Collect(context.Background(), "nope", PriorityOptions{}); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestCompletenessScore(t *testing.T) {
	t.Parallel()

	res := func(tier domain.Tier) domain.CollectionResult { return domain.CollectionResult{Tier: tier} }
	product := func(tier domain.Tier) *domain.CollectionResult { r := res(tier); return &r }

	cases := []struct {
		name        string
		product     *domain.CollectionResult
		competitors []domain.CollectionResult
		want        int
	}{
		{"redistributed fresh", nil, []domain.CollectionResult{res(domain.TierFreshSnapshot)}, 100},
		{"redistributed existing", nil, []domain.CollectionResult{res(domain.TierExistingSnapshot)}, 67},
		{"everything fresh", product(domain.TierFormData), []domain.CollectionResult{res(domain.TierFreshSnapshot), res(domain.TierFastCollection)}, 95},
		{"all basic", product(domain.TierBasicMetadata), []domain.CollectionResult{res(domain.TierBasicMetadata)}, 40},
		{"nothing", nil, nil, 0},
		{"product only", product(domain.TierExistingSnapshot), nil, 30},
	}
	for _, tc := range cases {
		got := CompletenessScore(tc.product, tc.competitors)
		if got != tc.want {
			t.Fatalf("%s: score = %d, want %d", tc.name, got, tc.want)
		}
		if got < 0 || got > 100 {
			t.Fatalf("%s: score %d out of bounds", tc.name, got)
		}
	}
}

func TestCompletenessScoreBounds(t *testing.T) {
	t.Parallel()

	tiers := []domain.Tier{0, domain.TierFormData, domain.TierFreshSnapshot, domain.TierFastCollection,
		domain.TierExistingSnapshot, domain.TierBasicMetadata, 9}
	for _, pt := range tiers {
		for _, ct := range tiers {
			for n := 0; n < 4; n++ {
				comps := make([]domain.CollectionResult, n)
				for i := range comps {
					comps[i].Tier = ct
				}
				p := &domain.CollectionResult{Tier: pt}
				for _, prod := range []*domain.CollectionResult{nil, p} {
					if s := CompletenessScore(prod, comps); s < 0 || s > 100 {
						t.Fatalf("score %d out of bounds (product=%v, competitor tier=%d, n=%d)", s, prod, ct, n)
					}
				}
			}
		}
	}
}

func TestSummaryFreshness(t *testing.T) {
	t.Parallel()

	r := func(tiers ...domain.Tier) []domain.CollectionResult {
		out := make([]domain.CollectionResult, len(tiers))
		for i, tier := range tiers {
			out[i].Tier = tier
		}
		return out
	}
	cases := []struct {
		in   []domain.CollectionResult
		want domain.DataFreshness
	}{
		{r(domain.TierFormData, domain.TierFreshSnapshot), domain.FreshnessNew},
		{r(domain.TierExistingSnapshot), domain.FreshnessExisting},
		{r(domain.TierBasicMetadata, domain.TierBasicMetadata), domain.FreshnessBasic},
		{r(domain.TierFormData, domain.TierBasicMetadata), domain.FreshnessMixed},
		{nil, domain.FreshnessBasic},
	}
	for i, tc := range cases {
		if got := SummaryFreshness(tc.in); got != tc.want {
			t.Fatalf("case %d: got %s, want %s", i, got, tc.want)
		}
	}
}

func TestSiteComplexity(t *testing.T) {
	t.Parallel()

	if got := SiteComplexity("acme.test"); got != 1 {
		t.Fatalf("plain host = %v", got)
	}
	if got := SiteComplexity("https://shop.eu.acme.test/a/b/c/d/e?x=1"); got != 2 {
		t.Fatalf("heavy site should be capped at 2, got %v", got)
	}
}
