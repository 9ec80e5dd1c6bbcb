package collection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// PriorityOptions controls a priority collection run.
type PriorityOptions struct {
	RequireFresh bool
	// MaxCaptureTime bounds every network tier of the run. Store reads are not bound by it.
	MaxCaptureTime time.Duration
	// AllowPartial permits the reduced-scope fast collection tier.
	AllowPartial bool
	// Refreshed holds snapshots captured earlier in the same run. Their
	// entities resolve at the fresh tier without another capture.
	Refreshed []domain.Snapshot
}

type entityKey struct {
	kind domain.EntityKind
	id   string
}

func (o PriorityOptions) refreshedIndex() map[entityKey]domain.Snapshot {
	if len(o.Refreshed) == 0 {
		return nil
	}
	index := make(map[entityKey]domain.Snapshot, len(o.Refreshed))
	for _, snap := range o.Refreshed {
		index[entityKey{kind: snap.EntityKind, id: snap.EntityID}] = snap
	}
	return index
}

// PriorityConfig tunes the collector.
type PriorityConfig struct {
	BaseTimeout        time.Duration
	StalenessThreshold time.Duration
	MaxConcurrency     int
}

// PriorityDataCollector resolves every project entity through the ordered
// tier chain and scores the result.
type PriorityDataCollector struct {
	projects  ports.ProjectRepository
	snapshots ports.SnapshotRepository
	scraper   ports.Scraper
	breaker   *DomainBreaker
	limiter   *DomainLimiter
	cfg       PriorityConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewPriorityDataCollector wires the collector. scraper may be nil, in which
// case both capture tiers are skipped.
func NewPriorityDataCollector(projects ports.ProjectRepository, snapshots ports.SnapshotRepository, scraper ports.Scraper,
	breaker *DomainBreaker, limiter *DomainLimiter, cfg PriorityConfig, logger *slog.Logger) *PriorityDataCollector {
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = 15 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 7 * 24 * time.Hour
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if breaker == nil {
		breaker = NewDomainBreaker(DefaultBreakerConfig())
	}
	if limiter == nil {
		limiter = NewDomainLimiter(0, 1)
	}
	return &PriorityDataCollector{
		projects:  projects,
		snapshots: snapshots,
		scraper:   scraper,
		breaker:   breaker,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Collect runs the tier chain for the product and every competitor. It only
// fails when the project cannot be loaded; any tier failure falls through.
func (c *PriorityDataCollector) Collect(ctx context.Context, projectID string, opts PriorityOptions) (domain.DataCollectionSummary, error) {
	started := c.now()
	project, err := c.projects.GetProject(ctx, projectID)
	if err != nil {
		return domain.DataCollectionSummary{}, fmt.Errorf("load project %s: %w", projectID, err)
	}

	captureCtx := ctx
	if opts.MaxCaptureTime > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, opts.MaxCaptureTime)
		defer cancel()
	}

	product, hasProduct := project.PrimaryProduct()
	competitors := make([]domain.CollectionResult, len(project.Competitors))
	var productResult *domain.CollectionResult

	refreshed := opts.refreshedIndex()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.MaxConcurrency)

	if hasProduct {
		g.Go(func() error {
			res := c.collectEntity(ctx, captureCtx, product.Target(), &product, refreshed, opts)
			mu.Lock()
			productResult = &res
			mu.Unlock()
			return nil
		})
	}
	for i, comp := range project.Competitors {
		g.Go(func() error {
			competitors[i] = c.collectEntity(ctx, captureCtx, comp.Target(), nil, refreshed, opts)
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.DataCollectionSummary{
		ProjectID:   projectID,
		Product:     productResult,
		Competitors: competitors,
		TierCounts:  map[domain.Tier]int{},
	}
	for _, r := range summary.Results() {
		summary.TierCounts[r.Tier]++
	}
	summary.CompletenessScore = CompletenessScore(productResult, competitors)
	summary.Freshness = SummaryFreshness(summary.Results())
	summary.Duration = c.now().Sub(started)

	if c.logger != nil {
		c.logger.Info("data collected", "project", projectID, "score", summary.CompletenessScore,
			"freshness", summary.Freshness, "elapsed", summary.Duration)
	}
	return summary, nil
}

// collectEntity stops at the first tier that produces data.
func (c *PriorityDataCollector) collectEntity(ctx, captureCtx context.Context, target domain.EntityRef,
	form *domain.Product, refreshed map[entityKey]domain.Snapshot, opts PriorityOptions) domain.CollectionResult {
	begin := c.now()
	res := domain.CollectionResult{Entity: target}
	done := func(tier domain.Tier, quality domain.DataQuality, snap *domain.Snapshot) domain.CollectionResult {
		res.Tier = tier
		res.Quality = quality
		res.Snapshot = snap
		res.Duration = c.now().Sub(begin)
		return res
	}
	miss := func(tier domain.Tier, skipped bool, reason string) {
		res.Attempts = append(res.Attempts, domain.TierAttempt{Tier: tier, Skipped: skipped, Reason: reason})
	}

	if form != nil && form.HasFormData() {
		return done(domain.TierFormData, domain.QualityHigh, nil)
	}
	miss(domain.TierFormData, true, "no form data")

	if snap, ok := refreshed[entityKey{kind: target.Kind, id: target.ID}]; ok {
		return done(domain.TierFreshSnapshot, domain.QualityHigh, &snap)
	}

	timeout := c.captureTimeout(target.Website)

	switch {
	case !opts.RequireFresh:
		miss(domain.TierFreshSnapshot, true, "fresh capture not required")
	case c.scraper == nil:
		miss(domain.TierFreshSnapshot, true, domain.ErrScraperUnavailable.Error())
	default:
		snap, err := c.capture(captureCtx, target, domain.CaptureFull, timeout)
		if err == nil {
			return done(domain.TierFreshSnapshot, domain.QualityHigh, &snap)
		}
		miss(domain.TierFreshSnapshot, false, err.Error())
	}

	switch {
	case !opts.AllowPartial:
		miss(domain.TierFastCollection, true, "partial capture not allowed")
	case c.scraper == nil:
		miss(domain.TierFastCollection, true, domain.ErrScraperUnavailable.Error())
	default:
		snap, err := c.capture(captureCtx, target, domain.CaptureLightweight, timeout/2)
		if err == nil {
			return done(domain.TierFastCollection, domain.QualityMedium, &snap)
		}
		miss(domain.TierFastCollection, false, err.Error())
	}

	if c.snapshots != nil {
		snap, err := c.snapshots.LatestSnapshot(ctx, target.Kind, target.ID)
		switch {
		case err != nil:
			miss(domain.TierExistingSnapshot, false, err.Error())
		case snap == nil:
			miss(domain.TierExistingSnapshot, false, "no stored snapshot")
		default:
			quality := domain.QualityMedium
			if snap.Age(c.now()) > c.cfg.StalenessThreshold {
				quality = domain.QualityLow
			}
			return done(domain.TierExistingSnapshot, quality, snap)
		}
	}

	return done(domain.TierBasicMetadata, domain.QualityMinimal, nil)
}

func (c *PriorityDataCollector) capture(ctx context.Context, target domain.EntityRef, mode domain.CaptureMode, timeout time.Duration) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("capture budget exhausted: %w", domain.ErrCaptureTimeout)
	}
	host := DomainOf(target.Website)
	if host == "" {
		return domain.Snapshot{}, fmt.Errorf("%s %s has no website", target.Kind, target.ID)
	}
	if !c.breaker.Allow(host) {
		return domain.Snapshot{}, fmt.Errorf("%s: %w", host, domain.ErrCircuitOpen)
	}
	if _, err := c.limiter.Wait(ctx, host); err != nil {
		return domain.Snapshot{}, fmt.Errorf("rate limit wait: %w", domain.ErrCaptureTimeout)
	}

	snap, err := Capture(ctx, c.scraper, target, mode, timeout)
	if err != nil {
		c.breaker.RecordFailure(host)
		return domain.Snapshot{}, err
	}
	c.breaker.RecordSuccess(host)
	return snap, nil
}

// captureTimeout scales the base timeout by a rough estimate of how heavy
// the site is: deep paths and nested subdomains cost more.
func (c *PriorityDataCollector) captureTimeout(website string) time.Duration {
	return time.Duration(float64(c.cfg.BaseTimeout) * SiteComplexity(website))
}

// SiteComplexity returns a factor in [1, 2].
func SiteComplexity(website string) float64 {
	factor := 1.0
	website = strings.TrimSpace(website)
	if website == "" {
		return factor
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return factor
	}
	if labels := strings.Count(strings.TrimPrefix(u.Hostname(), "www."), "."); labels > 1 {
		factor += 0.25
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			factor += 0.25
		}
	}
	if u.RawQuery != "" {
		factor += 0.25
	}
	if factor > 2 {
		factor = 2
	}
	return factor
}
