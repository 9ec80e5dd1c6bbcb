package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/telemetry"
)

// Error classes reported for failed captures.
const (
	ErrorClassTimeout     = "timeout"
	ErrorClassCircuitOpen = "circuit_open"
	ErrorClassNoWebsite   = "no_website"
	ErrorClassUnavailable = "scraper_unavailable"
	ErrorClassCapture     = "capture_error"
)

// CaptureRequest describes a snapshot refresh for a project.
type CaptureRequest struct {
	ProjectID     string
	Priority      domain.Priority
	InitialReport bool
	MaxWait       time.Duration
	// Entities restricts the capture; empty means every project entity.
	Entities []domain.EntityRef
}

// CaptureFailure describes one entity that was not captured.
type CaptureFailure struct {
	EntityID     string
	Domain       string
	ErrorClass   string
	Message      string
	FallbackUsed bool
}

// ResourceUsage reports how the capture stage used its budget.
type ResourceUsage struct {
	AvgCaptureTime   time.Duration
	PeakConcurrency  int
	ThrottledDomains []string
}

// CaptureResult is always returned, never an error.
type CaptureResult struct {
	Success   bool
	Captured  int
	Total     int
	Snapshots []domain.Snapshot
	Failures  []CaptureFailure
	Usage     ResourceUsage
	// Err is set when the stage could not start at all.
	Err error
}

// SnapshotCollectorConfig bounds the capture stage.
type SnapshotCollectorConfig struct {
	MaxConcurrency   int
	PerEntityTimeout time.Duration
	DefaultMaxWait   time.Duration
}

// SnapshotCollector refreshes snapshots through the scraping collaborator
// under a bounded pool, per-domain rate limits and a circuit breaker.
type SnapshotCollector struct {
	projects  ports.ProjectRepository
	snapshots ports.SnapshotRepository
	scraper   ports.Scraper
	breaker   *DomainBreaker
	limiter   *DomainLimiter
	failures  *telemetry.FailureTracker
	cfg       SnapshotCollectorConfig
	logger    *slog.Logger
}

// NewSnapshotCollector wires the collector. A nil scraper makes every capture fail fast.
func NewSnapshotCollector(projects ports.ProjectRepository, snapshots ports.SnapshotRepository, scraper ports.Scraper,
	breaker *DomainBreaker, limiter *DomainLimiter, failures *telemetry.FailureTracker,
	cfg SnapshotCollectorConfig, logger *slog.Logger) *SnapshotCollector {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.PerEntityTimeout <= 0 {
		cfg.PerEntityTimeout = 15 * time.Second
	}
	if cfg.DefaultMaxWait <= 0 {
		cfg.DefaultMaxWait = 45 * time.Second
	}
	if breaker == nil {
		breaker = NewDomainBreaker(DefaultBreakerConfig())
	}
	if limiter == nil {
		limiter = NewDomainLimiter(0, 1)
	}
	return &SnapshotCollector{
		projects:  projects,
		snapshots: snapshots,
		scraper:   scraper,
		breaker:   breaker,
		limiter:   limiter,
		failures:  failures,
		cfg:       cfg,
		logger:    logger,
	}
}

type captureSlot struct {
	entity   domain.EntityRef
	domain   string
	done     bool
	snapshot *domain.Snapshot
	failure  *CaptureFailure
	elapsed  time.Duration
}

// Collect captures the requested entities and never blocks past MaxWait.
// Entities still in flight at the deadline are reported as timeouts.
func (c *SnapshotCollector) Collect(ctx context.Context, req CaptureRequest) CaptureResult {
	entities := req.Entities
	if len(entities) == 0 {
		project, err := c.projects.GetProject(ctx, req.ProjectID)
		if err != nil {
			return CaptureResult{Err: fmt.Errorf("load project %s: %w", req.ProjectID, err)}
		}
		entities = project.Entities()
	}

	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = c.cfg.DefaultMaxWait
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	var (
		mu        sync.Mutex
		slots     = make([]*captureSlot, len(entities))
		throttled = map[string]struct{}{}
		active    atomic.Int64
		peak      atomic.Int64
	)
	for i, e := range entities {
		slots[i] = &captureSlot{entity: e, domain: DomainOf(e.Website)}
	}

	g := new(errgroup.Group)
	g.SetLimit(c.poolSize(req))

	started := time.Now()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for _, slot := range slots {
			if deadlineCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				n := active.Add(1)
				defer active.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}

				begin := time.Now()
				snap, wasThrottled, failure := c.captureOne(deadlineCtx, slot)

				mu.Lock()
				defer mu.Unlock()
				slot.done = true
				slot.elapsed = time.Since(begin)
				slot.snapshot = snap
				slot.failure = failure
				if wasThrottled {
					throttled[slot.domain] = struct{}{}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-finished:
	case <-deadlineCtx.Done():
	}

	mu.Lock()
	result := c.summarize(slots, throttled, int(peak.Load()))
	mu.Unlock()

	for i := range result.Failures {
		result.Failures[i].FallbackUsed = c.hasExistingSnapshot(ctx, entities, result.Failures[i].EntityID)
	}

	c.info("snapshot capture finished", "project", req.ProjectID, "captured", result.Captured,
		"total", result.Total, "failures", len(result.Failures), "elapsed", time.Since(started))
	return result
}

func (c *SnapshotCollector) captureOne(ctx context.Context, slot *captureSlot) (*domain.Snapshot, bool, *CaptureFailure) {
	fail := func(class string, err error) *CaptureFailure {
		c.failures.Record(ctx, telemetry.OpSnapshotCapture, err)
		return &CaptureFailure{EntityID: slot.entity.ID, Domain: slot.domain, ErrorClass: class, Message: err.Error()}
	}

	if c.scraper == nil {
		return nil, false, fail(ErrorClassUnavailable, domain.ErrScraperUnavailable)
	}
	if slot.domain == "" {
		return nil, false, fail(ErrorClassNoWebsite, fmt.Errorf("%s %s has no website", slot.entity.Kind, slot.entity.ID))
	}
	if !c.breaker.Allow(slot.domain) {
		return nil, false, fail(ErrorClassCircuitOpen, fmt.Errorf("%s: %w", slot.domain, domain.ErrCircuitOpen))
	}

	throttled, err := c.limiter.Wait(ctx, slot.domain)
	if err != nil {
		return nil, throttled, fail(ErrorClassTimeout, fmt.Errorf("rate limit wait: %w", domain.ErrCaptureTimeout))
	}

	snap, err := Capture(ctx, c.scraper, slot.entity, domain.CaptureFull, c.cfg.PerEntityTimeout)
	if err != nil {
		c.breaker.RecordFailure(slot.domain)
		return nil, throttled, fail(ClassifyCaptureError(err), err)
	}
	c.breaker.RecordSuccess(slot.domain)
	return &snap, throttled, nil
}

func (c *SnapshotCollector) summarize(slots []*captureSlot, throttled map[string]struct{}, peak int) CaptureResult {
	result := CaptureResult{Total: len(slots)}
	var totalElapsed time.Duration
	var timed int

	for _, slot := range slots {
		switch {
		case !slot.done:
			result.Failures = append(result.Failures, CaptureFailure{
				EntityID:   slot.entity.ID,
				Domain:     slot.domain,
				ErrorClass: ErrorClassTimeout,
				Message:    domain.ErrCaptureTimeout.Error(),
			})
		case slot.failure != nil:
			result.Failures = append(result.Failures, *slot.failure)
		default:
			result.Captured++
			result.Snapshots = append(result.Snapshots, *slot.snapshot)
		}
		if slot.done {
			totalElapsed += slot.elapsed
			timed++
		}
	}

	if timed > 0 {
		result.Usage.AvgCaptureTime = totalElapsed / time.Duration(timed)
	}
	result.Usage.PeakConcurrency = peak
	for d := range throttled {
		result.Usage.ThrottledDomains = append(result.Usage.ThrottledDomains, d)
	}
	sort.Strings(result.Usage.ThrottledDomains)

	result.Success = result.Total > 0 && len(result.Failures) == 0
	return result
}

func (c *SnapshotCollector) poolSize(req CaptureRequest) int {
	size := c.cfg.MaxConcurrency
	if req.Priority == domain.PriorityLow && !req.InitialReport {
		size = 1
	}
	return size
}

func (c *SnapshotCollector) hasExistingSnapshot(ctx context.Context, entities []domain.EntityRef, id string) bool {
	if c.snapshots == nil {
		return false
	}
	for _, e := range entities {
		if e.ID != id {
			continue
		}
		snap, err := c.snapshots.LatestSnapshot(ctx, e.Kind, e.ID)
		return err == nil && snap != nil
	}
	return false
}

func (c *SnapshotCollector) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

// Capture runs one scraper call under its own deadline and maps a blown
// deadline onto ErrCaptureTimeout.
func Capture(ctx context.Context, scraper ports.Scraper, target domain.EntityRef, mode domain.CaptureMode, timeout time.Duration) (domain.Snapshot, error) {
	if scraper == nil {
		return domain.Snapshot{}, domain.ErrScraperUnavailable
	}
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		snap domain.Snapshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		snap, err := scraper.Capture(captureCtx, target, mode)
		done <- outcome{snap: snap, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return domain.Snapshot{}, fmt.Errorf("%s %s: %w", mode, target.ID, domain.ErrCaptureTimeout)
		}
		return out.snap, out.err
	case <-captureCtx.Done():
		return domain.Snapshot{}, fmt.Errorf("%s %s: %w", mode, target.ID, domain.ErrCaptureTimeout)
	}
}

// ClassifyCaptureError maps a capture error onto a reported error class.
func ClassifyCaptureError(err error) string {
	switch {
	case errors.Is(err, domain.ErrCaptureTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.Is(err, domain.ErrCircuitOpen):
		return ErrorClassCircuitOpen
	case errors.Is(err, domain.ErrScraperUnavailable):
		return ErrorClassUnavailable
	default:
		return ErrorClassCapture
	}
}
