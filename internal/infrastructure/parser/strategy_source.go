package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/scanner"
)

// SiteCapturer implements Scraper via registered scanner strategies and
// stores every captured snapshot.
type SiteCapturer struct {
	registry  *scanner.Registry
	snapshots ports.SnapshotRepository
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.Scraper = (*SiteCapturer)(nil)

// NewSiteCapturer wires the scanner registry with the snapshot store.
func NewSiteCapturer(reg *scanner.Registry, snapshots ports.SnapshotRepository, log *slog.Logger) *SiteCapturer {
	return &SiteCapturer{
		registry:  reg,
		snapshots: snapshots,
		logger:    log,
		now:       time.Now,
	}
}

// Capture scans the target website with the strategy for mode and persists the result.
func (s *SiteCapturer) Capture(ctx context.Context, target domain.EntityRef, mode domain.CaptureMode) (domain.Snapshot, error) {
	if s.registry == nil {
		return domain.Snapshot{}, fmt.Errorf("scanner registry is not configured: %w", domain.ErrScraperUnavailable)
	}
	pageURL := normalizeURL(target.Website)
	if pageURL == "" {
		return domain.Snapshot{}, fmt.Errorf("%s %s has no website", target.Kind, target.ID)
	}

	strategy, err := s.registry.Resolve(mode)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrScraperUnavailable, err)
	}

	s.debug("capture site", "entity", target.ID, "mode", mode, "url", pageURL)
	started := s.now()
	content, err := strategy.Scan(ctx, scanner.Request{Target: target, URL: pageURL})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("scan %s: %w", pageURL, err)
	}

	snapshot := domain.Snapshot{
		ID:         uuid.NewString(),
		EntityKind: target.Kind,
		EntityID:   target.ID,
		Content:    content,
		Metadata: map[string]string{
			"captureMode": string(mode),
			"durationMs":  fmt.Sprint(s.now().Sub(started).Milliseconds()),
		},
		CapturedAt: s.now().UTC(),
	}

	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return domain.Snapshot{}, fmt.Errorf("save snapshot for %s: %w", target.ID, err)
		}
	}

	s.debug("site captured", "entity", target.ID, "title", content.Title, "features", len(content.Features))
	return snapshot, nil
}

func normalizeURL(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	return website
}

func (s *SiteCapturer) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
