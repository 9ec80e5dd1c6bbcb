package scanner

import (
	"context"
	"fmt"

	"CompetitorReports/internal/domain"
)

// Request carries all parameters required to capture one page.
type Request struct {
	Target domain.EntityRef
	URL    string
}

// Scanner extracts page content for one capture mode (full, lightweight).
type Scanner interface {
	Mode() domain.CaptureMode
	Scan(ctx context.Context, req Request) (domain.SnapshotContent, error)
}

// Registry keeps a mapping from capture modes to their implementations.
type Registry struct {
	scanners map[domain.CaptureMode]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[domain.CaptureMode]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.CaptureMode]Scanner{}
	}
	r.scanners[scanner.Mode()] = scanner
}

// Resolve returns a scanner by mode or an error if it is absent.
func (r *Registry) Resolve(mode domain.CaptureMode) (Scanner, error) {
	if scanner, ok := r.scanners[mode]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", mode)
}
