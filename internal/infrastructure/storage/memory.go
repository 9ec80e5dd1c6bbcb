package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// MemoryStore keeps everything in process memory. RunInTx stages writes and
// applies them only when fn returns nil.
type MemoryStore struct {
	mu        sync.RWMutex
	projects  map[string]domain.Project
	snapshots map[string][]domain.Snapshot // kind/id -> newest first
	reports   map[string]domain.Report
	versions  map[string][]domain.ReportVersion
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  map[string]domain.Project{},
		snapshots: map[string][]domain.Snapshot{},
		reports:   map[string]domain.Report{},
		versions:  map[string][]domain.ReportVersion{},
	}
}

// CreateProject stores the project with its products and competitors.
func (m *MemoryStore) CreateProject(_ context.Context, project domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; ok {
		return fmt.Errorf("project %s already exists", project.ID)
	}
	m.projects[project.ID] = project
	return nil
}

// GetProject returns a copy of the stored project.
func (m *MemoryStore) GetProject(_ context.Context, id string) (domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrProjectNotFound)
	}
	p.Products = append([]domain.Product(nil), p.Products...)
	p.Competitors = append([]domain.Competitor(nil), p.Competitors...)
	return p, nil
}

// LatestSnapshot returns the newest snapshot of the entity, or nil.
func (m *MemoryStore) LatestSnapshot(_ context.Context, kind domain.EntityKind, entityID string) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.snapshots[snapshotKey(kind, entityID)]
	if len(list) == 0 {
		return nil, nil
	}
	snap := list[0]
	return &snap, nil
}

// SaveSnapshot inserts a snapshot keeping newest-first order.
func (m *MemoryStore) SaveSnapshot(_ context.Context, snapshot domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapshotKey(snapshot.EntityKind, snapshot.EntityID)
	list := append(m.snapshots[key], snapshot)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CapturedAt.After(list[j].CapturedAt) })
	m.snapshots[key] = list
	return nil
}

// GetReport returns a report by id.
func (m *MemoryStore) GetReport(_ context.Context, id string) (domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return domain.Report{}, fmt.Errorf("report %s: %w", id, domain.ErrReportNotFound)
	}
	return r, nil
}

// FindRecentReport returns the newest completed report created at or after since.
func (m *MemoryStore) FindRecentReport(_ context.Context, projectID string, since time.Time) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *domain.Report
	for _, r := range m.reports {
		if r.ProjectID != projectID || r.Status != domain.ReportCompleted || r.CreatedAt.Before(since) {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			r := r
			found = &r
		}
	}
	return found, nil
}

// ListVersions returns versions in ascending order.
func (m *MemoryStore) ListVersions(_ context.Context, reportID string) ([]domain.ReportVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.ReportVersion(nil), m.versions[reportID]...), nil
}

// ListReportsSince returns reports created at or after since, newest first.
func (m *MemoryStore) ListReportsSince(_ context.Context, since time.Time) ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Report
	for _, r := range m.reports {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindZombieReports lists completed reports without versions.
func (m *MemoryStore) FindZombieReports(_ context.Context) ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Report
	for id, r := range m.reports {
		if r.Status == domain.ReportCompleted && len(m.versions[id]) == 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// RunInTx stages writes made by fn and commits them together.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.ReportWriter) error) error {
	tx := &memoryTx{}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range tx.reports {
		if _, ok := m.reports[r.ID]; ok {
			return fmt.Errorf("commit: report %s already exists", r.ID)
		}
	}
	for _, v := range tx.versions {
		_, staged := tx.reportIDs()[v.ReportID]
		if _, ok := m.reports[v.ReportID]; !ok && !staged {
			return fmt.Errorf("commit: version references unknown report %s", v.ReportID)
		}
	}
	for _, r := range tx.reports {
		m.reports[r.ID] = r
	}
	for _, v := range tx.versions {
		m.versions[v.ReportID] = append(m.versions[v.ReportID], v)
	}
	return nil
}

type memoryTx struct {
	reports  []domain.Report
	versions []domain.ReportVersion
}

func (t *memoryTx) InsertReport(_ context.Context, report domain.Report) error {
	t.reports = append(t.reports, report)
	return nil
}

func (t *memoryTx) InsertReportVersion(_ context.Context, version domain.ReportVersion) error {
	t.versions = append(t.versions, version)
	return nil
}

func (t *memoryTx) reportIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(t.reports))
	for _, r := range t.reports {
		ids[r.ID] = struct{}{}
	}
	return ids
}

func snapshotKey(kind domain.EntityKind, id string) string {
	return string(kind) + "/" + id
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
