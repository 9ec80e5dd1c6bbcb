package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

const (
	memoryScheme   = "memory://"
	postgresPrefix = "postgres://"
	postgresAlt    = "postgresql://"
)

// Backend is a store that can also seed projects and be closed.
type Backend interface {
	ports.Store
	CreateProject(ctx context.Context, project domain.Project) error
	Close() error
}

// Open picks the backend from the DSN: postgres URLs use pgx, memory://
// keeps everything in process, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Backend, error) {
	switch {
	case dsn == "" || strings.HasPrefix(dsn, memoryScheme):
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, postgresPrefix) || strings.HasPrefix(dsn, postgresAlt):
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		return newSQLStore(ctx, db, sq.Dollar)
	default:
		db, err := sql.Open("sqlite3", "file:"+dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return newSQLStore(ctx, db, sq.Question)
	}
}

// SQLStore persists projects, snapshots and reports through database/sql.
type SQLStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ Backend = (*SQLStore)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newSQLStore(ctx context.Context, db *sql.DB, placeholder sq.PlaceholderFormat) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := EnsureSchema(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &SQLStore{db: db, sb: sq.StatementBuilder.PlaceholderFormat(placeholder)}, nil
}

// DB exposes the underlying handle for maintenance tasks.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateProject inserts the project with its products and competitors in one transaction.
func (s *SQLStore) CreateProject(ctx context.Context, project domain.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created := project.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := project.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	if err := s.exec(ctx, tx, s.sb.Insert("projects").
		Columns("id", "name", "owner_id", "created_at", "updated_at").
		Values(project.ID, project.Name, project.OwnerID, created.UnixMilli(), updated.UnixMilli())); err != nil {
		return fmt.Errorf("insert project %s: %w", project.ID, err)
	}

	for _, p := range project.Products {
		if err := s.exec(ctx, tx, s.sb.Insert("products").
			Columns("id", "project_id", "name", "website", "industry", "description", "positioning", "customer_data", "user_problem").
			Values(p.ID, project.ID, p.Name, p.Website, p.Industry, p.Description, p.Positioning, p.CustomerData, p.UserProblem)); err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
	}

	for i, c := range project.Competitors {
		if err := s.exec(ctx, tx, s.sb.Insert("competitors").
			Columns("id", "project_id", "name", "website", "industry", "description", "position").
			Values(c.ID, project.ID, c.Name, c.Website, c.Industry, c.Description, i)); err != nil {
			return fmt.Errorf("insert competitor %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetProject loads a project with products and competitors.
func (s *SQLStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	query, args, err := s.sb.Select("id", "name", "owner_id", "created_at", "updated_at").
		From("projects").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Project{}, fmt.Errorf("build query: %w", err)
	}

	var (
		p                  domain.Project
		created, updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Name, &p.OwnerID, &created, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrProjectNotFound)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("query project: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updatedAt)

	if p.Products, err = s.products(ctx, id); err != nil {
		return domain.Project{}, err
	}
	if p.Competitors, err = s.competitors(ctx, id); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (s *SQLStore) products(ctx context.Context, projectID string) ([]domain.Product, error) {
	query, args, err := s.sb.Select("id", "project_id", "name", "website", "industry", "description", "positioning", "customer_data", "user_problem").
		From("products").Where(sq.Eq{"project_id": projectID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Website, &p.Industry, &p.Description, &p.Positioning, &p.CustomerData, &p.UserProblem); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) competitors(ctx context.Context, projectID string) ([]domain.Competitor, error) {
	query, args, err := s.sb.Select("id", "project_id", "name", "website", "industry", "description").
		From("competitors").Where(sq.Eq{"project_id": projectID}).OrderBy("position", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Competitor
	for rows.Next() {
		var c domain.Competitor
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Website, &c.Industry, &c.Description); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot of the entity, or nil.
func (s *SQLStore) LatestSnapshot(ctx context.Context, kind domain.EntityKind, entityID string) (*domain.Snapshot, error) {
	query, args, err := s.sb.Select("id", "entity_kind", "entity_id", "content", "metadata", "captured_at").
		From("snapshots").
		Where(sq.Eq{"entity_kind": string(kind), "entity_id": entityID}).
		OrderBy("captured_at DESC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		snap              domain.Snapshot
		kindRaw           string
		content, metadata string
		captured          int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&snap.ID, &kindRaw, &snap.EntityID, &content, &metadata, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	snap.EntityKind = domain.EntityKind(kindRaw)
	snap.CapturedAt = fromMillis(captured)
	if err := json.Unmarshal([]byte(content), &snap.Content); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &snap.Metadata); err != nil {
		return nil, fmt.Errorf("decode snapshot metadata %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// SaveSnapshot inserts a snapshot row.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	content, err := json.Marshal(snapshot.Content)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	metadata := snapshot.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode snapshot metadata: %w", err)
	}

	err = s.exec(ctx, s.db, s.sb.Insert("snapshots").
		Columns("id", "entity_kind", "entity_id", "content", "metadata", "captured_at").
		Values(snapshot.ID, string(snapshot.EntityKind), snapshot.EntityID, string(content), string(meta), snapshot.CapturedAt.UnixMilli()))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

var reportColumns = []string{"id", "project_id", "competitor_id", "name", "status", "created_at", "updated_at"}

// GetReport returns a report by id.
func (s *SQLStore) GetReport(ctx context.Context, id string) (domain.Report, error) {
	reports, err := s.queryReports(ctx, s.sb.Select(reportColumns...).From("reports").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Report{}, err
	}
	if len(reports) == 0 {
		return domain.Report{}, fmt.Errorf("report %s: %w", id, domain.ErrReportNotFound)
	}
	return reports[0], nil
}

// FindRecentReport returns the newest completed report created at or after since.
func (s *SQLStore) FindRecentReport(ctx context.Context, projectID string, since time.Time) (*domain.Report, error) {
	reports, err := s.queryReports(ctx, s.sb.Select(reportColumns...).From("reports").
		Where(sq.Eq{"project_id": projectID, "status": string(domain.ReportCompleted)}).
		Where(sq.GtOrEq{"created_at": since.UnixMilli()}).
		OrderBy("created_at DESC").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// ListReportsSince returns reports created at or after since, newest first.
func (s *SQLStore) ListReportsSince(ctx context.Context, since time.Time) ([]domain.Report, error) {
	return s.queryReports(ctx, s.sb.Select(reportColumns...).From("reports").
		Where(sq.GtOrEq{"created_at": since.UnixMilli()}).
		OrderBy("created_at DESC"))
}

// FindZombieReports lists completed reports that have no version row.
func (s *SQLStore) FindZombieReports(ctx context.Context) ([]domain.Report, error) {
	return s.queryReports(ctx, s.sb.Select(reportColumns...).From("reports").
		Where(sq.Eq{"status": string(domain.ReportCompleted)}).
		Where("NOT EXISTS (SELECT 1 FROM report_versions WHERE report_versions.report_id = reports.id)").
		OrderBy("created_at DESC"))
}

func (s *SQLStore) queryReports(ctx context.Context, b sq.SelectBuilder) ([]domain.Report, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		var (
			r                domain.Report
			status           string
			created, updated int64
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.CompetitorID, &r.Name, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Status = domain.ReportStatus(status)
		r.CreatedAt = fromMillis(created)
		r.UpdatedAt = fromMillis(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListVersions returns a report's versions in ascending order.
func (s *SQLStore) ListVersions(ctx context.Context, reportID string) ([]domain.ReportVersion, error) {
	query, args, err := s.sb.Select("id", "report_id", "version", "content", "created_at").
		From("report_versions").Where(sq.Eq{"report_id": reportID}).OrderBy("version ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []domain.ReportVersion
	for rows.Next() {
		var (
			v       domain.ReportVersion
			content string
			created int64
		)
		if err := rows.Scan(&v.ID, &v.ReportID, &v.Version, &content, &created); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &v.Content); err != nil {
			return nil, fmt.Errorf("decode version %s: %w", v.ID, err)
		}
		v.CreatedAt = fromMillis(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RunInTx runs fn inside a database transaction; any error rolls back.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.ReportWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	store *SQLStore
	tx    *sql.Tx
}

func (t *sqlTx) InsertReport(ctx context.Context, r domain.Report) error {
	err := t.store.exec(ctx, t.tx, t.store.sb.Insert("reports").
		Columns(reportColumns...).
		Values(r.ID, r.ProjectID, r.CompetitorID, r.Name, string(r.Status), r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli()))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertReportVersion(ctx context.Context, v domain.ReportVersion) error {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("encode version content: %w", err)
	}
	err = t.store.exec(ctx, t.tx, t.store.sb.Insert("report_versions").
		Columns("id", "report_id", "version", "content", "created_at").
		Values(v.ID, v.ReportID, v.Version, string(content), v.CreatedAt.UnixMilli()))
	if err != nil {
		return fmt.Errorf("insert report version: %w", err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, q queryer, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
