package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is portable between Postgres and SQLite; timestamps are unix millis.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		website TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		positioning TEXT NOT NULL DEFAULT '',
		customer_data TEXT NOT NULL DEFAULT '',
		user_problem TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS competitors (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		website TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		captured_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_entity ON snapshots (entity_kind, entity_id, captured_at)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		competitor_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_project ON reports (project_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS report_versions (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL REFERENCES reports(id),
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (report_id, version)
	)`,
}

// EnsureSchema creates missing tables inside a single transaction.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
