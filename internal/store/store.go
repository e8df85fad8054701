// SPDX-License-Identifier: MIT

// Package store persists catalog state in SQLite: one row per dataset with
// its last build result, plus a build history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// DatasetRow is the persisted catalog state of one dataset.
type DatasetRow struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	ConfigCount  int       `json:"config_count"`
	LintErrors   int       `json:"lint_errors"`
	LintWarnings int       `json:"lint_warnings"`
	PagePath     string    `json:"page_path"`
	PageSHA256   string    `json:"page_sha256"`
	BuiltAt      time.Time `json:"built_at"`
}

// BuildStatus is the lifecycle state of a refresh job record.
type BuildStatus string

const (
	BuildRunning BuildStatus = "running"
	BuildOK      BuildStatus = "ok"
	BuildFailed  BuildStatus = "failed"
)

// BuildRow is one recorded refresh job.
type BuildRow struct {
	ID             string      `json:"id"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
	Status         BuildStatus `json:"status"`
	DatasetsTotal  int         `json:"datasets_total"`
	DatasetsFailed int         `json:"datasets_failed"`
	Error          string      `json:"error,omitempty"`
}

// Store provides SQLite persistence for catalog state.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and runs migrations. WAL + busy_timeout
// suit the read-heavy access pattern of the API.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		name TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		config_count INTEGER NOT NULL DEFAULT 0,
		lint_errors INTEGER NOT NULL DEFAULT 0,
		lint_warnings INTEGER NOT NULL DEFAULT 0,
		page_path TEXT NOT NULL,
		page_sha256 TEXT NOT NULL,
		built_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'ok', 'failed')),
		datasets_total INTEGER NOT NULL DEFAULT 0,
		datasets_failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertDataset inserts or replaces the catalog row of a dataset.
func (s *Store) UpsertDataset(ctx context.Context, row DatasetRow) error {
	query := `
	INSERT INTO datasets (name, version, config_count, lint_errors, lint_warnings, page_path, page_sha256, built_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		version = excluded.version,
		config_count = excluded.config_count,
		lint_errors = excluded.lint_errors,
		lint_warnings = excluded.lint_warnings,
		page_path = excluded.page_path,
		page_sha256 = excluded.page_sha256,
		built_at = excluded.built_at
	`
	_, err := s.db.ExecContext(ctx, query,
		row.Name,
		row.Version,
		row.ConfigCount,
		row.LintErrors,
		row.LintWarnings,
		row.PagePath,
		row.PageSHA256,
		row.BuiltAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetDataset retrieves a single catalog row. Returns nil when absent.
func (s *Store) GetDataset(ctx context.Context, name string) (*DatasetRow, error) {
	query := `
	SELECT name, version, config_count, lint_errors, lint_warnings, page_path, page_sha256, built_at
	FROM datasets
	WHERE name = ?
	`
	var row DatasetRow
	var builtAt string
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&row.Name, &row.Version, &row.ConfigCount, &row.LintErrors,
		&row.LintWarnings, &row.PagePath, &row.PageSHA256, &builtAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.BuiltAt, _ = time.Parse(time.RFC3339, builtAt)
	return &row, nil
}

// ListDatasets retrieves all catalog rows sorted by name.
func (s *Store) ListDatasets(ctx context.Context) ([]DatasetRow, error) {
	query := `
	SELECT name, version, config_count, lint_errors, lint_warnings, page_path, page_sha256, built_at
	FROM datasets
	ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []DatasetRow
	for rows.Next() {
		var row DatasetRow
		var builtAt string
		if err := rows.Scan(
			&row.Name, &row.Version, &row.ConfigCount, &row.LintErrors,
			&row.LintWarnings, &row.PagePath, &row.PageSHA256, &builtAt,
		); err != nil {
			return nil, err
		}
		row.BuiltAt, _ = time.Parse(time.RFC3339, builtAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteDataset removes a catalog row. Deleting an absent row is not an error.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	return err
}

// BeginBuild records the start of a refresh job.
func (s *Store) BeginBuild(ctx context.Context, id string, startedAt time.Time, total int) error {
	query := `
	INSERT INTO builds (id, started_at, status, datasets_total)
	VALUES (?, ?, 'running', ?)
	`
	_, err := s.db.ExecContext(ctx, query, id, startedAt.UTC().Format(time.RFC3339), total)
	return err
}

// FinishBuild records the outcome of a refresh job.
func (s *Store) FinishBuild(ctx context.Context, id string, finishedAt time.Time, status BuildStatus, failed int, errMsg string) error {
	query := `
	UPDATE builds
	SET finished_at = ?,
	    status = ?,
	    datasets_failed = ?,
	    error = ?
	WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		finishedAt.UTC().Format(time.RFC3339), string(status), failed, errMsg, id)
	return err
}

// RecentBuilds retrieves paginated build records, newest first.
func (s *Store) RecentBuilds(ctx context.Context, limit, offset int) ([]BuildRow, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM builds`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT id, started_at, finished_at, status, datasets_total, datasets_failed, error
	FROM builds
	ORDER BY started_at DESC, id DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var out []BuildRow
	for rows.Next() {
		var row BuildRow
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(
			&row.ID, &startedAt, &finishedAt, &row.Status,
			&row.DatasetsTotal, &row.DatasetsFailed, &row.Error,
		); err != nil {
			return nil, 0, err
		}
		row.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
				row.FinishedAt = &t
			}
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}
