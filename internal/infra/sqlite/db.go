// Package sqlite provides SQLite-based persistent storage for cascade.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/cascade/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.ScopeStore and domain.ScopeCatalog.
type DB struct {
	db *sql.DB
}

var (
	_ domain.ScopeStore   = (*DB)(nil)
	_ domain.ScopeCatalog = (*DB)(nil)
)

// Open creates or opens the SQLite database at dir/cascade.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "cascade.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scopes (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL DEFAULT 'project',
			start_date TEXT,
			end_date   TEXT,
			created_at INTEGER NOT NULL
		)`,

		// predecessors holds legacy inline descriptors (JSON array); rows
		// in dependencies are the structured form.
		`CREATE TABLE IF NOT EXISTS tasks (
			scope_id      TEXT NOT NULL REFERENCES scopes(id) ON DELETE CASCADE,
			id            TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			start_date    TEXT NOT NULL,
			end_date      TEXT NOT NULL,
			duration_days INTEGER NOT NULL,
			is_critical   BOOLEAN NOT NULL DEFAULT 0,
			is_pinned     BOOLEAN NOT NULL DEFAULT 0,
			status        TEXT NOT NULL DEFAULT 'not_started',
			predecessors  TEXT,
			PRIMARY KEY (scope_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS dependencies (
			scope_id       TEXT NOT NULL,
			predecessor_id TEXT NOT NULL,
			successor_id   TEXT NOT NULL,
			type           TEXT NOT NULL DEFAULT 'FS',
			lag_days       INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			created_by     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (scope_id, predecessor_id, successor_id),
			FOREIGN KEY (scope_id, predecessor_id) REFERENCES tasks(scope_id, id) ON DELETE CASCADE,
			FOREIGN KEY (scope_id, successor_id) REFERENCES tasks(scope_id, id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_successor ON dependencies(scope_id, successor_id)`,

		`CREATE TABLE IF NOT EXISTS audit (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id   TEXT NOT NULL,
			scope_id   TEXT NOT NULL,
			actor      TEXT NOT NULL DEFAULT '',
			reason     TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL,
			task_id    TEXT,
			detail     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_scope ON audit(scope_id, id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func dateStr(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: dateStr(*t), Valid: true}
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// withTx runs fn inside a transaction, rolling back on error.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
