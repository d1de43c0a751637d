package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tutu-network/cascade/internal/domain"
)

// ─── Scope Repository ───────────────────────────────────────────────────────

// CreateScope inserts a new scope. ErrScopeExists if the id is taken.
func (d *DB) CreateScope(ctx context.Context, s domain.Scope) error {
	return createScope(ctx, d.db, s)
}

func createScope(ctx context.Context, q querier, s domain.Scope) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty scope id", domain.ErrInvalidTask)
	}
	if s.Kind == "" {
		s.Kind = domain.ScopeProject
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO scopes (id, name, kind, start_date, end_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(s.ID), s.Name, string(s.Kind), nullDate(s.Start), nullDate(s.End), s.CreatedAt.Unix(),
	)
	if err != nil && isConstraint(err) {
		return fmt.Errorf("%w: %s", domain.ErrScopeExists, s.ID)
	}
	return err
}

// GetScope retrieves a scope by id. ErrScopeNotFound if absent.
func (d *DB) GetScope(ctx context.Context, id domain.ScopeID) (*domain.Scope, error) {
	return getScope(ctx, d.db, id)
}

func getScope(ctx context.Context, q querier, id domain.ScopeID) (*domain.Scope, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, kind, start_date, end_date, created_at FROM scopes WHERE id = ?`, string(id))
	s, err := scanScope(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrScopeNotFound, id)
	}
	return s, err
}

// ListScopes returns all scopes, oldest first.
func (d *DB) ListScopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, kind, start_date, end_date, created_at FROM scopes ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []domain.Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, *s)
	}
	return scopes, rows.Err()
}

func scanScope(s scanner) (*domain.Scope, error) {
	var (
		sc         domain.Scope
		start, end sql.NullString
		created    int64
	)
	if err := s.Scan(&sc.ID, &sc.Name, &sc.Kind, &start, &end, &created); err != nil {
		return nil, err
	}
	var err error
	if sc.Start, err = parseNullDate(start); err != nil {
		return nil, fmt.Errorf("scope %s start: %w", sc.ID, err)
	}
	if sc.End, err = parseNullDate(end); err != nil {
		return nil, fmt.Errorf("scope %s end: %w", sc.ID, err)
	}
	sc.CreatedAt = time.Unix(created, 0)
	return &sc, nil
}

// ─── Task Repository ────────────────────────────────────────────────────────

// UpsertTask inserts a task, or updates an existing task's name, pin and
// status. Dates are written on insert only (End re-derived from Start and
// DurationDays); afterwards they change through ApplyCommit deltas. The
// inline predecessor column is left alone.
func (d *DB) UpsertTask(ctx context.Context, scope domain.ScopeID, t domain.Task) error {
	if _, err := getScope(ctx, d.db, scope); err != nil {
		return err
	}
	return upsertTask(ctx, d.db, scope, t)
}

func upsertTask(ctx context.Context, q querier, scope domain.ScopeID, t domain.Task) error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty task id", domain.ErrInvalidTask)
	}
	if t.Start.IsZero() {
		return fmt.Errorf("%w: task %s has no start date", domain.ErrInvalidTask, t.ID)
	}
	if t.DurationDays < 0 {
		return fmt.Errorf("%w: task %s has negative duration", domain.ErrInvalidTask, t.ID)
	}
	if t.Status == "" {
		t.Status = domain.StatusNotStarted
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: task %s has unknown status %q", domain.ErrInvalidTask, t.ID, t.Status)
	}
	start := domain.Normalize(t.Start)
	_, err := q.ExecContext(ctx,
		`INSERT INTO tasks (scope_id, id, name, start_date, end_date, duration_days, is_critical, is_pinned, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope_id, id) DO UPDATE SET
			name=excluded.name,
			is_pinned=excluded.is_pinned,
			status=excluded.status`,
		string(scope), string(t.ID), t.Name, dateStr(start), dateStr(domain.AddDays(start, t.DurationDays)),
		t.DurationDays, t.IsCriticalPath, t.IsManuallyPositioned, string(t.Status),
	)
	return err
}

// SetInlinePredecessors stores a task's legacy predecessor list verbatim.
// The list is decoded on every LoadScope; it must be a JSON array.
func (d *DB) SetInlinePredecessors(ctx context.Context, scope domain.ScopeID, task domain.TaskID, raw []byte) error {
	var probe []json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("%w: predecessor list must be a JSON array: %v", domain.ErrMalformedDescriptor, err)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE tasks SET predecessors = ? WHERE scope_id = ? AND id = ?`,
		nullStr(string(raw)), string(scope), string(task))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, task)
	}
	return nil
}

// ListTasks returns a scope's tasks in insertion order.
func (d *DB) ListTasks(ctx context.Context, scope domain.ScopeID) ([]domain.Task, error) {
	if _, err := getScope(ctx, d.db, scope); err != nil {
		return nil, err
	}
	tasks, _, err := listTasks(ctx, d.db, scope)
	return tasks, err
}

// listTasks also returns each task's inline predecessor column.
func listTasks(ctx context.Context, q querier, scope domain.ScopeID) ([]domain.Task, map[domain.TaskID]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, duration_days, is_critical, is_pinned, status, predecessors
		 FROM tasks WHERE scope_id = ? ORDER BY rowid`, string(scope))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	inline := make(map[domain.TaskID]string)
	for rows.Next() {
		t, preds, err := scanTask(rows)
		if err != nil {
			return nil, nil, err
		}
		if preds != "" {
			inline[t.ID] = preds
		}
		tasks = append(tasks, *t)
	}
	return tasks, inline, rows.Err()
}

func scanTask(s scanner) (*domain.Task, string, error) {
	var (
		t          domain.Task
		start, end string
		preds      sql.NullString
	)
	err := s.Scan(&t.ID, &t.Name, &start, &end, &t.DurationDays,
		&t.IsCriticalPath, &t.IsManuallyPositioned, &t.Status, &preds)
	if err != nil {
		return nil, "", err
	}
	if t.Start, err = domain.ParseDate(start); err != nil {
		return nil, "", fmt.Errorf("task %s start: %w", t.ID, err)
	}
	if t.End, err = domain.ParseDate(end); err != nil {
		return nil, "", fmt.Errorf("task %s end: %w", t.ID, err)
	}
	return &t, preds.String, nil
}

// isConstraint reports a UNIQUE/PRIMARY KEY violation.
func isConstraint(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
