package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/cascade/internal/app/codec"
	"github.com/tutu-network/cascade/internal/domain"
)

// ─── Scope Snapshots ────────────────────────────────────────────────────────

// LoadScope returns a scope's tasks and edges. Structured dependency rows
// are merged with each task's inline descriptors; a row wins over an
// inline descriptor for the same pair, and inline descriptors naming a
// task outside the scope (or the task itself) are skipped with a warning.
func (d *DB) LoadScope(ctx context.Context, id domain.ScopeID) (*domain.Snapshot, error) {
	return loadScope(ctx, d.db, id)
}

func loadScope(ctx context.Context, q querier, id domain.ScopeID) (*domain.Snapshot, error) {
	sc, err := getScope(ctx, q, id)
	if err != nil {
		return nil, err
	}
	tasks, inline, err := listTasks(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	edges, err := listEdges(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}

	snap := &domain.Snapshot{Scope: *sc, Tasks: tasks, Edges: edges}
	if len(inline) == 0 {
		return snap, nil
	}

	known := make(map[domain.TaskID]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	type pair struct{ pred, succ domain.TaskID }
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		seen[pair{e.PredecessorID, e.SuccessorID}] = true
	}
	for _, t := range tasks {
		raw, ok := inline[t.ID]
		if !ok {
			continue
		}
		decoded, warnings := codec.DecodeAllJSON(t.ID, []byte(raw))
		snap.Warnings = append(snap.Warnings, warnings...)
		for _, e := range decoded {
			if !known[e.PredecessorID] || e.PredecessorID == t.ID {
				snap.Warnings = append(snap.Warnings, domain.Warning{
					Kind:    domain.WarnMalformedDescriptor,
					TaskID:  t.ID,
					Message: fmt.Sprintf("predecessor %s is not a valid task in scope %s, skipped", e.PredecessorID, id),
				})
				continue
			}
			k := pair{e.PredecessorID, e.SuccessorID}
			if seen[k] {
				continue
			}
			seen[k] = true
			snap.Edges = append(snap.Edges, e)
		}
	}
	return snap, nil
}

// ListDependencies returns a scope's structured dependency rows.
func (d *DB) ListDependencies(ctx context.Context, scope domain.ScopeID) ([]domain.Edge, error) {
	return listEdges(ctx, d.db, scope)
}

func listEdges(ctx context.Context, q querier, scope domain.ScopeID) ([]domain.Edge, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT predecessor_id, successor_id, type, lag_days
		 FROM dependencies WHERE scope_id = ? ORDER BY rowid`, string(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var typ string
		if err := rows.Scan(&e.PredecessorID, &e.SuccessorID, &typ, &e.LagDays); err != nil {
			return nil, err
		}
		e.Type, _ = domain.ParseDepType(typ)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ─── Commits ────────────────────────────────────────────────────────────────

// ApplyCommit writes saved task rows, edge changes, date deltas and
// critical flags in one transaction, with one audit row per change under a shared batch id.
func (d *DB) ApplyCommit(ctx context.Context, c domain.Commit) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getScope(ctx, tx, c.Scope); err != nil {
			return err
		}
		a := &auditor{tx: tx, batch: uuid.NewString(), commit: c, now: time.Now()}

		for _, t := range c.Tasks {
			if err := upsertTask(ctx, tx, c.Scope, t); err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
			detail := fmt.Sprintf("name=%q pinned=%t status=%s", t.Name, t.IsManuallyPositioned, t.Status)
			if err := a.record(ctx, domain.AuditTaskSaved, t.ID, detail); err != nil {
				return err
			}
		}

		for _, e := range c.Added {
			if err := insertEdge(ctx, tx, c.Scope, c.Actor, e, a.now); err != nil {
				return err
			}
			if err := a.record(ctx, domain.AuditDependencyAdded, e.SuccessorID, codec.Encode(e)); err != nil {
				return err
			}
		}

		for _, e := range c.Removed {
			if err := deleteEdge(ctx, tx, c.Scope, e.PredecessorID, e.SuccessorID); err != nil {
				return err
			}
			if err := a.record(ctx, domain.AuditDependencyRemoved, e.SuccessorID, codec.Encode(e)); err != nil {
				return err
			}
		}

		for _, dl := range c.Deltas {
			if dl.Skipped {
				if err := a.record(ctx, domain.AuditPinnedSkipped, dl.TaskID, spanString(dl.OldStart, dl.OldEnd)); err != nil {
					return err
				}
				continue
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE tasks SET start_date = ?, end_date = ?, duration_days = ?
				 WHERE scope_id = ? AND id = ?`,
				dateStr(dl.NewStart), dateStr(dl.NewEnd), domain.DaysBetween(dl.NewStart, dl.NewEnd),
				string(c.Scope), string(dl.TaskID))
			if err != nil {
				return fmt.Errorf("update task %s: %w", dl.TaskID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, dl.TaskID)
			}
			detail := spanString(dl.OldStart, dl.OldEnd) + " -> " + spanString(dl.NewStart, dl.NewEnd)
			if err := a.record(ctx, domain.AuditTaskMoved, dl.TaskID, detail); err != nil {
				return err
			}
		}

		for id, critical := range c.Critical {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET is_critical = ? WHERE scope_id = ? AND id = ?`,
				critical, string(c.Scope), string(id)); err != nil {
				return fmt.Errorf("update critical flag %s: %w", id, err)
			}
			if err := a.record(ctx, domain.AuditCriticalChanged, id, fmt.Sprintf("critical=%t", critical)); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEdge(ctx context.Context, q querier, scope domain.ScopeID, actor string, e domain.Edge, now time.Time) error {
	if !e.Type.Valid() {
		e.Type = domain.FinishToStart
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO dependencies (scope_id, predecessor_id, successor_id, type, lag_days, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(scope), string(e.PredecessorID), string(e.SuccessorID), string(e.Type), e.LagDays, now.Unix(), actor)
	if err != nil && isConstraint(err) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrDuplicateEdge, e.PredecessorID, e.SuccessorID)
	}
	if err != nil {
		return fmt.Errorf("insert dependency %s -> %s: %w", e.PredecessorID, e.SuccessorID, err)
	}
	return nil
}

// deleteEdge removes the structured row and any inline descriptor for
// the pair. ErrEdgeNotFound when neither existed.
func deleteEdge(ctx context.Context, q querier, scope domain.ScopeID, pred, succ domain.TaskID) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM dependencies WHERE scope_id = ? AND predecessor_id = ? AND successor_id = ?`,
		string(scope), string(pred), string(succ))
	if err != nil {
		return fmt.Errorf("delete dependency %s -> %s: %w", pred, succ, err)
	}
	n, _ := res.RowsAffected()

	dropped, err := dropInline(ctx, q, scope, pred, succ)
	if err != nil {
		return err
	}
	if n == 0 && !dropped {
		return fmt.Errorf("%w: %s -> %s", domain.ErrEdgeNotFound, pred, succ)
	}
	return nil
}

// dropInline rewrites succ's inline predecessor list without pred.
func dropInline(ctx context.Context, q querier, scope domain.ScopeID, pred, succ domain.TaskID) (bool, error) {
	var raw sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT predecessors FROM tasks WHERE scope_id = ? AND id = ?`,
		string(scope), string(succ)).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !raw.Valid || raw.String == "" {
		return false, nil
	}

	edges, _ := codec.DecodeAllJSON(succ, []byte(raw.String))
	kept := edges[:0]
	for _, e := range edges {
		if e.PredecessorID != pred {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(edges) {
		return false, nil
	}

	var value sql.NullString
	if len(kept) > 0 {
		data, err := codec.EncodeAll(kept)
		if err != nil {
			return false, err
		}
		value = nullStr(string(data))
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE tasks SET predecessors = ? WHERE scope_id = ? AND id = ?`,
		value, string(scope), string(succ)); err != nil {
		return false, fmt.Errorf("rewrite inline predecessors of %s: %w", succ, err)
	}
	return true, nil
}

// ─── Import ─────────────────────────────────────────────────────────────────

// ImportSnapshot creates a scope with all its tasks and edges in one
// transaction. The scope must not exist yet. Edges are inserted as
// structured rows without running the cycle guard.
func (d *DB) ImportSnapshot(ctx context.Context, actor string, snap domain.Snapshot) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := createScope(ctx, tx, snap.Scope); err != nil {
			return err
		}
		for _, t := range snap.Tasks {
			if err := upsertTask(ctx, tx, snap.Scope.ID, t); err != nil {
				return fmt.Errorf("import task %s: %w", t.ID, err)
			}
		}
		now := time.Now()
		for _, e := range snap.Edges {
			if err := insertEdge(ctx, tx, snap.Scope.ID, actor, e, now); err != nil {
				return err
			}
		}
		a := &auditor{tx: tx, batch: uuid.NewString(), now: now,
			commit: domain.Commit{Scope: snap.Scope.ID, Actor: actor, Reason: "import"}}
		return a.record(ctx, domain.AuditImported, "",
			fmt.Sprintf("imported %d tasks, %d dependencies", len(snap.Tasks), len(snap.Edges)))
	})
}

// ─── Audit ──────────────────────────────────────────────────────────────────

type auditor struct {
	tx     *sql.Tx
	batch  string
	commit domain.Commit
	now    time.Time
}

func (a *auditor) record(ctx context.Context, kind domain.AuditKind, task domain.TaskID, detail string) error {
	_, err := a.tx.ExecContext(ctx,
		`INSERT INTO audit (batch_id, scope_id, actor, reason, kind, task_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.batch, string(a.commit.Scope), a.commit.Actor, a.commit.Reason,
		string(kind), nullStr(string(task)), detail, a.now.Unix())
	if err != nil {
		return fmt.Errorf("audit %s: %w", kind, err)
	}
	return nil
}

// AuditLog returns a scope's most recent audit entries, newest first.
func (d *DB) AuditLog(ctx context.Context, scope domain.ScopeID, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, batch_id, scope_id, actor, reason, kind, task_id, detail, created_at
		 FROM audit WHERE scope_id = ? ORDER BY id DESC LIMIT ?`,
		string(scope), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e    domain.AuditEntry
			task sql.NullString
			ts   int64
		)
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Scope, &e.Actor, &e.Reason, &e.Kind, &task, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.TaskID = domain.TaskID(task.String)
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func spanString(start, end time.Time) string {
	return dateStr(start) + ".." + dateStr(end)
}
