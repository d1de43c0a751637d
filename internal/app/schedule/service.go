// Package schedule is the command layer over the scheduling engine.
//
// Every command rehydrates a fresh graph from the store, computes the
// result with the pure engine packages, and writes it back through one
// ScopeStore.ApplyCommit call. Commands against the same scope are
// serialized; different scopes run in parallel.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tutu-network/cascade/internal/app/cpm"
	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/app/propagate"
	"github.com/tutu-network/cascade/internal/domain"
	"github.com/tutu-network/cascade/internal/infra/metrics"
)

// Service executes dependency and date-change commands.
type Service struct {
	store  domain.ScopeStore
	engine *propagate.Engine
	log    *slog.Logger
	locks  scopeLocks
}

// NewService creates a command service. A nil engine or logger gets a default.
func NewService(store domain.ScopeStore, engine *propagate.Engine, logger *slog.Logger) *Service {
	if engine == nil {
		engine = propagate.New(propagate.Config{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, log: logger}
}

// AddResult is the outcome of AddDependency. A rejected edge is not an
// error: Accepted is false and Error carries the rejection code.
type AddResult struct {
	Accepted bool             `json:"accepted"`
	Error    string           `json:"error,omitempty"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
	Outcome  *Outcome         `json:"outcome,omitempty"`
}

// Outcome is what a command changed: the cascade diff and, when dates
// moved, the refreshed critical-path figures.
type Outcome struct {
	Origin   *domain.TaskDelta                 `json:"origin,omitempty"`
	Result   domain.PropagationResult          `json:"result"`
	Critical map[domain.TaskID]domain.Schedule `json:"critical_path,omitempty"`
}

// DateChange is an explicit edit of one task's dates. Nil fields are
// left as they are.
type DateChange struct {
	TaskID   domain.TaskID
	Start    *time.Time
	End      *time.Time
	Duration *int
}

// ─── Commands ───────────────────────────────────────────────────────────────

// AddDependency inserts an edge after the cycle guard accepts it, then
// pushes the predecessor's dates through the new edge. The type is matched
// case-insensitively; an unrecognized type is stored as FS and reported
// in AddResult.Warnings.
func (s *Service) AddDependency(ctx context.Context, actor string, scope domain.ScopeID, e domain.Edge) (AddResult, error) {
	var warnings []domain.Warning
	if e.Type == "" {
		e.Type = domain.FinishToStart
	} else if t, ok := domain.ParseDepType(string(e.Type)); ok {
		e.Type = t
	} else {
		warnings = append(warnings, domain.Warning{
			Kind:    domain.WarnUnknownDepType,
			TaskID:  e.SuccessorID,
			Message: fmt.Sprintf("unknown dependency type %q on %s, using FS", e.Type, e.PredecessorID),
		})
		e.Type = domain.FinishToStart
	}

	unlock := s.locks.lock(scope)
	defer unlock()

	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return AddResult{}, err
	}

	if err := g.AddEdge(e); err != nil {
		if !isRejection(err) {
			return AddResult{}, err
		}
		code := domain.ErrorCode(err)
		metrics.DependencyRejections.WithLabelValues(code).Inc()
		s.log.Info("dependency rejected",
			"scope", scope, "actor", actor,
			"predecessor", e.PredecessorID, "successor", e.SuccessorID, "code", code)
		return AddResult{Accepted: false, Error: code, Warnings: warnings}, nil
	}

	commit := domain.Commit{Scope: scope, Actor: actor, Reason: "add_dependency", Added: []domain.Edge{e}}
	out, err := s.cascade(g, snap.Scope, e.PredecessorID, 0, &commit)
	if err != nil {
		return AddResult{}, err
	}
	if err := s.store.ApplyCommit(ctx, commit); err != nil {
		return AddResult{}, fmt.Errorf("commit dependency: %w", err)
	}

	metrics.DependencyMutations.WithLabelValues("add").Inc()
	s.log.Info("dependency added",
		"scope", scope, "actor", actor,
		"predecessor", e.PredecessorID, "successor", e.SuccessorID,
		"type", e.Type, "lag", e.LagDays, "shifted", len(out.Result.Changed()))
	return AddResult{Accepted: true, Warnings: warnings, Outcome: out}, nil
}

// RemoveDependency deletes an edge. Dates never move earlier on removal,
// so only critical-path flags are refreshed.
func (s *Service) RemoveDependency(ctx context.Context, actor string, scope domain.ScopeID, pred, succ domain.TaskID) (*Outcome, error) {
	unlock := s.locks.lock(scope)
	defer unlock()

	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	var removed domain.Edge
	for _, e := range g.SuccessorsOf(pred) {
		if e.SuccessorID == succ {
			removed = e
		}
	}
	if err := g.RemoveEdge(pred, succ); err != nil {
		return nil, err
	}

	commit := domain.Commit{Scope: scope, Actor: actor, Reason: "remove_dependency", Removed: []domain.Edge{removed}}
	out := &Outcome{}
	if out.Critical, err = s.refreshCritical(g, snap.Scope, &commit); err != nil {
		return nil, err
	}
	if err := s.store.ApplyCommit(ctx, commit); err != nil {
		return nil, fmt.Errorf("commit dependency removal: %w", err)
	}

	metrics.DependencyMutations.WithLabelValues("remove").Inc()
	s.log.Info("dependency removed", "scope", scope, "actor", actor, "predecessor", pred, "successor", succ)
	return out, nil
}

// TaskDatesChanged applies an explicit edit to one task and cascades it.
// Pinned tasks accept explicit edits; the pin only shields a task from
// automatic propagation.
func (s *Service) TaskDatesChanged(ctx context.Context, actor string, scope domain.ScopeID, ch DateChange) (*Outcome, error) {
	began := time.Now()
	defer func() { metrics.PropagationLatency.Observe(time.Since(began).Seconds()) }()

	unlock := s.locks.lock(scope)
	defer unlock()

	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	cur, ok := g.Task(ch.TaskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, ch.TaskID)
	}
	start, end, dur, err := resolveChange(cur, ch)
	if err != nil {
		return nil, err
	}

	commit := domain.Commit{Scope: scope, Actor: actor, Reason: "task_dates_changed"}
	out, err := s.moveTask(g, snap.Scope, cur, start, end, dur, &commit)
	if err != nil {
		return nil, err
	}
	if !commit.Empty() {
		if err := s.store.ApplyCommit(ctx, commit); err != nil {
			return nil, fmt.Errorf("commit cascade: %w", err)
		}
	}

	s.log.Info("task dates changed",
		"scope", scope, "actor", actor, "task", ch.TaskID,
		"shifted", len(out.Result.Changed()), "warnings", len(out.Result.Warnings),
		"visits", out.Result.Visits)
	return out, nil
}

// TaskUpdate creates a task or replaces an existing task's name, pin and
// status. Date fields follow DateChange rules for an existing task; a new
// task needs Start and takes its duration from Duration or End.
type TaskUpdate struct {
	TaskID   domain.TaskID
	Name     string
	Pinned   bool
	Status   domain.TaskStatus
	Start    *time.Time
	End      *time.Time
	Duration *int
}

// PutResult is the outcome of PutTask.
type PutResult struct {
	Task    domain.Task `json:"task"`
	Created bool        `json:"created"`
	Outcome *Outcome    `json:"outcome,omitempty"`
}

// PutTask saves a task and cascades any date change, all in one commit.
// The whole update is validated before anything is written.
func (s *Service) PutTask(ctx context.Context, actor string, scope domain.ScopeID, u TaskUpdate) (*PutResult, error) {
	if u.TaskID == "" {
		return nil, fmt.Errorf("%w: empty task id", domain.ErrInvalidTask)
	}
	if u.Status != "" && !u.Status.Valid() {
		return nil, fmt.Errorf("%w: task %s has unknown status %q", domain.ErrInvalidTask, u.TaskID, u.Status)
	}

	unlock := s.locks.lock(scope)
	defer unlock()

	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	commit := domain.Commit{Scope: scope, Actor: actor, Reason: "put_task"}
	cur, exists := g.Task(u.TaskID)
	if !exists {
		t, err := newTask(u)
		if err != nil {
			return nil, err
		}
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
		commit.Tasks = append(commit.Tasks, t)
		out := &Outcome{}
		if out.Critical, err = s.refreshCritical(g, snap.Scope, &commit); err != nil {
			return nil, err
		}
		if err := s.store.ApplyCommit(ctx, commit); err != nil {
			return nil, fmt.Errorf("commit task: %w", err)
		}
		t.IsCriticalPath = commit.Critical[t.ID]
		s.log.Info("task created", "scope", scope, "actor", actor, "task", t.ID)
		return &PutResult{Task: t, Created: true, Outcome: out}, nil
	}

	start, end, dur, err := resolveChange(cur, DateChange{TaskID: u.TaskID, Start: u.Start, End: u.End, Duration: u.Duration})
	if err != nil {
		return nil, err
	}

	saved := cur
	saved.Name = u.Name
	saved.IsManuallyPositioned = u.Pinned
	if u.Status != "" {
		saved.Status = u.Status
	}
	_ = g.SetPinned(cur.ID, u.Pinned)
	commit.Tasks = append(commit.Tasks, saved)

	out, err := s.moveTask(g, snap.Scope, cur, start, end, dur, &commit)
	if err != nil {
		return nil, err
	}
	if out.Critical == nil && u.Pinned != cur.IsManuallyPositioned {
		// A pin anchors the forward pass, so flags can flip without a move.
		if out.Critical, err = s.refreshCritical(g, snap.Scope, &commit); err != nil {
			return nil, err
		}
	}
	if err := s.store.ApplyCommit(ctx, commit); err != nil {
		return nil, fmt.Errorf("commit task: %w", err)
	}

	final, _ := g.Task(cur.ID)
	saved.Start, saved.End, saved.DurationDays = final.Start, final.End, final.DurationDays
	saved.IsCriticalPath = final.IsCriticalPath
	s.log.Info("task updated",
		"scope", scope, "actor", actor, "task", cur.ID,
		"shifted", len(out.Result.Changed()))
	return &PutResult{Task: saved, Outcome: out}, nil
}

// moveTask writes new dates for cur into g, records the origin delta and
// cascades from it. Unchanged dates yield an empty Outcome.
func (s *Service) moveTask(g *graph.Graph, sc domain.Scope, cur domain.Task, start, end time.Time, dur int, commit *domain.Commit) (*Outcome, error) {
	var mask domain.ChangedFields
	if !start.Equal(cur.Start) {
		mask |= domain.ChangedStart
	}
	if !end.Equal(cur.End) {
		mask |= domain.ChangedEnd
	}
	if dur != cur.DurationDays {
		mask |= domain.ChangedDuration
	}
	if mask == 0 {
		return &Outcome{}, nil
	}

	origin := &domain.TaskDelta{TaskID: cur.ID, OldStart: cur.Start, OldEnd: cur.End, NewStart: start, NewEnd: end}
	_ = g.SetDuration(cur.ID, dur)
	_ = g.SetDates(cur.ID, start, end)
	commit.Deltas = append(commit.Deltas, *origin)

	out, err := s.cascade(g, sc, cur.ID, mask, commit)
	if err != nil {
		return nil, err
	}
	out.Origin = origin
	return out, nil
}

func newTask(u TaskUpdate) (domain.Task, error) {
	if u.Start == nil {
		return domain.Task{}, fmt.Errorf("%w: start is required for new task %s", domain.ErrInvalidTask, u.TaskID)
	}
	dur := 0
	switch {
	case u.Duration != nil:
		dur = *u.Duration
	case u.End != nil:
		dur = domain.DaysBetween(*u.Start, *u.End)
	}
	if dur < 0 {
		return domain.Task{}, fmt.Errorf("%w: task %s has negative duration", domain.ErrInvalidTask, u.TaskID)
	}
	t := domain.NewTask(u.TaskID, *u.Start, dur)
	t.Name = u.Name
	t.IsManuallyPositioned = u.Pinned
	if u.Status != "" {
		t.Status = u.Status
	}
	return t, nil
}

// Refresh recomputes and persists critical-path flags for a whole scope,
// for example after a bulk import.
func (s *Service) Refresh(ctx context.Context, actor string, scope domain.ScopeID) (map[domain.TaskID]domain.Schedule, error) {
	unlock := s.locks.lock(scope)
	defer unlock()

	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}
	commit := domain.Commit{Scope: scope, Actor: actor, Reason: "refresh"}
	critical, err := s.refreshCritical(g, snap.Scope, &commit)
	if err != nil {
		return nil, err
	}
	if !commit.Empty() {
		if err := s.store.ApplyCommit(ctx, commit); err != nil {
			return nil, fmt.Errorf("commit refresh: %w", err)
		}
	}
	return critical, nil
}

// CriticalPath returns the current CPM figures without writing anything.
func (s *Service) CriticalPath(ctx context.Context, scope domain.ScopeID) (map[domain.TaskID]domain.Schedule, error) {
	snap, g, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}
	schedules, err := cpm.Recompute(g, cpm.FromScope(snap.Scope))
	if err != nil {
		s.unexpectedCycle(scope, err)
		return nil, err
	}
	return schedules, nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (s *Service) load(ctx context.Context, scope domain.ScopeID) (*domain.Snapshot, *graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	snap, err := s.store.LoadScope(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range snap.Warnings {
		s.log.Warn("scope load warning", "scope", scope, "kind", w.Kind, "task", w.TaskID, "message", w.Message)
	}
	g, err := graph.Build(scope, snap.Tasks, snap.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("build scope %s: %w", scope, err)
	}
	return snap, g, nil
}

// cascade propagates from origin and, if any date moved, refreshes the
// critical path. Results are appended to commit.
func (s *Service) cascade(g *graph.Graph, sc domain.Scope, origin domain.TaskID, mask domain.ChangedFields, commit *domain.Commit) (*Outcome, error) {
	res, err := s.engine.Run(g, origin, mask)
	metrics.PropagationVisits.Observe(float64(res.Visits))
	if err != nil {
		metrics.Propagations.WithLabelValues("aborted").Inc()
		if errors.Is(err, domain.ErrUnexpectedCycle) {
			s.unexpectedCycle(sc.ID, err)
		}
		return nil, err
	}
	metrics.Propagations.WithLabelValues("ok").Inc()

	out := &Outcome{Result: res}
	changed := res.Changed()
	for _, d := range res.Affected {
		if d.Skipped {
			metrics.PinnedConflicts.Inc()
		}
	}
	metrics.TasksShifted.Add(float64(len(changed)))
	commit.Deltas = append(commit.Deltas, changed...)

	if len(commit.Deltas) == 0 && len(commit.Added) == 0 {
		return out, nil
	}
	out.Critical, err = s.refreshCritical(g, sc, commit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// refreshCritical runs CPM over g and records flag flips in commit.
func (s *Service) refreshCritical(g *graph.Graph, sc domain.Scope, commit *domain.Commit) (map[domain.TaskID]domain.Schedule, error) {
	schedules, err := cpm.Recompute(g, cpm.FromScope(sc))
	if err != nil {
		s.unexpectedCycle(sc.ID, err)
		return nil, err
	}
	flipped := cpm.Apply(g, schedules)
	if len(flipped) > 0 && commit.Critical == nil {
		commit.Critical = make(map[domain.TaskID]bool, len(flipped))
	}
	for _, id := range flipped {
		commit.Critical[id] = schedules[id].IsCritical
	}

	critical := 0
	for _, sch := range schedules {
		if sch.IsCritical {
			critical++
		}
	}
	metrics.CriticalTasks.Set(float64(critical))
	return schedules, nil
}

// unexpectedCycle reports a cycle that slipped past the guard. It means
// the persisted graph is corrupt, so it is never downgraded.
func (s *Service) unexpectedCycle(scope domain.ScopeID, err error) {
	if !errors.Is(err, domain.ErrUnexpectedCycle) {
		return
	}
	metrics.UnexpectedCycles.Inc()
	s.log.Error("unexpected cycle in persisted scope", "scope", scope, "error", err)
}

// isRejection reports whether err is a reject-before-mutation edge error.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrCycleDetected) ||
		errors.Is(err, domain.ErrCrossScopeEdge) ||
		errors.Is(err, domain.ErrDuplicateEdge)
}

// resolveChange merges an explicit edit into the task's current dates.
// Only-start shifts the task keeping its duration; only-end re-derives
// the duration; end with duration (and no start) back-schedules the start.
func resolveChange(cur domain.Task, ch DateChange) (start, end time.Time, dur int, err error) {
	if ch.Start == nil && ch.End == nil && ch.Duration == nil {
		return cur.Start, cur.End, cur.DurationDays, nil
	}

	start, dur = cur.Start, max(cur.DurationDays, 0)
	if ch.Start != nil {
		start = domain.Normalize(*ch.Start)
	}
	if ch.Duration != nil {
		dur = *ch.Duration
	}
	if ch.End != nil {
		e := domain.Normalize(*ch.End)
		switch {
		case ch.Start == nil && ch.Duration != nil:
			start = domain.AddDays(e, -dur)
		default:
			derived := domain.DaysBetween(start, e)
			if ch.Duration != nil && derived != dur {
				return start, end, dur, fmt.Errorf("%w: duration %d does not match %s..%s",
					domain.ErrInvalidTask, dur, start.Format(domain.DateLayout), e.Format(domain.DateLayout))
			}
			dur = derived
		}
	}
	if dur < 0 {
		return start, end, dur, fmt.Errorf("%w: end before start for %s", domain.ErrInvalidTask, cur.ID)
	}
	return start, domain.AddDays(start, dur), dur, nil
}

// scopeLocks is a keyed mutex: one lock per scope id.
type scopeLocks struct {
	mu sync.Mutex
	m  map[domain.ScopeID]*sync.Mutex
}

func (l *scopeLocks) lock(id domain.ScopeID) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[domain.ScopeID]*sync.Mutex)
	}
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
