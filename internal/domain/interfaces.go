package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Scope is one scheduling scope: a project or a template.
type Scope struct {
	ID        ScopeID    `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Kind      ScopeKind  `json:"kind" yaml:"kind"`
	Start     *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End       *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"-"`
}

// Snapshot is everything the engine needs to rehydrate a scope's graph.
type Snapshot struct {
	Scope    Scope
	Tasks    []Task
	Edges    []Edge
	Warnings []Warning // load-time warnings (skipped descriptors, etc.)
}

// Commit is the atomic unit a command writes back: saved task rows, edge
// changes, date deltas, critical-path flag flips, and the actor to
// attribute them to. A saved row inserts a new task or updates an
// existing task's name, pin and status; its dates only move via Deltas.
type Commit struct {
	Scope    ScopeID
	Actor    string
	Reason   string
	Tasks    []Task
	Added    []Edge
	Removed  []Edge
	Deltas   []TaskDelta
	Critical map[TaskID]bool
}

// Empty reports whether the commit would write nothing.
func (c Commit) Empty() bool {
	return len(c.Tasks) == 0 && len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Deltas) == 0 && len(c.Critical) == 0
}

// ScopeStore is what the command service reads from and commits to.
// Implemented by infra/sqlite.DB.
type ScopeStore interface {
	// LoadScope returns the full task/edge set for one scope.
	LoadScope(ctx context.Context, id ScopeID) (*Snapshot, error)

	// ApplyCommit writes a cascade in one transaction: all or nothing.
	ApplyCommit(ctx context.Context, c Commit) error
}

// ScopeCatalog manages scopes and their task rows outside of cascades.
// Implemented by infra/sqlite.DB.
type ScopeCatalog interface {
	CreateScope(ctx context.Context, s Scope) error
	GetScope(ctx context.Context, id ScopeID) (*Scope, error)
	ListScopes(ctx context.Context) ([]Scope, error)
	UpsertTask(ctx context.Context, scope ScopeID, t Task) error
	ListTasks(ctx context.Context, scope ScopeID) ([]Task, error)
}
