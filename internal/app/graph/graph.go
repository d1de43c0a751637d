// Package graph holds the in-memory dependency graph of one scheduling
// scope: an arena of tasks indexed by id plus forward and backward
// adjacency lists. No task refers to another task directly.
//
// A Graph is not safe for concurrent use. Callers serialize access per scope.
package graph

import (
	"fmt"
	"time"

	"github.com/tutu-network/cascade/internal/domain"
)

type edgeKey struct {
	pred, succ domain.TaskID
}

// Graph is the adjacency representation of one scope.
type Graph struct {
	scope    domain.ScopeID
	tasks    map[domain.TaskID]*domain.Task
	order    []domain.TaskID
	forward  map[domain.TaskID][]domain.Edge
	backward map[domain.TaskID][]domain.Edge
	edges    map[edgeKey]struct{}
}

// New returns an empty graph for scope.
func New(scope domain.ScopeID) *Graph {
	return &Graph{
		scope:    scope,
		tasks:    make(map[domain.TaskID]*domain.Task),
		forward:  make(map[domain.TaskID][]domain.Edge),
		backward: make(map[domain.TaskID][]domain.Edge),
		edges:    make(map[edgeKey]struct{}),
	}
}

// Build loads a scope's tasks and edges. It fails with ErrCrossScopeEdge
// when an edge names a task outside the supplied set, ErrDuplicateEdge on a
// repeated (predecessor, successor) pair and ErrCycleDetected on a self-loop.
// Bulk load does not run the cycle guard per edge.
func Build(scope domain.ScopeID, tasks []domain.Task, edges []domain.Edge) (*Graph, error) {
	g := New(scope)
	for _, t := range tasks {
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.checkEndpoints(e); err != nil {
			return nil, err
		}
		if _, dup := g.edges[edgeKey{e.PredecessorID, e.SuccessorID}]; dup {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrDuplicateEdge, e.PredecessorID, e.SuccessorID)
		}
		g.link(e)
	}
	return g, nil
}

// Scope returns the scope this graph belongs to.
func (g *Graph) Scope() domain.ScopeID { return g.scope }

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.order) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// AddTask inserts a task into the arena. Dates are normalized to calendar days.
func (g *Graph) AddTask(t domain.Task) error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", domain.ErrInvalidTask)
	}
	if _, exists := g.tasks[t.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidTask, t.ID)
	}
	t.Start = domain.Normalize(t.Start)
	t.End = domain.Normalize(t.End)
	g.tasks[t.ID] = &t
	g.order = append(g.order, t.ID)
	return nil
}

// Task returns a copy of the task with the given id.
func (g *Graph) Task(id domain.TaskID) (domain.Task, bool) {
	t, ok := g.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return *t, true
}

// Has reports whether id is a task in this scope.
func (g *Graph) Has(id domain.TaskID) bool {
	_, ok := g.tasks[id]
	return ok
}

// IDs returns task ids in insertion order.
func (g *Graph) IDs() []domain.TaskID {
	out := make([]domain.TaskID, len(g.order))
	copy(out, g.order)
	return out
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []domain.Task {
	out := make([]domain.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.tasks[id])
	}
	return out
}

// Edges returns every edge, grouped by predecessor in task order.
func (g *Graph) Edges() []domain.Edge {
	out := make([]domain.Edge, 0, len(g.edges))
	for _, id := range g.order {
		out = append(out, g.forward[id]...)
	}
	return out
}

// SuccessorsOf returns the edges leaving id.
func (g *Graph) SuccessorsOf(id domain.TaskID) []domain.Edge {
	return g.forward[id]
}

// PredecessorsOf returns the edges entering id.
func (g *Graph) PredecessorsOf(id domain.TaskID) []domain.Edge {
	return g.backward[id]
}

// HasEdge reports whether pred → succ exists.
func (g *Graph) HasEdge(pred, succ domain.TaskID) bool {
	_, ok := g.edges[edgeKey{pred, succ}]
	return ok
}

// AddEdge inserts e after validating scope membership, uniqueness and the
// cycle guard. On any error the graph is left unchanged.
func (g *Graph) AddEdge(e domain.Edge) error {
	if err := g.checkEndpoints(e); err != nil {
		return err
	}
	if g.HasEdge(e.PredecessorID, e.SuccessorID) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrDuplicateEdge, e.PredecessorID, e.SuccessorID)
	}
	if WouldCreateCycle(g, e.PredecessorID, e.SuccessorID) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrCycleDetected, e.PredecessorID, e.SuccessorID)
	}
	g.link(e)
	return nil
}

// RemoveEdge deletes pred → succ.
func (g *Graph) RemoveEdge(pred, succ domain.TaskID) error {
	key := edgeKey{pred, succ}
	if _, ok := g.edges[key]; !ok {
		return fmt.Errorf("%w: %s -> %s", domain.ErrEdgeNotFound, pred, succ)
	}
	delete(g.edges, key)
	g.forward[pred] = without(g.forward[pred], key)
	g.backward[succ] = without(g.backward[succ], key)
	return nil
}

// SetDates overwrites a task's planned dates.
func (g *Graph) SetDates(id domain.TaskID, start, end time.Time) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t.Start = domain.Normalize(start)
	t.End = domain.Normalize(end)
	return nil
}

// SetDuration overwrites a task's duration without touching its dates.
func (g *Graph) SetDuration(id domain.TaskID, days int) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t.DurationDays = days
	return nil
}

// SetPinned toggles whether propagation may move the task.
func (g *Graph) SetPinned(id domain.TaskID, pinned bool) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t.IsManuallyPositioned = pinned
	return nil
}

// SetCritical records the engine-owned critical-path flag.
func (g *Graph) SetCritical(id domain.TaskID, critical bool) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t.IsCriticalPath = critical
	return nil
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	c := New(g.scope)
	for _, id := range g.order {
		_ = c.AddTask(*g.tasks[id])
	}
	for _, e := range g.Edges() {
		c.link(e)
	}
	return c
}

func (g *Graph) checkEndpoints(e domain.Edge) error {
	if !g.Has(e.PredecessorID) {
		return fmt.Errorf("%w: predecessor %s not in scope %s", domain.ErrCrossScopeEdge, e.PredecessorID, g.scope)
	}
	if !g.Has(e.SuccessorID) {
		return fmt.Errorf("%w: successor %s not in scope %s", domain.ErrCrossScopeEdge, e.SuccessorID, g.scope)
	}
	if e.PredecessorID == e.SuccessorID {
		return fmt.Errorf("%w: self-loop on %s", domain.ErrCycleDetected, e.PredecessorID)
	}
	return nil
}

func (g *Graph) link(e domain.Edge) {
	if !e.Type.Valid() {
		e.Type = domain.FinishToStart
	}
	g.edges[edgeKey{e.PredecessorID, e.SuccessorID}] = struct{}{}
	g.forward[e.PredecessorID] = append(g.forward[e.PredecessorID], e)
	g.backward[e.SuccessorID] = append(g.backward[e.SuccessorID], e)
}

func without(list []domain.Edge, key edgeKey) []domain.Edge {
	out := list[:0:0]
	for _, e := range list {
		if e.PredecessorID == key.pred && e.SuccessorID == key.succ {
			continue
		}
		out = append(out, e)
	}
	return out
}
