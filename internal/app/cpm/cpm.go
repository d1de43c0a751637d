// Package cpm computes critical-path figures for a whole scope.
//
// Forward pass: earliest start/finish in topological order, seeded at the
// project start. Backward pass: latest start/finish in reverse order,
// seeded at the project end (or the latest earliest-finish). Float is
// latest start minus earliest start. A task is critical when its float is
// zero or negative: an explicit project end earlier than the forward pass
// reaches, or a pinned task placed past its latest start, leaves negative
// float, and such a task is reported critical rather than dropped.
package cpm

import (
	"fmt"
	"time"

	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/domain"
)

// Options seeds the passes. Nil fields fall back to the graph's own dates.
type Options struct {
	ProjectStart *time.Time
	ProjectEnd   *time.Time
}

// FromScope builds options from a scope's declared bounds.
func FromScope(s domain.Scope) Options {
	return Options{ProjectStart: s.Start, ProjectEnd: s.End}
}

// Recompute runs both passes over every task and marks IsCritical when
// FloatDays <= 0. A graph that cannot be ordered topologically yields
// ErrUnexpectedCycle.
func Recompute(g *graph.Graph, opts Options) (map[domain.TaskID]domain.Schedule, error) {
	out := make(map[domain.TaskID]domain.Schedule, g.Len())
	if g.Len() == 0 {
		return out, nil
	}

	order, err := TopologicalOrder(g)
	if err != nil {
		return nil, err
	}

	base := projectStart(g, opts)
	off := func(t time.Time) int { return domain.DaysBetween(base, t) }

	dur := make(map[domain.TaskID]int, len(order))
	es := make(map[domain.TaskID]int, len(order))
	ef := make(map[domain.TaskID]int, len(order))

	// Forward pass.
	for _, id := range order {
		t, _ := g.Task(id)
		d := max(t.DurationDays, 0)
		dur[id] = d

		start := 0
		if t.Pinned() {
			start = off(t.Start)
		} else {
			for _, e := range g.PredecessorsOf(id) {
				start = max(start, earliestBound(e, es[e.PredecessorID], ef[e.PredecessorID], d))
			}
		}
		es[id] = start
		ef[id] = start + d
	}

	end := 0
	if opts.ProjectEnd != nil {
		end = off(*opts.ProjectEnd)
	} else {
		for _, id := range order {
			end = max(end, ef[id])
		}
	}

	// Backward pass.
	lf := make(map[domain.TaskID]int, len(order))
	ls := make(map[domain.TaskID]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		finish := end
		for _, e := range g.SuccessorsOf(id) {
			finish = min(finish, latestBound(e, ls[e.SuccessorID], lf[e.SuccessorID], dur[id]))
		}
		lf[id] = finish
		ls[id] = finish - dur[id]
	}

	for _, id := range order {
		float := ls[id] - es[id]
		out[id] = domain.Schedule{
			EarliestStart:  domain.AddDays(base, es[id]),
			EarliestFinish: domain.AddDays(base, ef[id]),
			LatestStart:    domain.AddDays(base, ls[id]),
			LatestFinish:   domain.AddDays(base, lf[id]),
			FloatDays:      float,
			IsCritical:     float <= 0,
		}
	}
	return out, nil
}

// earliestBound is the lowest earliest start a predecessor edge allows for
// a successor of duration d.
func earliestBound(e domain.Edge, predES, predEF, d int) int {
	switch e.Type {
	case domain.StartToStart:
		return predES + e.LagDays
	case domain.FinishToFinish:
		return predEF + e.LagDays - d
	case domain.StartToFinish:
		return predES + e.LagDays - d
	default:
		return predEF + e.LagDays
	}
}

// latestBound is the highest latest finish a successor edge allows for a
// predecessor of duration d.
func latestBound(e domain.Edge, succLS, succLF, d int) int {
	switch e.Type {
	case domain.StartToStart:
		return succLS - e.LagDays + d
	case domain.FinishToFinish:
		return succLF - e.LagDays
	case domain.StartToFinish:
		return succLF - e.LagDays + d
	default:
		return succLS - e.LagDays
	}
}

func projectStart(g *graph.Graph, opts Options) time.Time {
	if opts.ProjectStart != nil {
		return domain.Normalize(*opts.ProjectStart)
	}
	var earliest time.Time
	for _, t := range g.Tasks() {
		if earliest.IsZero() || t.Start.Before(earliest) {
			earliest = t.Start
		}
	}
	return earliest
}

// TopologicalOrder returns task ids so every predecessor precedes its
// successors, ties broken by insertion order (Kahn's algorithm).
func TopologicalOrder(g *graph.Graph) ([]domain.TaskID, error) {
	ids := g.IDs()
	indeg := make(map[domain.TaskID]int, len(ids))
	for _, id := range ids {
		indeg[id] = len(g.PredecessorsOf(id))
	}

	queue := make([]domain.TaskID, 0, len(ids))
	for _, id := range ids {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]domain.TaskID, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, e := range g.SuccessorsOf(id) {
			indeg[e.SuccessorID]--
			if indeg[e.SuccessorID] == 0 {
				queue = append(queue, e.SuccessorID)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d tasks could not be ordered",
			domain.ErrUnexpectedCycle, len(ids)-len(order), len(ids))
	}
	return order, nil
}

// Apply copies IsCritical flags into the graph and returns the ids whose
// flag changed, in task order.
func Apply(g *graph.Graph, schedules map[domain.TaskID]domain.Schedule) []domain.TaskID {
	var flipped []domain.TaskID
	for _, t := range g.Tasks() {
		s, ok := schedules[t.ID]
		if !ok || s.IsCritical == t.IsCriticalPath {
			continue
		}
		_ = g.SetCritical(t.ID, s.IsCritical)
		flipped = append(flipped, t.ID)
	}
	return flipped
}
