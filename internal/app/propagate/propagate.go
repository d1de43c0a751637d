// Package propagate pushes a task's date change through every transitively
// dependent task.
//
// Bounds only move later. A successor's start (FS, SS) or end (FF, SF) is
// raised to the predecessor's anchor date plus lag; the other bound is
// re-derived from the duration. The walk is a queue-based relaxation: a
// task is re-queued whenever a new predecessor raises its bound, so
// diamonds converge to the maximum regardless of visit order.
//
// Pinned tasks keep their dates but still anchor their successors.
package propagate

import (
	"fmt"
	"time"

	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/domain"
)

// DefaultVisitCapFactor bounds a pass to factor × |V| dequeues.
const DefaultVisitCapFactor = 10

// Config tunes the engine.
type Config struct {
	VisitCapFactor int // default 10
}

// Engine runs propagation passes. It holds no state between calls.
type Engine struct {
	capFactor int
}

// New creates an engine, filling zero config values with defaults.
func New(cfg Config) *Engine {
	if cfg.VisitCapFactor <= 0 {
		cfg.VisitCapFactor = DefaultVisitCapFactor
	}
	return &Engine{capFactor: cfg.VisitCapFactor}
}

// Run propagates with the default configuration.
func Run(g *graph.Graph, origin domain.TaskID, changed domain.ChangedFields) (domain.PropagationResult, error) {
	return New(Config{}).Run(g, origin, changed)
}

// span is the working copy of one task's dates during a pass.
type span struct {
	start, end time.Time
	duration   int
	pinned     bool
}

type pass struct {
	g        *graph.Graph
	work     map[domain.TaskID]*span
	queue    []domain.TaskID
	queued   map[domain.TaskID]bool
	anchored map[domain.TaskID]bool // pinned tasks already queued once
	touched  []domain.TaskID        // first-touch order
	seen     map[domain.TaskID]bool
	skipped  map[domain.TaskID]bool
	clamped  map[domain.TaskID]bool
	warnings []domain.Warning
}

// Run walks the graph from origin and returns the resulting diff. The
// graph's task dates are updated only if the pass completes; a pass that
// trips the visit cap returns ErrUnexpectedCycle and changes nothing.
func (e *Engine) Run(g *graph.Graph, origin domain.TaskID, changed domain.ChangedFields) (domain.PropagationResult, error) {
	if !g.Has(origin) {
		return domain.PropagationResult{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, origin)
	}

	p := &pass{
		g:        g,
		work:     make(map[domain.TaskID]*span),
		queued:   make(map[domain.TaskID]bool),
		anchored: make(map[domain.TaskID]bool),
		seen:     make(map[domain.TaskID]bool),
		skipped:  make(map[domain.TaskID]bool),
		clamped:  make(map[domain.TaskID]bool),
	}

	src := p.span(origin)
	for _, edge := range g.SuccessorsOf(origin) {
		if relevant(edge.Type, changed) {
			p.relax(edge, src)
		}
	}

	limit := e.capFactor * max(g.Len(), 1)
	visits := 0
	for len(p.queue) > 0 {
		id := p.queue[0]
		p.queue = p.queue[1:]
		p.queued[id] = false

		visits++
		if visits > limit {
			return domain.PropagationResult{Visits: visits}, fmt.Errorf(
				"%w: origin %s exceeded %d visits over %d tasks", domain.ErrUnexpectedCycle, origin, limit, g.Len())
		}

		from := p.span(id)
		for _, edge := range g.SuccessorsOf(id) {
			p.relax(edge, from)
		}
	}

	return p.commit(visits), nil
}

// relevant reports whether an origin edge can be affected by the changed
// fields. An empty mask means "anything may have moved".
func relevant(t domain.DepType, changed domain.ChangedFields) bool {
	if changed == 0 {
		return true
	}
	if t.ReadsPredecessorStart() {
		return changed&domain.ChangedStart != 0
	}
	return changed&(domain.ChangedEnd|domain.ChangedDuration) != 0
}

func (p *pass) span(id domain.TaskID) *span {
	if s, ok := p.work[id]; ok {
		return s
	}
	t, _ := p.g.Task(id)
	s := &span{start: t.Start, end: t.End, duration: t.DurationDays, pinned: t.Pinned()}
	p.work[id] = s
	return s
}

// relax applies one edge rule to the successor, queueing it on change.
func (p *pass) relax(edge domain.Edge, pred *span) {
	succ := p.span(edge.SuccessorID)

	anchor := pred.end
	if edge.Type.ReadsPredecessorStart() {
		anchor = pred.start
	}
	bound := domain.AddDays(anchor, edge.LagDays)

	drivesEnd := edge.Type.DrivesSuccessorEnd()
	var moves bool
	if drivesEnd {
		moves = bound.After(succ.end)
	} else {
		moves = bound.After(succ.start)
	}

	if succ.pinned {
		if moves && !p.skipped[edge.SuccessorID] {
			p.skipped[edge.SuccessorID] = true
			p.touch(edge.SuccessorID)
			p.warnings = append(p.warnings, domain.Warning{
				Kind:   domain.WarnPinnedConflict,
				TaskID: edge.SuccessorID,
				Message: fmt.Sprintf("pinned task left in place; %s %s requires %s on or after %s",
					edge.PredecessorID, edge.Type, boundName(drivesEnd), bound.Format(domain.DateLayout)),
			})
		}
		if !p.anchored[edge.SuccessorID] {
			p.anchored[edge.SuccessorID] = true
			p.enqueue(edge.SuccessorID)
		}
		return
	}
	if !moves {
		return
	}

	dur := p.duration(edge.SuccessorID, succ)
	if drivesEnd {
		succ.end = bound
		succ.start = domain.AddDays(bound, -dur)
	} else {
		succ.start = bound
		succ.end = domain.AddDays(bound, dur)
	}
	p.touch(edge.SuccessorID)
	p.enqueue(edge.SuccessorID)
}

// duration returns the span's duration, clamped to zero with a warning.
func (p *pass) duration(id domain.TaskID, s *span) int {
	if s.duration >= 0 {
		return s.duration
	}
	if !p.clamped[id] {
		p.clamped[id] = true
		p.warnings = append(p.warnings, domain.Warning{
			Kind:    domain.WarnNegativeDuration,
			TaskID:  id,
			Message: fmt.Sprintf("duration %d clamped to 0", s.duration),
		})
	}
	return 0
}

func (p *pass) touch(id domain.TaskID) {
	if !p.seen[id] {
		p.seen[id] = true
		p.touched = append(p.touched, id)
	}
}

func (p *pass) enqueue(id domain.TaskID) {
	if !p.queued[id] {
		p.queued[id] = true
		p.queue = append(p.queue, id)
	}
}

// commit writes final dates back to the graph and builds the diff.
func (p *pass) commit(visits int) domain.PropagationResult {
	res := domain.PropagationResult{Visits: visits, Warnings: p.warnings}
	for _, id := range p.touched {
		before, _ := p.g.Task(id)
		s := p.work[id]
		d := domain.TaskDelta{
			TaskID:   id,
			OldStart: before.Start,
			OldEnd:   before.End,
			NewStart: s.start,
			NewEnd:   s.end,
			Skipped:  s.pinned,
		}
		if !d.Skipped && !d.Moved() {
			continue
		}
		if !d.Skipped {
			_ = p.g.SetDates(id, s.start, s.end)
		}
		res.Affected = append(res.Affected, d)
	}
	return res
}

func boundName(end bool) string {
	if end {
		return "finish"
	}
	return "start"
}
