package graph

import (
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/tutu-network/cascade/internal/domain"
)

// reachable walks forward edges from start; test-only reference traversal.
func reachable(g *Graph, start domain.TaskID) map[domain.TaskID]bool {
	seen := map[domain.TaskID]bool{}
	queue := []domain.TaskID{}
	for _, e := range g.SuccessorsOf(start) {
		queue = append(queue, e.SuccessorID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.SuccessorsOf(id) {
			queue = append(queue, e.SuccessorID)
		}
	}
	return seen
}

// Property: after any sequence of AddEdge calls, no task reaches itself,
// and every rejection leaves the edge count unchanged.
func TestProperty_AcceptedEdgesStayAcyclic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 12).Draw(t, "tasks")
		ids := make([]domain.TaskID, n)
		ts := make([]domain.Task, n)
		for i := range ids {
			ids[i] = domain.TaskID("t" + strconv.Itoa(i))
			ts[i] = domain.NewTask(ids[i], domain.Date(2024, 1, 1), 1)
		}
		g, err := Build("prop", ts, nil)
		if err != nil {
			t.Fatalf("Build() error: %v", err)
		}

		attempts := rapid.IntRange(0, 40).Draw(t, "attempts")
		for i := 0; i < attempts; i++ {
			e := domain.Edge{
				PredecessorID: rapid.SampledFrom(ids).Draw(t, "pred"),
				SuccessorID:   rapid.SampledFrom(ids).Draw(t, "succ"),
				Type:          domain.FinishToStart,
			}
			before := g.EdgeCount()
			if err := g.AddEdge(e); err != nil && g.EdgeCount() != before {
				t.Fatalf("rejected AddEdge(%+v) changed edge count %d -> %d", e, before, g.EdgeCount())
			}
		}

		for _, id := range ids {
			if reachable(g, id)[id] {
				t.Fatalf("task %s reachable from itself", id)
			}
		}
	})
}
