package graph

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tutu-network/cascade/internal/domain"
)

func tasks(ids ...domain.TaskID) []domain.Task {
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.NewTask(id, domain.Date(2024, 1, 1), 1))
	}
	return out
}

func fs(pred, succ domain.TaskID) domain.Edge {
	return domain.Edge{PredecessorID: pred, SuccessorID: succ, Type: domain.FinishToStart}
}

func newTestGraph(t *testing.T, edges ...domain.Edge) *Graph {
	t.Helper()
	g, err := Build("p1", tasks("A", "B", "C", "D"), edges)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return g
}

// ─── Build ──────────────────────────────────────────────────────────────────

func TestBuild_Adjacency(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"), fs("A", "C"), fs("B", "D"), fs("C", "D"))

	if g.Len() != 4 || g.EdgeCount() != 4 {
		t.Fatalf("Len/EdgeCount = %d/%d, want 4/4", g.Len(), g.EdgeCount())
	}
	if diff := cmp.Diff([]domain.Edge{fs("A", "B"), fs("A", "C")}, g.SuccessorsOf("A")); diff != "" {
		t.Errorf("SuccessorsOf(A) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.Edge{fs("B", "D"), fs("C", "D")}, g.PredecessorsOf("D")); diff != "" {
		t.Errorf("PredecessorsOf(D) mismatch (-want +got):\n%s", diff)
	}
	if len(g.PredecessorsOf("A")) != 0 {
		t.Errorf("PredecessorsOf(A) = %v, want none", g.PredecessorsOf("A"))
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edges []domain.Edge
		want  error
	}{
		{"unknown predecessor", []domain.Edge{fs("X", "A")}, domain.ErrCrossScopeEdge},
		{"unknown successor", []domain.Edge{fs("A", "X")}, domain.ErrCrossScopeEdge},
		{"duplicate pair", []domain.Edge{fs("A", "B"), fs("A", "B")}, domain.ErrDuplicateEdge},
		{"self loop", []domain.Edge{fs("A", "A")}, domain.ErrCycleDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build("p1", tasks("A", "B"), tt.edges)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuild_DuplicateTask(t *testing.T) {
	_, err := Build("p1", tasks("A", "A"), nil)
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Errorf("Build() error = %v, want ErrInvalidTask", err)
	}
}

func TestBuild_InvalidTypeDefaultsToFS(t *testing.T) {
	g, err := Build("p1", tasks("A", "B"), []domain.Edge{{PredecessorID: "A", SuccessorID: "B", Type: "??"}})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got := g.SuccessorsOf("A")[0].Type; got != domain.FinishToStart {
		t.Errorf("Type = %q, want FS", got)
	}
}

// ─── AddEdge / RemoveEdge ───────────────────────────────────────────────────

func TestAddEdge_RejectsCycle(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"), fs("B", "C"))

	err := g.AddEdge(fs("C", "A"))
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("AddEdge(C->A) error = %v, want ErrCycleDetected", err)
	}
	if diff := cmp.Diff([]domain.Edge{fs("A", "B"), fs("B", "C")}, g.Edges()); diff != "" {
		t.Errorf("graph mutated by rejected insert (-want +got):\n%s", diff)
	}
}

func TestAddEdge_Rejections(t *testing.T) {
	tests := []struct {
		name string
		edge domain.Edge
		want error
	}{
		{"self loop", fs("A", "A"), domain.ErrCycleDetected},
		{"duplicate", fs("A", "B"), domain.ErrDuplicateEdge},
		{"cross scope", fs("A", "Z"), domain.ErrCrossScopeEdge},
		{"transitive cycle", fs("B", "A"), domain.ErrCycleDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t, fs("A", "B"))
			if err := g.AddEdge(tt.edge); !errors.Is(err, tt.want) {
				t.Errorf("AddEdge(%+v) error = %v, want %v", tt.edge, err, tt.want)
			}
			if g.EdgeCount() != 1 {
				t.Errorf("EdgeCount() = %d after rejection, want 1", g.EdgeCount())
			}
		})
	}
}

func TestAddEdge_AcceptsDiamond(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"), fs("A", "C"), fs("B", "D"))
	if err := g.AddEdge(fs("C", "D")); err != nil {
		t.Fatalf("AddEdge(C->D) error: %v", err)
	}
	if !g.HasEdge("C", "D") {
		t.Error("HasEdge(C, D) = false after insert")
	}
}

func TestRemoveEdge(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"), fs("B", "C"))

	if err := g.RemoveEdge("A", "B"); err != nil {
		t.Fatalf("RemoveEdge() error: %v", err)
	}
	if g.HasEdge("A", "B") || len(g.SuccessorsOf("A")) != 0 || len(g.PredecessorsOf("B")) != 0 {
		t.Error("edge A->B still indexed after removal")
	}
	if err := g.RemoveEdge("A", "B"); !errors.Is(err, domain.ErrEdgeNotFound) {
		t.Errorf("second RemoveEdge() error = %v, want ErrEdgeNotFound", err)
	}
	// C -> A is legal again once A -> B is gone.
	if err := g.AddEdge(fs("C", "A")); err != nil {
		t.Errorf("AddEdge(C->A) after removal error: %v", err)
	}
}

// ─── Mutators ───────────────────────────────────────────────────────────────

func TestSetDates_Normalizes(t *testing.T) {
	g := newTestGraph(t)
	start := domain.Date(2024, 3, 1).Add(13 * time.Hour)
	if err := g.SetDates("A", start, domain.AddDays(start, 2)); err != nil {
		t.Fatalf("SetDates() error: %v", err)
	}
	got, _ := g.Task("A")
	if !got.Start.Equal(domain.Date(2024, 3, 1)) || !got.End.Equal(domain.Date(2024, 3, 3)) {
		t.Errorf("dates = %v..%v, want 2024-03-01..2024-03-03", got.Start, got.End)
	}
	if err := g.SetDates("nope", start, start); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("SetDates(unknown) error = %v, want ErrTaskNotFound", err)
	}
}

func TestClone_Independent(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"))
	c := g.Clone()
	if err := c.AddEdge(fs("B", "C")); err != nil {
		t.Fatalf("AddEdge() on clone error: %v", err)
	}
	_ = c.SetCritical("A", true)

	if g.EdgeCount() != 1 {
		t.Errorf("original EdgeCount() = %d, want 1", g.EdgeCount())
	}
	if a, _ := g.Task("A"); a.IsCriticalPath {
		t.Error("clone mutation leaked into original task")
	}
}

// ─── Cycle guard ────────────────────────────────────────────────────────────

func TestWouldCreateCycle(t *testing.T) {
	g := newTestGraph(t, fs("A", "B"), fs("B", "C"))
	tests := []struct {
		pred, succ domain.TaskID
		want       bool
	}{
		{"C", "A", true},
		{"B", "A", true},
		{"A", "A", true},
		{"A", "C", false},
		{"C", "D", false},
		{"D", "A", false},
	}
	for _, tt := range tests {
		if got := WouldCreateCycle(g, tt.pred, tt.succ); got != tt.want {
			t.Errorf("WouldCreateCycle(%s -> %s) = %v, want %v", tt.pred, tt.succ, got, tt.want)
		}
	}
}

func TestWouldCreateCycle_LongChain(t *testing.T) {
	const n = 50_000
	ts := make([]domain.Task, n)
	es := make([]domain.Edge, 0, n-1)
	for i := range ts {
		ts[i] = domain.NewTask(domain.TaskID("t"+strconv.Itoa(i)), domain.Date(2024, 1, 1), 1)
		if i > 0 {
			es = append(es, fs(ts[i-1].ID, ts[i].ID))
		}
	}
	g, err := Build("big", ts, es)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !WouldCreateCycle(g, ts[n-1].ID, ts[0].ID) {
		t.Error("closing a 50k chain not detected")
	}
}
