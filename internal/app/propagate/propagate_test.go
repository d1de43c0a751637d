package propagate

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/domain"
)

func day(m time.Month, d int) time.Time { return domain.Date(2024, m, d) }

func task(id domain.TaskID, start time.Time, dur int) domain.Task {
	return domain.NewTask(id, start, dur)
}

func pinned(id domain.TaskID, start time.Time, dur int) domain.Task {
	t := domain.NewTask(id, start, dur)
	t.IsManuallyPositioned = true
	return t
}

func edge(pred, succ domain.TaskID, typ domain.DepType, lag int) domain.Edge {
	return domain.Edge{PredecessorID: pred, SuccessorID: succ, Type: typ, LagDays: lag}
}

func build(t *testing.T, tasks []domain.Task, edges ...domain.Edge) *graph.Graph {
	t.Helper()
	g, err := graph.Build("p1", tasks, edges)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return g
}

func dates(t *testing.T, g *graph.Graph, id domain.TaskID) (time.Time, time.Time) {
	t.Helper()
	task, ok := g.Task(id)
	if !ok {
		t.Fatalf("task %s missing", id)
	}
	return task.Start, task.End
}

// ─── Scenarios ──────────────────────────────────────────────────────────────

func TestRun_FinishToStartWithLag(t *testing.T) {
	g := build(t,
		[]domain.Task{task("A", day(1, 1), 5), task("B", day(1, 1), 3)},
		edge("A", "B", domain.FinishToStart, 2),
	)

	res, err := Run(g, "A", 0)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	start, end := dates(t, g, "B")
	if !start.Equal(day(1, 8)) || !end.Equal(day(1, 11)) {
		t.Errorf("B = %s..%s, want 2024-01-08..2024-01-11", start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}
	want := []domain.TaskDelta{{
		TaskID:   "B",
		OldStart: day(1, 1), OldEnd: day(1, 4),
		NewStart: day(1, 8), NewEnd: day(1, 11),
	}}
	if diff := cmp.Diff(want, res.Affected); diff != "" {
		t.Errorf("Affected mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DiamondTakesMaximum(t *testing.T) {
	g := build(t,
		[]domain.Task{
			task("A", day(1, 5), 5), // ends 01-10
			task("B", day(1, 1), 2),
			task("C", day(1, 1), 5),
			task("D", day(1, 1), 1),
		},
		edge("A", "B", domain.FinishToStart, 0),
		edge("A", "C", domain.FinishToStart, 0),
		edge("B", "D", domain.FinishToStart, 0),
		edge("C", "D", domain.FinishToStart, 0),
	)

	if _, err := Run(g, "A", domain.ChangedEnd); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, end := dates(t, g, "B"); !end.Equal(day(1, 12)) {
		t.Errorf("B.end = %v, want 2024-01-12", end)
	}
	if _, end := dates(t, g, "C"); !end.Equal(day(1, 15)) {
		t.Errorf("C.end = %v, want 2024-01-15", end)
	}
	if start, _ := dates(t, g, "D"); !start.Equal(day(1, 15)) {
		t.Errorf("D.start = %v, want 2024-01-15", start)
	}
}

func TestRun_PinnedTaskAnchorsSuccessors(t *testing.T) {
	g := build(t,
		[]domain.Task{
			task("A", day(1, 20), 20), // ends 02-09, would push B
			pinned("B", day(2, 1), 3), // fixed 02-01..02-04
			task("C", day(1, 1), 2),
		},
		edge("A", "B", domain.FinishToStart, 0),
		edge("B", "C", domain.FinishToStart, 1),
	)

	res, err := Run(g, "A", 0)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if start, end := dates(t, g, "B"); !start.Equal(day(2, 1)) || !end.Equal(day(2, 4)) {
		t.Errorf("pinned B moved to %v..%v", start, end)
	}
	if start, end := dates(t, g, "C"); !start.Equal(day(2, 5)) || !end.Equal(day(2, 7)) {
		t.Errorf("C = %v..%v, want 2024-02-05..2024-02-07", start, end)
	}

	want := []domain.TaskDelta{
		{TaskID: "B", OldStart: day(2, 1), OldEnd: day(2, 4), NewStart: day(2, 1), NewEnd: day(2, 4), Skipped: true},
		{TaskID: "C", OldStart: day(1, 1), OldEnd: day(1, 3), NewStart: day(2, 5), NewEnd: day(2, 7)},
	}
	if diff := cmp.Diff(want, res.Affected); diff != "" {
		t.Errorf("Affected mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != domain.WarnPinnedConflict {
		t.Errorf("Warnings = %v, want one pinned conflict", res.Warnings)
	}
	if got := res.Changed(); len(got) != 1 || got[0].TaskID != "C" {
		t.Errorf("Changed() = %v, want only C", got)
	}
}

// ─── Dependency rules ───────────────────────────────────────────────────────

func TestRun_DependencyRules(t *testing.T) {
	// Predecessor P spans 01-10..01-15; successor S has duration 4.
	tests := []struct {
		name      string
		typ       domain.DepType
		lag       int
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"FS", domain.FinishToStart, 0, day(1, 15), day(1, 19)},
		{"FS lead", domain.FinishToStart, -2, day(1, 13), day(1, 17)},
		{"SS", domain.StartToStart, 1, day(1, 11), day(1, 15)},
		{"FF", domain.FinishToFinish, 3, day(1, 14), day(1, 18)},
		{"SF", domain.StartToFinish, 0, day(1, 6), day(1, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t,
				[]domain.Task{task("P", day(1, 10), 5), task("S", day(1, 1), 4)},
				edge("P", "S", tt.typ, tt.lag),
			)
			if _, err := Run(g, "P", 0); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			start, end := dates(t, g, "S")
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("S = %s..%s, want %s..%s",
					start.Format(domain.DateLayout), end.Format(domain.DateLayout),
					tt.wantStart.Format(domain.DateLayout), tt.wantEnd.Format(domain.DateLayout))
			}
		})
	}
}

func TestRun_NeverPullsEarlier(t *testing.T) {
	g := build(t,
		[]domain.Task{task("A", day(1, 1), 1), task("B", day(3, 1), 2)},
		edge("A", "B", domain.FinishToStart, 0),
	)
	res, err := Run(g, "A", 0)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Affected) != 0 {
		t.Errorf("Affected = %v, want none", res.Affected)
	}
	if start, _ := dates(t, g, "B"); !start.Equal(day(3, 1)) {
		t.Errorf("B.start = %v, want unchanged 2024-03-01", start)
	}
}

func TestRun_ChangedFieldsFilterOriginEdges(t *testing.T) {
	// Only the start moved; FS successor is left alone, SS successor follows.
	g := build(t,
		[]domain.Task{task("A", day(1, 10), 5), task("FSs", day(1, 1), 1), task("SSs", day(1, 1), 1)},
		edge("A", "FSs", domain.FinishToStart, 0),
		edge("A", "SSs", domain.StartToStart, 0),
	)
	if _, err := Run(g, "A", domain.ChangedStart); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if start, _ := dates(t, g, "FSs"); !start.Equal(day(1, 1)) {
		t.Errorf("FS successor moved to %v on a start-only change", start)
	}
	if start, _ := dates(t, g, "SSs"); !start.Equal(day(1, 10)) {
		t.Errorf("SS successor start = %v, want 2024-01-10", start)
	}
}

func TestRun_NegativeDurationClamped(t *testing.T) {
	bad := task("B", day(1, 1), 0)
	bad.DurationDays = -3
	g := build(t,
		[]domain.Task{task("A", day(1, 1), 5), bad},
		edge("A", "B", domain.FinishToStart, 0),
	)
	res, err := Run(g, "A", 0)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	start, end := dates(t, g, "B")
	if !start.Equal(day(1, 6)) || !end.Equal(start) {
		t.Errorf("B = %v..%v, want zero-length at 2024-01-06", start, end)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != domain.WarnNegativeDuration {
		t.Errorf("Warnings = %v, want one negative-duration warning", res.Warnings)
	}
}

// ─── Failure semantics ──────────────────────────────────────────────────────

func TestRun_UnknownOrigin(t *testing.T) {
	g := build(t, []domain.Task{task("A", day(1, 1), 1)})
	if _, err := Run(g, "Z", 0); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("Run(Z) error = %v, want ErrTaskNotFound", err)
	}
}

func TestRun_VisitCapAbortsOnCycle(t *testing.T) {
	// Bulk load skips the guard, so a persisted cycle can reach the engine.
	g := build(t,
		[]domain.Task{task("A", day(1, 1), 2), task("B", day(1, 1), 2)},
		edge("A", "B", domain.FinishToStart, 0),
		edge("B", "A", domain.FinishToStart, 0),
	)
	res, err := Run(g, "A", 0)
	if !errors.Is(err, domain.ErrUnexpectedCycle) {
		t.Fatalf("Run() error = %v, want ErrUnexpectedCycle", err)
	}
	if res.Visits != 2*DefaultVisitCapFactor+1 {
		t.Errorf("Visits = %d, want %d", res.Visits, 2*DefaultVisitCapFactor+1)
	}
	if start, _ := dates(t, g, "B"); !start.Equal(day(1, 1)) {
		t.Errorf("aborted pass wrote B.start = %v", start)
	}
}

func TestEngine_CustomCap(t *testing.T) {
	g := build(t,
		[]domain.Task{task("A", day(1, 1), 1), task("B", day(1, 1), 1)},
		edge("A", "B", domain.FinishToStart, 0),
		edge("B", "A", domain.FinishToStart, 0),
	)
	res, err := New(Config{VisitCapFactor: 1}).Run(g, "A", 0)
	if !errors.Is(err, domain.ErrUnexpectedCycle) || res.Visits != 3 {
		t.Errorf("Run() = visits %d, err %v; want 3 visits and ErrUnexpectedCycle", res.Visits, err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	g := build(t,
		[]domain.Task{task("A", day(1, 10), 5), task("B", day(1, 1), 2), task("C", day(1, 1), 3)},
		edge("A", "B", domain.FinishToStart, 1),
		edge("B", "C", domain.FinishToFinish, 0),
	)
	if _, err := Run(g, "A", 0); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	res, err := Run(g, "A", 0)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if len(res.Affected) != 0 {
		t.Errorf("second pass Affected = %v, want empty", res.Affected)
	}
}
