package planfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tutu-network/cascade/internal/domain"
)

const housePlan = `
version: "1"
scope:
  id: house
  name: House build
  start: 2024-01-01
tasks:
  - id: A
    name: Foundation
    start: 2024-01-01
    duration: 5
  - id: B
    start: 2024-01-06
    end: 2024-01-09
    predecessors: [A]
  - id: C
    start: 2024-01-06
    duration: 2
    pinned: true
    status: in_progress
    predecessors: ["ASS+2", {id: B, type: ff, lag: -1}]
  - id: "7"
    start: 2024-01-10
    duration: 1
    predecessors: [C, ghost, "!!"]
`

func TestRead_HousePlan(t *testing.T) {
	snap, err := Read(strings.NewReader(housePlan))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	if snap.Scope.ID != "house" || snap.Scope.Kind != domain.ScopeProject {
		t.Errorf("scope = %+v", snap.Scope)
	}
	if snap.Scope.Start == nil || !snap.Scope.Start.Equal(domain.Date(2024, 1, 1)) {
		t.Errorf("scope start = %v", snap.Scope.Start)
	}

	if len(snap.Tasks) != 4 {
		t.Fatalf("tasks = %d, want 4", len(snap.Tasks))
	}
	b := snap.Tasks[1]
	if b.DurationDays != 3 || !b.End.Equal(domain.Date(2024, 1, 9)) {
		t.Errorf("B = %+v, want duration 3 derived from end", b)
	}
	c := snap.Tasks[2]
	if !c.IsManuallyPositioned || c.Status != domain.StatusInProgress {
		t.Errorf("C = %+v", c)
	}

	want := []domain.Edge{
		{PredecessorID: "A", SuccessorID: "B", Type: domain.FinishToStart},
		{PredecessorID: "A", SuccessorID: "C", Type: domain.StartToStart, LagDays: 2},
		{PredecessorID: "B", SuccessorID: "C", Type: domain.FinishToFinish, LagDays: -1},
		{PredecessorID: "C", SuccessorID: "7", Type: domain.FinishToStart},
	}
	if diff := cmp.Diff(want, snap.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 (ghost, malformed)", snap.Warnings)
	}
}

func TestRead_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "no scope id",
			src:  "scope: {}\ntasks: []\n",
			want: domain.ErrInvalidTask,
		},
		{
			name: "duplicate task",
			src:  "scope: {id: p}\ntasks:\n  - {id: A, start: 2024-01-01}\n  - {id: A, start: 2024-01-02}\n",
			want: domain.ErrInvalidTask,
		},
		{
			name: "bad date",
			src:  "scope: {id: p}\ntasks:\n  - {id: A, start: 01/02/2024}\n",
			want: domain.ErrInvalidTask,
		},
		{
			name: "negative duration",
			src:  "scope: {id: p}\ntasks:\n  - {id: A, start: 2024-01-01, duration: -2}\n",
			want: domain.ErrInvalidTask,
		},
		{
			name: "cycle",
			src: "scope: {id: p}\ntasks:\n" +
				"  - {id: A, start: 2024-01-01, predecessors: [B]}\n" +
				"  - {id: B, start: 2024-01-01, predecessors: [A]}\n",
			want: domain.ErrCycleDetected,
		},
		{
			name: "empty",
			src:  "",
			want: domain.ErrInvalidTask,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			if !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRead_UnknownField(t *testing.T) {
	src := "scope: {id: p}\ntasks:\n  - {id: A, start: 2024-01-01, colour: red}\n"
	if _, err := Read(strings.NewReader(src)); err == nil {
		t.Error("Read() should reject unknown fields")
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	snap, err := Read(strings.NewReader(housePlan))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, *snap); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	back, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read(Write()) error: %v\n%s", err, buf.String())
	}

	if diff := cmp.Diff(snap.Tasks, back.Tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.Edges, back.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if len(back.Warnings) != 0 {
		t.Errorf("re-read warnings = %v, want none", back.Warnings)
	}
}

func TestWrite_CompactDescriptors(t *testing.T) {
	snap := domain.Snapshot{
		Scope: domain.Scope{ID: "p"},
		Tasks: []domain.Task{
			domain.NewTask("A", domain.Date(2024, 3, 1), 2),
			domain.NewTask("B", domain.Date(2024, 3, 3), 1),
		},
		Edges: []domain.Edge{{PredecessorID: "A", SuccessorID: "B", Type: domain.StartToFinish, LagDays: 3}},
	}
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if !strings.Contains(buf.String(), "ASF+3") {
		t.Errorf("Write() output lacks compact descriptor:\n%s", buf.String())
	}
}

func TestRead_CycleRejectedByGuard(t *testing.T) {
	src := "scope: {id: p}\ntasks:\n" +
		"  - {id: A, start: 2024-01-01, predecessors: [C]}\n" +
		"  - {id: B, start: 2024-01-01, predecessors: [A]}\n" +
		"  - {id: C, start: 2024-01-01, predecessors: [B]}\n"
	snap, err := Read(strings.NewReader(src))
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("Read() error = %v, want ErrCycleDetected", err)
	}
	if snap != nil {
		t.Errorf("Read() returned a snapshot for a cyclic plan: %+v", snap)
	}
	// Edges are added in file order, so B -> C closes the loop.
	if !strings.Contains(err.Error(), "B -> C") {
		t.Errorf("error %q does not name the closing edge B -> C", err)
	}
}

func TestWrite_RoundTripSpacedIDs(t *testing.T) {
	snap := domain.Snapshot{
		Scope: domain.Scope{ID: "p", Kind: domain.ScopeProject},
		Tasks: []domain.Task{
			domain.NewTask("Site prep", domain.Date(2024, 3, 1), 2),
			domain.NewTask("Pour", domain.Date(2024, 3, 3), 1),
		},
		Edges: []domain.Edge{
			{PredecessorID: "Site prep", SuccessorID: "Pour", Type: domain.FinishToStart, LagDays: 1},
		},
	}
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	back, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read(Write()) error: %v", err)
	}
	if diff := cmp.Diff(snap.Edges, back.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if len(back.Warnings) != 0 {
		t.Errorf("re-read warnings = %v, want none", back.Warnings)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans", "p.yaml")
	snap := domain.Snapshot{
		Scope: domain.Scope{ID: "p", Kind: domain.ScopeTemplate},
		Tasks: []domain.Task{domain.NewTask("A", domain.Date(2024, 3, 1), 2)},
	}
	if err := Save(path, snap); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Scope.Kind != domain.ScopeTemplate || len(got.Tasks) != 1 {
		t.Errorf("Load() = %+v", got)
	}
}
