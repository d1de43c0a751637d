// Package planfile reads and writes scope snapshots as YAML plan files.
//
// A plan file carries one scope and its tasks. Each task lists its
// predecessors inline, in any descriptor shape the codec accepts:
//
//	version: "1"
//	scope:
//	  id: house
//	  start: 2024-01-01
//	tasks:
//	  - id: A
//	    start: 2024-01-01
//	    duration: 5
//	  - id: B
//	    start: 2024-01-06
//	    duration: 3
//	    predecessors: [A, "CSS+2", {id: D, type: FF, lag: -1}]
package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tutu-network/cascade/internal/app/codec"
	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/domain"
)

// Version is written into every exported plan file.
const Version = "1"

// File is the on-disk layout of a plan file.
type File struct {
	Version string    `yaml:"version"`
	Scope   ScopeDoc  `yaml:"scope"`
	Tasks   []TaskDoc `yaml:"tasks"`
}

// ScopeDoc is the scope header. Dates are YYYY-MM-DD.
type ScopeDoc struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name,omitempty"`
	Kind  string `yaml:"kind,omitempty"`
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// TaskDoc is one task. Duration wins over End when both are present
// and disagree.
type TaskDoc struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	Start        string `yaml:"start"`
	End          string `yaml:"end,omitempty"`
	Duration     *int   `yaml:"duration,omitempty"`
	Pinned       bool   `yaml:"pinned,omitempty"`
	Status       string `yaml:"status,omitempty"`
	Predecessors []any  `yaml:"predecessors,omitempty"`
}

// ─── Read ───────────────────────────────────────────────────────────────────

// Load reads a plan file from disk.
func Load(path string) (*domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a plan file into a snapshot. Malformed descriptors and
// descriptors naming a task that is not in the file are skipped with a
// warning. A cyclic plan is rejected with ErrCycleDetected.
func Read(r io.Reader) (*domain.Snapshot, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty plan file", domain.ErrInvalidTask)
		}
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if f.Version != "" && f.Version != Version {
		return nil, fmt.Errorf("unsupported plan file version %q", f.Version)
	}

	scope, err := f.Scope.scope()
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{Scope: scope}

	known := make(map[domain.TaskID]bool, len(f.Tasks))
	for _, td := range f.Tasks {
		t, err := td.task()
		if err != nil {
			return nil, err
		}
		if known[t.ID] {
			return nil, fmt.Errorf("%w: task %s listed twice", domain.ErrInvalidTask, t.ID)
		}
		known[t.ID] = true
		snap.Tasks = append(snap.Tasks, t)
	}

	for _, td := range f.Tasks {
		succ := domain.TaskID(td.ID)
		edges, warnings := codec.DecodeAll(succ, td.Predecessors)
		snap.Warnings = append(snap.Warnings, warnings...)
		for _, e := range edges {
			if !known[e.PredecessorID] || e.PredecessorID == succ {
				snap.Warnings = append(snap.Warnings, domain.Warning{
					Kind:    domain.WarnMalformedDescriptor,
					TaskID:  succ,
					Message: fmt.Sprintf("predecessor %s is not a task in this plan, skipped", e.PredecessorID),
				})
				continue
			}
			snap.Edges = append(snap.Edges, e)
		}
	}

	g, err := graph.Build(scope.ID, snap.Tasks, nil)
	if err != nil {
		return nil, err
	}
	for _, e := range snap.Edges {
		if err := g.AddEdge(e); err != nil {
			if errors.Is(err, domain.ErrCycleDetected) {
				return nil, fmt.Errorf("plan %s is cyclic: %w", scope.ID, err)
			}
			return nil, err
		}
	}
	return snap, nil
}

func (d ScopeDoc) scope() (domain.Scope, error) {
	s := domain.Scope{ID: domain.ScopeID(d.ID), Name: d.Name, Kind: domain.ScopeKind(d.Kind)}
	if s.ID == "" {
		return s, fmt.Errorf("%w: plan file has no scope id", domain.ErrInvalidTask)
	}
	switch s.Kind {
	case "":
		s.Kind = domain.ScopeProject
	case domain.ScopeProject, domain.ScopeTemplate:
	default:
		return s, fmt.Errorf("%w: unknown scope kind %q", domain.ErrInvalidTask, d.Kind)
	}
	var err error
	if s.Start, err = optionalDate(d.Start); err != nil {
		return s, fmt.Errorf("%w: scope start: %v", domain.ErrInvalidTask, err)
	}
	if s.End, err = optionalDate(d.End); err != nil {
		return s, fmt.Errorf("%w: scope end: %v", domain.ErrInvalidTask, err)
	}
	return s, nil
}

func (d TaskDoc) task() (domain.Task, error) {
	if d.ID == "" {
		return domain.Task{}, fmt.Errorf("%w: task without id", domain.ErrInvalidTask)
	}
	start, err := domain.ParseDate(d.Start)
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: task %s start: %v", domain.ErrInvalidTask, d.ID, err)
	}

	dur := 0
	switch {
	case d.Duration != nil:
		dur = *d.Duration
	case d.End != "":
		end, err := domain.ParseDate(d.End)
		if err != nil {
			return domain.Task{}, fmt.Errorf("%w: task %s end: %v", domain.ErrInvalidTask, d.ID, err)
		}
		dur = domain.DaysBetween(start, end)
	}
	if dur < 0 {
		return domain.Task{}, fmt.Errorf("%w: task %s has negative duration", domain.ErrInvalidTask, d.ID)
	}

	t := domain.NewTask(domain.TaskID(d.ID), start, dur)
	t.Name = d.Name
	t.IsManuallyPositioned = d.Pinned
	if d.Status != "" {
		t.Status = domain.TaskStatus(d.Status)
		if !t.Status.Valid() {
			return domain.Task{}, fmt.Errorf("%w: task %s has unknown status %q", domain.ErrInvalidTask, d.ID, d.Status)
		}
	}
	return t, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ─── Write ──────────────────────────────────────────────────────────────────

// Save writes snap to path, replacing any existing file.
func Save(path string, snap domain.Snapshot) error {
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create plan dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Write encodes snap as a plan file. Edges are written inline on their
// successor in compact form; a descriptor that would not read back as
// the same edge is written as a mapping instead.
func Write(w io.Writer, snap domain.Snapshot) error {
	f := File{
		Version: Version,
		Scope: ScopeDoc{
			ID:    string(snap.Scope.ID),
			Name:  snap.Scope.Name,
			Kind:  string(snap.Scope.Kind),
			Start: formatDate(snap.Scope.Start),
			End:   formatDate(snap.Scope.End),
		},
	}

	preds := make(map[domain.TaskID][]any)
	for _, e := range snap.Edges {
		preds[e.SuccessorID] = append(preds[e.SuccessorID], codec.EncodeValue(e))
	}
	for _, t := range snap.Tasks {
		dur := t.DurationDays
		td := TaskDoc{
			ID:           string(t.ID),
			Name:         t.Name,
			Start:        t.Start.Format(domain.DateLayout),
			Duration:     &dur,
			Pinned:       t.IsManuallyPositioned,
			Predecessors: preds[t.ID],
		}
		if t.Status != "" && t.Status != domain.StatusNotStarted {
			td.Status = string(t.Status)
		}
		f.Tasks = append(f.Tasks, td)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("encode plan file: %w", err)
	}
	return enc.Close()
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
