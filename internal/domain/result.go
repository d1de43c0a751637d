package domain

import (
	"fmt"
	"time"
)

// ChangedFields tells the propagation engine which origin fields moved.
type ChangedFields uint8

const (
	ChangedStart ChangedFields = 1 << iota
	ChangedEnd
	ChangedDuration
)

// Has reports whether every bit of f is set.
func (c ChangedFields) Has(f ChangedFields) bool {
	return c&f == f
}

// TaskDelta is one task's date change produced by a cascade.
type TaskDelta struct {
	TaskID   TaskID    `json:"task_id"`
	OldStart time.Time `json:"old_start"`
	OldEnd   time.Time `json:"old_end"`
	NewStart time.Time `json:"new_start"`
	NewEnd   time.Time `json:"new_end"`
	// Skipped marks a pinned task the cascade reached and would have
	// moved but left alone. Old and new dates are equal.
	Skipped bool `json:"skipped,omitempty"`
}

// Moved reports whether the delta actually changes dates.
func (d TaskDelta) Moved() bool {
	return !d.Skipped && (!d.OldStart.Equal(d.NewStart) || !d.OldEnd.Equal(d.NewEnd))
}

// WarningKind classifies non-fatal engine warnings.
type WarningKind string

const (
	WarnMalformedDescriptor WarningKind = "malformed_descriptor"
	WarnUnknownDepType      WarningKind = "unknown_dependency_type"
	WarnDuplicateDescriptor WarningKind = "duplicate_descriptor"
	WarnNegativeDuration    WarningKind = "negative_duration_clamped"
	WarnPinnedConflict      WarningKind = "pinned_task_conflict"
)

// Warning is a non-fatal condition surfaced alongside a result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	TaskID  TaskID      `json:"task_id,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.TaskID != "" {
		return fmt.Sprintf("%s [%s]: %s", w.Kind, w.TaskID, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// PropagationResult is the diff a cascade returns to its caller.
type PropagationResult struct {
	Affected []TaskDelta `json:"affected"`
	Warnings []Warning   `json:"errors"`
	Visits   int         `json:"visits"`
}

// Changed returns the deltas that move dates, dropping skipped pinned tasks.
func (r PropagationResult) Changed() []TaskDelta {
	var out []TaskDelta
	for _, d := range r.Affected {
		if d.Moved() {
			out = append(out, d)
		}
	}
	return out
}

// Schedule is one task's CPM figures.
type Schedule struct {
	EarliestStart  time.Time `json:"earliest_start"`
	EarliestFinish time.Time `json:"earliest_finish"`
	LatestStart    time.Time `json:"latest_start"`
	LatestFinish   time.Time `json:"latest_finish"`
	FloatDays      int       `json:"float_days"`
	IsCritical     bool      `json:"is_critical"`
}
