// Package domain holds the scheduling types shared by every layer:
// tasks, typed dependency edges, scopes, propagation deltas and errors.
// Domain types are pure: no infrastructure dependency.
package domain

import "time"

// TaskID identifies a task within one scheduling scope. Opaque.
type TaskID string

// TaskStatus tracks task lifecycle. Transitions are external events;
// the engine never originates one.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusComplete   TaskStatus = "complete"
	StatusOnHold     TaskStatus = "on_hold"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusComplete, StatusOnHold:
		return true
	}
	return false
}

// Task is the engine's view of a schedule task. Start and End are calendar
// dates (UTC midnight); End = Start + DurationDays.
type Task struct {
	ID                   TaskID     `json:"id" yaml:"id"`
	Name                 string     `json:"name,omitempty" yaml:"name,omitempty"`
	Start                time.Time  `json:"planned_start" yaml:"planned_start"`
	End                  time.Time  `json:"planned_end" yaml:"planned_end"`
	DurationDays         int        `json:"duration_days" yaml:"duration_days"`
	IsCriticalPath       bool       `json:"is_critical_path" yaml:"is_critical_path,omitempty"`
	IsManuallyPositioned bool       `json:"is_manually_positioned" yaml:"is_manually_positioned,omitempty"`
	Status               TaskStatus `json:"status" yaml:"status,omitempty"`
}

// NewTask builds a task from its start and duration, deriving End.
func NewTask(id TaskID, start time.Time, durationDays int) Task {
	start = Normalize(start)
	return Task{
		ID:           id,
		Start:        start,
		End:          AddDays(start, durationDays),
		DurationDays: durationDays,
		Status:       StatusNotStarted,
	}
}

// Pinned reports whether automatic propagation must leave the dates alone.
func (t *Task) Pinned() bool {
	return t.IsManuallyPositioned
}

// ─── Calendar helpers ───────────────────────────────────────────────────────

// Date returns the UTC midnight of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize drops the clock part of t, keeping its calendar day.
func Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}

// AddDays shifts a calendar date by n days (n may be negative).
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween returns b − a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	a, b = Normalize(a), Normalize(b)
	return int((b.Unix() - a.Unix()) / 86400)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
