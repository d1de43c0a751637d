package domain

import "strings"

// DepType is one of the four precedence relationships.
type DepType string

const (
	FinishToStart  DepType = "FS"
	StartToStart   DepType = "SS"
	FinishToFinish DepType = "FF"
	StartToFinish  DepType = "SF"
)

// ParseDepType resolves a type string case-insensitively.
// ok is false when s is not one of FS/SS/FF/SF.
func ParseDepType(s string) (DepType, bool) {
	switch DepType(strings.ToUpper(strings.TrimSpace(s))) {
	case FinishToStart:
		return FinishToStart, true
	case StartToStart:
		return StartToStart, true
	case FinishToFinish:
		return FinishToFinish, true
	case StartToFinish:
		return StartToFinish, true
	}
	return FinishToStart, false
}

// Valid reports whether t is a known dependency type.
func (t DepType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// ReadsPredecessorStart reports whether the rule is anchored on the
// predecessor's start (SS, SF) rather than its end (FS, FF).
func (t DepType) ReadsPredecessorStart() bool {
	return t == StartToStart || t == StartToFinish
}

// DrivesSuccessorEnd reports whether the rule bounds the successor's end
// (FF, SF) rather than its start (FS, SS).
func (t DepType) DrivesSuccessorEnd() bool {
	return t == FinishToFinish || t == StartToFinish
}

// Edge is a typed precedence relationship. LagDays may be negative (lead).
type Edge struct {
	PredecessorID TaskID  `json:"predecessor_id" yaml:"predecessor_id"`
	SuccessorID   TaskID  `json:"successor_id" yaml:"successor_id"`
	Type          DepType `json:"type" yaml:"type"`
	LagDays       int     `json:"lag_days" yaml:"lag_days"`
}

// ScopeID identifies one scheduling scope (a project or a template).
type ScopeID string

// ScopeKind distinguishes project graphs from template graphs.
type ScopeKind string

const (
	ScopeProject  ScopeKind = "project"
	ScopeTemplate ScopeKind = "template"
)
