package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Edge mutation errors (rejected before mutation)
	ErrCycleDetected  = errors.New("dependency would create a cycle")
	ErrCrossScopeEdge = errors.New("dependency references a task outside the scope")
	ErrDuplicateEdge  = errors.New("dependency already exists for this task pair")
	ErrEdgeNotFound   = errors.New("dependency not found")

	// Descriptor errors
	ErrMalformedDescriptor = errors.New("malformed dependency descriptor")

	// Propagation errors
	ErrUnexpectedCycle = errors.New("unexpected cycle during schedule traversal")

	// Lookup errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrScopeNotFound = errors.New("scheduling scope not found")
	ErrScopeExists   = errors.New("scheduling scope already exists")
	ErrInvalidTask   = errors.New("invalid task")
)

// codes maps sentinels to the wire codes surfaced to callers.
var codes = []struct {
	err  error
	code string
}{
	{ErrCycleDetected, "CycleDetected"},
	{ErrCrossScopeEdge, "CrossScopeEdge"},
	{ErrDuplicateEdge, "DuplicateEdge"},
	{ErrEdgeNotFound, "EdgeNotFound"},
	{ErrMalformedDescriptor, "MalformedDescriptor"},
	{ErrUnexpectedCycle, "UnexpectedCycle"},
	{ErrTaskNotFound, "TaskNotFound"},
	{ErrScopeNotFound, "ScopeNotFound"},
	{ErrScopeExists, "ScopeExists"},
	{ErrInvalidTask, "InvalidTask"},
}

// ErrorCode returns the wire code for err, or "" when err matches no sentinel.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
