package codec

import (
	"fmt"

	"github.com/tutu-network/cascade/internal/domain"
)

// NameLookup resolves a task id to its display name.
type NameLookup func(id domain.TaskID) (string, bool)

// MapLookup adapts a plain id→name map to a NameLookup.
func MapLookup(names map[domain.TaskID]string) NameLookup {
	return func(id domain.TaskID) (string, bool) {
		name, ok := names[id]
		return name, ok && name != ""
	}
}

// Format renders an edge for people: "Excavation (FS+3)". An unresolved
// predecessor falls back to "Task <id> (FS)".
func Format(e domain.Edge, lookup NameLookup) string {
	name := ""
	if lookup != nil {
		if n, ok := lookup(e.PredecessorID); ok {
			name = n
		}
	}
	if name == "" {
		name = "Task " + string(e.PredecessorID)
	}
	t := e.Type
	if !t.Valid() {
		t = domain.FinishToStart
	}
	return fmt.Sprintf("%s (%s%s)", name, t, lagSuffix(e.LagDays))
}
