// Package codec translates compact dependency descriptors to and from
// structured edges.
//
// A descriptor is what a task stores inline for each predecessor:
//
//	3                            legacy bare id, FS with no lag
//	"2FS+3"                      compact string
//	{"id": 2, "type": "SS", "lag": -1}
//
// Every other package goes through Decode; nothing else branches on the
// payload's shape.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tutu-network/cascade/internal/domain"
)

// Descriptor is a decoded predecessor reference. The successor is implied
// by the task that holds it.
type Descriptor struct {
	PredecessorID domain.TaskID
	Type          domain.DepType
	LagDays       int
	// UnknownType holds the raw type string when it was not recognized
	// and FS was assumed.
	UnknownType string
}

// Edge attaches the descriptor to its successor.
func (d Descriptor) Edge(successor domain.TaskID) domain.Edge {
	return domain.Edge{
		PredecessorID: d.PredecessorID,
		SuccessorID:   successor,
		Type:          d.Type,
		LagDays:       d.LagDays,
	}
}

// EdgeAsWritten is Edge with an unrecognized type kept verbatim instead
// of FS, for callers that report the fallback themselves.
func (d Descriptor) EdgeAsWritten(successor domain.TaskID) domain.Edge {
	e := d.Edge(successor)
	if d.UnknownType != "" {
		e.Type = domain.DepType(d.UnknownType)
	}
	return e
}

var (
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
	compactPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.:-]*?)(FS|SS|FF|SF)([+-]\d+)?$`)
)

// Decode normalizes any descriptor shape produced by encoding/json (with
// UseNumber or not) or yaml.v3.
func Decode(raw any) (Descriptor, error) {
	switch v := raw.(type) {
	case nil:
		return Descriptor{}, fmt.Errorf("%w: empty descriptor", domain.ErrMalformedDescriptor)
	case string:
		return DecodeString(v)
	case map[string]any:
		return decodeMap(v)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
		return decodeMap(m)
	default:
		id, err := idFromValue(raw)
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{PredecessorID: id, Type: domain.FinishToStart}, nil
	}
}

// DecodeJSON decodes a single JSON descriptor.
func DecodeJSON(data []byte) (Descriptor, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", domain.ErrMalformedDescriptor, err)
	}
	return Decode(raw)
}

// DecodeString parses the compact text form ("2FS+3") or a bare id ("2").
func DecodeString(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Descriptor{}, fmt.Errorf("%w: empty descriptor", domain.ErrMalformedDescriptor)
	}
	if m := compactPattern.FindStringSubmatch(s); m != nil {
		d := Descriptor{PredecessorID: domain.TaskID(m[1])}
		d.Type, _ = domain.ParseDepType(m[2])
		if m[3] != "" {
			lag, err := strconv.Atoi(m[3])
			if err != nil {
				return Descriptor{}, fmt.Errorf("%w: lag %q", domain.ErrMalformedDescriptor, m[3])
			}
			d.LagDays = lag
		}
		return d, nil
	}
	if !idPattern.MatchString(s) {
		return Descriptor{}, fmt.Errorf("%w: %q", domain.ErrMalformedDescriptor, s)
	}
	return Descriptor{PredecessorID: domain.TaskID(s), Type: domain.FinishToStart}, nil
}

func decodeMap(m map[string]any) (Descriptor, error) {
	var rawID any
	for _, key := range []string{"id", "predecessor_id", "task_id"} {
		if v, ok := m[key]; ok {
			rawID = v
			break
		}
	}
	id, err := idFromValue(rawID)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{PredecessorID: id, Type: domain.FinishToStart}
	if rawType, ok := m["type"]; ok && rawType != nil {
		s := strings.TrimSpace(fmt.Sprint(rawType))
		if s != "" {
			t, known := domain.ParseDepType(s)
			d.Type = t
			if !known {
				d.UnknownType = s
			}
		}
	}
	if rawLag, ok := m["lag"]; ok && rawLag != nil {
		lag, err := intFromValue(rawLag)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: lag: %v", domain.ErrMalformedDescriptor, err)
		}
		d.LagDays = lag
	}
	return d, nil
}

// idFromValue accepts integers, integral floats, json.Number and any
// non-blank string. Id-shaped strings are trimmed; any other id is kept
// verbatim.
func idFromValue(v any) (domain.TaskID, error) {
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: missing id", domain.ErrMalformedDescriptor)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", fmt.Errorf("%w: blank id", domain.ErrMalformedDescriptor)
		}
		if idPattern.MatchString(s) {
			return domain.TaskID(s), nil
		}
		return domain.TaskID(x), nil
	case json.Number:
		return idFromValue(x.String())
	default:
		n, err := intFromValue(v)
		if err != nil {
			return "", fmt.Errorf("%w: id %v", domain.ErrMalformedDescriptor, v)
		}
		return domain.TaskID(strconv.Itoa(n)), nil
	}
}

func intFromValue(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float32:
		return intFromFloat(float64(x))
	case float64:
		return intFromFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return intFromFloat(f)
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}

func intFromFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("non-integral number %v", f)
	}
	return int(f), nil
}

// Encode renders the structured compact form: "3FS", "2FS+3", "4SS-2".
// Ids outside [A-Za-z0-9_.:-] do not survive it; use EncodeValue when the
// result must decode back.
func Encode(e domain.Edge) string {
	t := e.Type
	if !t.Valid() {
		t = domain.FinishToStart
	}
	return string(e.PredecessorID) + string(t) + lagSuffix(e.LagDays)
}

// EncodeValue returns the compact string when it decodes back to e, and
// the map form {"id", "type", "lag"} otherwise. Decode inverts it for
// every edge with a non-blank predecessor id.
func EncodeValue(e domain.Edge) any {
	s := Encode(e)
	if d, err := DecodeString(s); err == nil && d.Edge(e.SuccessorID) == e {
		return s
	}
	m := map[string]any{"id": string(e.PredecessorID), "type": string(e.Type)}
	if e.LagDays != 0 {
		m["lag"] = e.LagDays
	}
	return m
}

func lagSuffix(lag int) string {
	switch {
	case lag > 0:
		return "+" + strconv.Itoa(lag)
	case lag < 0:
		return strconv.Itoa(lag)
	}
	return ""
}

// DecodeAll decodes a task's inline predecessor list. Malformed entries
// are skipped with a warning; the rest of the list still loads.
func DecodeAll(successor domain.TaskID, raws []any) ([]domain.Edge, []domain.Warning) {
	var (
		edges    []domain.Edge
		warnings []domain.Warning
		seen     = make(map[domain.TaskID]bool, len(raws))
	)
	for i, raw := range raws {
		d, err := Decode(raw)
		if err != nil {
			warnings = append(warnings, domain.Warning{
				Kind:    domain.WarnMalformedDescriptor,
				TaskID:  successor,
				Message: fmt.Sprintf("predecessor #%d skipped: %v", i, err),
			})
			continue
		}
		if d.UnknownType != "" {
			warnings = append(warnings, domain.Warning{
				Kind:    domain.WarnUnknownDepType,
				TaskID:  successor,
				Message: fmt.Sprintf("predecessor %s: unknown type %q, assuming FS", d.PredecessorID, d.UnknownType),
			})
		}
		if seen[d.PredecessorID] {
			warnings = append(warnings, domain.Warning{
				Kind:    domain.WarnDuplicateDescriptor,
				TaskID:  successor,
				Message: fmt.Sprintf("predecessor %s listed twice, keeping the first", d.PredecessorID),
			})
			continue
		}
		seen[d.PredecessorID] = true
		edges = append(edges, d.Edge(successor))
	}
	return edges, warnings
}

// DecodeAllJSON is DecodeAll over a JSON array column. An unreadable array
// yields a single warning and no edges.
func DecodeAllJSON(successor domain.TaskID, data []byte) ([]domain.Edge, []domain.Warning) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raws []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raws); err != nil {
		return nil, []domain.Warning{{
			Kind:    domain.WarnMalformedDescriptor,
			TaskID:  successor,
			Message: fmt.Sprintf("predecessor list unreadable: %v", err),
		}}
	}
	return DecodeAll(successor, raws)
}

// EncodeAll renders a successor's incoming edges as a JSON array of
// structured descriptors, the inverse of DecodeAllJSON.
func EncodeAll(edges []domain.Edge) ([]byte, error) {
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		m := map[string]any{"id": string(e.PredecessorID), "type": string(e.Type)}
		if e.LagDays != 0 {
			m["lag"] = e.LagDays
		}
		out = append(out, m)
	}
	return json.Marshal(out)
}
