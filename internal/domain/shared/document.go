package shared

import (
	"encoding/json"
	"reflect"
	"time"
)

// Document is an arbitrary nested key/value payload as exchanged with the
// source system. Stored as JSONB.
type Document map[string]any

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		// A document that round-tripped through JSON once cannot fail here;
		// fall back to a shallow copy for safety.
		out := make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		out = make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
	}
	return out
}

// Overlay returns a copy of the document with the delta's fields written
// over it. Delta values win on overlapping keys.
func (d Document) Overlay(delta Document) Document {
	merged := d.Clone()
	if merged == nil {
		merged = Document{}
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}

// Keys returns the document's top-level field names
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}

// timeLayouts are the formats accepted when comparing date-like values
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValuesEqual reports deep equality between two document values.
// Numbers are compared by value regardless of Go type, date-like strings
// and time.Time compare as instants, and nested maps/slices compare
// element-wise.
func ValuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Equal(bt)
		}
	}

	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
	}

	am, aIsMap := asDocument(a)
	bm, bIsMap := asDocument(b)
	if aIsMap && bIsMap {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !ValuesEqual(av, bv) {
				return false
			}
		}
		return true
	}

	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice && bIsSlice {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !ValuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// ChangedFields returns the top-level field names whose values differ
// between the two documents, including fields present on only one side.
func ChangedFields(before, after Document) []string {
	changed := make([]string, 0)
	seen := make(map[string]struct{}, len(before))
	for k, bv := range before {
		seen[k] = struct{}{}
		av, ok := after[k]
		if !ok || !ValuesEqual(bv, av) {
			changed = append(changed, k)
		}
	}
	for k := range after {
		if _, ok := seen[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}

// Intersect returns the elements present in both string sets, preserving
// the order of the first argument.
func Intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0)
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return parseTime(t)
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}
