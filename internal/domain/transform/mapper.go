package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syncline/backend/internal/domain/shared"
)

// MappedRecord is the outcome of applying a ruleset to one raw document:
// the full merged destination document plus the subset of fields promoted
// to scalar mirror columns.
type MappedRecord struct {
	Document shared.Document
	Promoted map[string]any
}

// ApplyMappings runs the ruleset's ordered field mappings over a raw
// document. A failing mapping fails the whole record; the caller collects
// the error and moves on to the next record.
func ApplyMappings(rs *RuleSet, raw shared.Document) (*MappedRecord, error) {
	out := &MappedRecord{
		Document: shared.Document{},
		Promoted: map[string]any{},
	}
	for i := range rs.Mappings {
		m := &rs.Mappings[i]
		value := LookupPath(raw, m.SourceField)
		if m.Operator != nil {
			applied, err := m.Operator.Apply(value, raw)
			if err != nil {
				return nil, fmt.Errorf("mapping %s -> %s: %w", m.SourceField, m.DestField, err)
			}
			value = applied
		}
		coerced, err := Coerce(value, m.DataType)
		if err != nil {
			return nil, fmt.Errorf("mapping %s -> %s: %w", m.SourceField, m.DestField, err)
		}
		out.Document[m.DestField] = coerced
		if m.Promote {
			out.Promoted[m.DestField] = coerced
		}
	}
	return out, nil
}

// Coerce converts a mapped value to the mapping's target data type.
// DataTypeUnknown leaves the value untouched; nil passes through.
func Coerce(value any, dt DataType) (any, error) {
	if value == nil || dt == DataTypeUnknown {
		return value, nil
	}
	switch dt {
	case DataTypeString:
		return toString(value), nil
	case DataTypeNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to number", n)
			}
			return f, nil
		case bool:
			if n {
				return float64(1), nil
			}
			return float64(0), nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to number", value)
		}
	case DataTypeBool:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(b)))
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to bool", b)
			}
			return parsed, nil
		case float64:
			return b != 0, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to bool", value)
		}
	case DataTypeDate:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	default:
		return nil, fmt.Errorf("unknown data type %q", dt)
	}
}

// LookupPath resolves a dot-separated field path against a document.
// Missing segments yield nil.
func LookupPath(doc shared.Document, path string) any {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var current any = map[string]any(doc)
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			if d, ok := current.(shared.Document); ok {
				m = map[string]any(d)
			} else {
				return nil
			}
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}
