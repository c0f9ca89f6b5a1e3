package ingestion

import (
	"fmt"
	"sort"

	"github.com/syncline/backend/internal/domain/shared"
)

// fingerprintSampleSize is how many records of a batch are inspected when
// building the schema fingerprint
const fingerprintSampleSize = 100

// driftNewFieldThreshold is the number of previously unseen fields above
// which a drift alert is raised even when no field went missing
const driftNewFieldThreshold = 3

// FieldType is the inferred type of one source field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBool    FieldType = "bool"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
	FieldTypeNull    FieldType = "null"
	FieldTypeUnknown FieldType = "unknown"
)

// SchemaFingerprint captures the field names and inferred types sampled
// from a batch. Compared across batches of the same endpoint to detect
// schema drift in the source system.
type SchemaFingerprint struct {
	Fields     map[string]FieldType `json:"fields"`
	SampleSize int                  `json:"sample_size"`
}

// FingerprintSample builds a schema fingerprint from a sample of documents
func FingerprintSample(docs []shared.Document) *SchemaFingerprint {
	if len(docs) > fingerprintSampleSize {
		docs = docs[:fingerprintSampleSize]
	}
	fields := make(map[string]FieldType)
	for _, doc := range docs {
		for name, value := range doc {
			inferred := inferType(value)
			existing, seen := fields[name]
			if !seen || existing == FieldTypeNull {
				fields[name] = inferred
			}
		}
	}
	return &SchemaFingerprint{Fields: fields, SampleSize: len(docs)}
}

// Drift compares a previous fingerprint against this one and describes any
// material difference. The empty string means no drift.
func (f *SchemaFingerprint) Drift(previous *SchemaFingerprint) string {
	if previous == nil || len(previous.Fields) == 0 {
		return ""
	}

	var missing, added []string
	for name := range previous.Fields {
		if _, ok := f.Fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range f.Fields {
		if _, ok := previous.Fields[name]; !ok {
			added = append(added, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(added)

	switch {
	case len(missing) > 0:
		return fmt.Sprintf("fields missing from source schema: %v (new fields: %v)", missing, added)
	case len(added) > driftNewFieldThreshold:
		return fmt.Sprintf("source schema gained %d new fields: %v", len(added), added)
	default:
		return ""
	}
}

func inferType(value any) FieldType {
	switch value.(type) {
	case nil:
		return FieldTypeNull
	case string:
		return FieldTypeString
	case float64, float32, int, int32, int64:
		return FieldTypeNumber
	case bool:
		return FieldTypeBool
	case map[string]any, shared.Document:
		return FieldTypeObject
	case []any:
		return FieldTypeArray
	default:
		return FieldTypeUnknown
	}
}
