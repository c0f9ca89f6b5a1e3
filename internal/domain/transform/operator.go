package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syncline/backend/internal/domain/shared"
)

// OperatorKind tags the transform operator variants. Dispatch goes through
// a single Apply function; each variant's parameters are validated against
// a fixed schema, so no reflection is involved.
type OperatorKind string

const (
	OpUppercase    OperatorKind = "uppercase"
	OpLowercase    OperatorKind = "lowercase"
	OpTitlecase    OperatorKind = "titlecase"
	OpTrim         OperatorKind = "trim"
	OpRegexReplace OperatorKind = "regex_replace"
	OpSubstring    OperatorKind = "substring"
	OpConcat       OperatorKind = "concat"
	OpArithmetic   OperatorKind = "arithmetic"
	OpRound        OperatorKind = "round"
	OpDateFormat   OperatorKind = "date_format"
	OpDateShift    OperatorKind = "date_shift"
	OpDateParse    OperatorKind = "date_parse"
	OpDefault      OperatorKind = "default"
	OpLookup       OperatorKind = "lookup"
)

// Generative reports whether the operator can produce a value without a
// source field (concat reads its own field list, default substitutes).
func (k OperatorKind) Generative() bool {
	return k == OpConcat || k == OpDefault
}

// Operator is one tagged transform variant with its parameters
type Operator struct {
	Kind   OperatorKind   `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// operatorSchema lists required and optional parameter names per kind
var operatorSchema = map[OperatorKind]struct {
	required []string
	optional []string
}{
	OpUppercase:    {},
	OpLowercase:    {},
	OpTitlecase:    {},
	OpTrim:         {},
	OpRegexReplace: {required: []string{"pattern", "replacement"}},
	OpSubstring:    {required: []string{"start"}, optional: []string{"length"}},
	OpConcat:       {required: []string{"fields"}, optional: []string{"separator"}},
	OpArithmetic:   {required: []string{"operation", "operand"}},
	OpRound:        {optional: []string{"places"}},
	OpDateFormat:   {required: []string{"layout"}},
	OpDateShift:    {required: []string{"days"}},
	OpDateParse:    {required: []string{"layout"}},
	OpDefault:      {required: []string{"value"}},
	OpLookup:       {required: []string{"table"}, optional: []string{"fallback"}},
}

// Validate checks the operator's parameters against its schema
func (o *Operator) Validate() error {
	schema, ok := operatorSchema[o.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidMapping, o.Kind)
	}
	for _, name := range schema.required {
		if _, ok := o.Params[name]; !ok {
			return fmt.Errorf("%w: operator %q missing parameter %q", ErrInvalidMapping, o.Kind, name)
		}
	}
	if o.Kind == OpRegexReplace {
		if _, err := regexp.Compile(paramString(o.Params, "pattern")); err != nil {
			return fmt.Errorf("%w: operator regex_replace: %v", ErrInvalidMapping, err)
		}
	}
	if o.Kind == OpArithmetic {
		op := paramString(o.Params, "operation")
		switch op {
		case "add", "subtract", "multiply", "divide":
		default:
			return fmt.Errorf("%w: arithmetic operation %q", ErrInvalidMapping, op)
		}
	}
	return nil
}

// Apply evaluates the operator against a source value in the context of
// the full raw document (concat pulls additional fields from it).
func (o *Operator) Apply(value any, doc shared.Document) (any, error) {
	switch o.Kind {
	case OpUppercase:
		return strings.ToUpper(toString(value)), nil
	case OpLowercase:
		return strings.ToLower(toString(value)), nil
	case OpTitlecase:
		return cases.Title(language.Und).String(toString(value)), nil
	case OpTrim:
		return strings.TrimSpace(toString(value)), nil
	case OpRegexReplace:
		re, err := regexp.Compile(paramString(o.Params, "pattern"))
		if err != nil {
			return nil, err
		}
		return re.ReplaceAllString(toString(value), paramString(o.Params, "replacement")), nil
	case OpSubstring:
		return applySubstring(toString(value), o.Params)
	case OpConcat:
		return applyConcat(doc, o.Params)
	case OpArithmetic:
		return applyArithmetic(value, o.Params)
	case OpRound:
		return applyRound(value, o.Params)
	case OpDateFormat:
		return applyDateFormat(value, o.Params)
	case OpDateShift:
		return applyDateShift(value, o.Params)
	case OpDateParse:
		return applyDateParse(value, o.Params)
	case OpDefault:
		if value == nil || toString(value) == "" {
			return o.Params["value"], nil
		}
		return value, nil
	case OpLookup:
		return applyLookup(value, o.Params)
	default:
		return nil, fmt.Errorf("unknown operator %q", o.Kind)
	}
}

func applySubstring(s string, params map[string]any) (any, error) {
	start := paramInt(params, "start", 0)
	runes := []rune(s)
	if start < 0 || start > len(runes) {
		return "", fmt.Errorf("substring start %d out of range", start)
	}
	end := len(runes)
	if length, ok := params["length"]; ok {
		n := toInt(length, end-start)
		if start+n < end {
			end = start + n
		}
	}
	return string(runes[start:end]), nil
}

func applyConcat(doc shared.Document, params map[string]any) (any, error) {
	rawFields, ok := params["fields"].([]any)
	if !ok {
		if strs, ok := params["fields"].([]string); ok {
			rawFields = make([]any, len(strs))
			for i, s := range strs {
				rawFields[i] = s
			}
		} else {
			return nil, fmt.Errorf("concat fields must be a list")
		}
	}
	sep := paramString(params, "separator")
	parts := make([]string, 0, len(rawFields))
	for _, f := range rawFields {
		parts = append(parts, toString(doc[toString(f)]))
	}
	return strings.Join(parts, sep), nil
}

func applyArithmetic(value any, params map[string]any) (any, error) {
	d, err := toDecimal(value)
	if err != nil {
		return nil, err
	}
	operand, err := toDecimal(params["operand"])
	if err != nil {
		return nil, err
	}
	var out decimal.Decimal
	switch paramString(params, "operation") {
	case "add":
		out = d.Add(operand)
	case "subtract":
		out = d.Sub(operand)
	case "multiply":
		out = d.Mul(operand)
	case "divide":
		if operand.IsZero() {
			return nil, fmt.Errorf("arithmetic divide by zero")
		}
		out = d.Div(operand)
	default:
		return nil, fmt.Errorf("arithmetic operation %q", paramString(params, "operation"))
	}
	f, _ := out.Float64()
	return f, nil
}

func applyRound(value any, params map[string]any) (any, error) {
	d, err := toDecimal(value)
	if err != nil {
		return nil, err
	}
	places := paramInt(params, "places", 0)
	f, _ := d.Round(int32(places)).Float64()
	return f, nil
}

func applyDateFormat(value any, params map[string]any) (any, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, err
	}
	return t.Format(paramString(params, "layout")), nil
}

func applyDateShift(value any, params map[string]any) (any, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, err
	}
	days := paramInt(params, "days", 0)
	return t.AddDate(0, 0, days).Format(time.RFC3339), nil
}

func applyDateParse(value any, params map[string]any) (any, error) {
	t, err := time.Parse(paramString(params, "layout"), toString(value))
	if err != nil {
		return nil, err
	}
	return t.Format(time.RFC3339), nil
}

func applyLookup(value any, params map[string]any) (any, error) {
	table, ok := params["table"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("lookup table must be an object")
	}
	if mapped, ok := table[toString(value)]; ok {
		return mapped, nil
	}
	if fallback, ok := params["fallback"]; ok {
		return fallback, nil
	}
	return value, nil
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return fallback
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Decimal{}, fmt.Errorf("numeric value is nil")
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		return decimal.NewFromString(n)
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("value %v is not numeric", v)
	}
}

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range parseLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", t)
	default:
		return time.Time{}, fmt.Errorf("value %v is not a date", v)
	}
}

func paramString(params map[string]any, name string) string {
	if v, ok := params[name]; ok {
		return toString(v)
	}
	return ""
}

func paramInt(params map[string]any, name string, fallback int) int {
	if v, ok := params[name]; ok {
		return toInt(v, fallback)
	}
	return fallback
}
