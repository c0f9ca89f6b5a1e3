package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/syncline/backend/internal/domain/shared"
)

// The promotion rule is a small, side-effect-free boolean expression over
// the raw document, e.g.
//
//	status == 'active' and (amount > 100 or region contains 'EU')
//
// Supported: comparisons (==, !=, >, >=, <, <=, contains), logical
// and/or/not, parentheses, dot paths into nested fields, string, number,
// bool and null literals. An empty rule promotes everything, and any
// evaluation failure is treated by the caller as "promote" so data is
// never silently dropped.

// EvaluatePromotionRule evaluates a rule against a raw document. An empty
// rule promotes.
func EvaluatePromotionRule(rule string, doc shared.Document) (bool, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return true, nil
	}
	p := &predicateParser{tokens: tokenize(rule)}
	result, err := p.parseOr(doc)
	if err != nil {
		return false, err
	}
	if !p.atEnd() {
		return false, fmt.Errorf("unexpected token %q", p.peek())
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Tokenizer
// ---------------------------------------------------------------------------

func tokenize(input string) []string {
	var tokens []string
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			// Keep the opening quote as the string marker; unterminated
			// strings fail at evaluation.
			tokens = append(tokens, string(runes[i:minInt(j+1, len(runes))]))
			i = j + 1
		case strings.ContainsRune("=!<>", r):
			j := i + 1
			if j < len(runes) && runes[j] == '=' {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune("()=!<>'\"", runes[j]) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		}
	}
	return tokens
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Recursive-descent parser / evaluator
// ---------------------------------------------------------------------------

type predicateParser struct {
	tokens []string
	pos    int
}

func (p *predicateParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *predicateParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *predicateParser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *predicateParser) parseOr(doc shared.Document) (bool, error) {
	left, err := p.parseAnd(doc)
	if err != nil {
		return false, err
	}
	for {
		tok := strings.ToLower(p.peek())
		if tok != "or" && tok != "||" {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd(doc)
		if err != nil {
			return false, err
		}
		left = left || right
	}
}

func (p *predicateParser) parseAnd(doc shared.Document) (bool, error) {
	left, err := p.parseNot(doc)
	if err != nil {
		return false, err
	}
	for {
		tok := strings.ToLower(p.peek())
		if tok != "and" && tok != "&&" {
			return left, nil
		}
		p.next()
		right, err := p.parseNot(doc)
		if err != nil {
			return false, err
		}
		left = left && right
	}
}

func (p *predicateParser) parseNot(doc shared.Document) (bool, error) {
	tok := strings.ToLower(p.peek())
	if tok == "not" || tok == "!" {
		p.next()
		inner, err := p.parseNot(doc)
		if err != nil {
			return false, err
		}
		return !inner, nil
	}
	return p.parsePrimary(doc)
}

func (p *predicateParser) parsePrimary(doc shared.Document) (bool, error) {
	if p.peek() == "(" {
		p.next()
		inner, err := p.parseOr(doc)
		if err != nil {
			return false, err
		}
		if p.next() != ")" {
			return false, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	}
	return p.parseComparison(doc)
}

func (p *predicateParser) parseComparison(doc shared.Document) (bool, error) {
	left, err := p.parseOperand(doc)
	if err != nil {
		return false, err
	}

	op := strings.ToLower(p.peek())
	switch op {
	case "==", "=", "!=", ">", ">=", "<", "<=", "contains":
		p.next()
	default:
		// Bare operand: truthiness of the field value
		return truthy(left), nil
	}

	right, err := p.parseOperand(doc)
	if err != nil {
		return false, err
	}
	return compare(left, op, right)
}

func (p *predicateParser) parseOperand(doc shared.Document) (any, error) {
	tok := p.next()
	if tok == "" {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if tok[0] == '\'' || tok[0] == '"' {
		if len(tok) < 2 || tok[len(tok)-1] != tok[0] {
			return nil, fmt.Errorf("unterminated string %s", tok)
		}
		return tok[1 : len(tok)-1], nil
	}
	switch strings.ToLower(tok) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return LookupPath(doc, tok), nil
}

func compare(left any, op string, right any) (bool, error) {
	switch op {
	case "==", "=":
		return shared.ValuesEqual(left, right), nil
	case "!=":
		return !shared.ValuesEqual(left, right), nil
	case "contains":
		return strings.Contains(toString(left), toString(right)), nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return false, fmt.Errorf("cannot order %v %s %v", left, op, right)
	}
	switch op {
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
