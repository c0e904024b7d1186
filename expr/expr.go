// Package expr implements the small condition language used by workflow
// transitions. Conditions are parsed once, at definition validation time,
// into an AST that is evaluated per step with no string parsing at run time.
//
// Supported forms:
//
//   - "success", "error", "timeout" — match the step outcome
//   - "always" or the empty string — always true
//   - "field OP literal" — compare an input field against a literal,
//     with OP one of >, >=, <, <=, ==, !=
//
// Any other string evaluates to the constant-true expression, preserving
// the permissive behavior definitions have historically relied on.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the result classification of a step execution, matched by
// the bare-word condition forms.
type Outcome string

// Step outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// Expr is a compiled condition expression.
type Expr interface {
	// Eval reports whether the condition holds for the given step outcome
	// and instance input.
	Eval(outcome Outcome, input map[string]any) bool

	// String returns the canonical source form of the expression.
	String() string
}

// comparison operators, two-character forms first so ">=" is not split
// into ">" and "=".
var operators = []string{">=", "<=", "==", "!=", ">", "<"}

// Always is the constant-true expression.
var Always Expr = alwaysExpr{}

type alwaysExpr struct{}

func (alwaysExpr) Eval(Outcome, map[string]any) bool { return true }
func (alwaysExpr) String() string                    { return "always" }

type outcomeExpr struct {
	want Outcome
}

func (e outcomeExpr) Eval(outcome Outcome, _ map[string]any) bool {
	return outcome == e.want
}

func (e outcomeExpr) String() string { return string(e.want) }

type comparisonExpr struct {
	field string
	op    string
	lit   literal
}

// literal is a parsed comparison operand: numeric, boolean, or string.
type literal struct {
	num     float64
	str     string
	boolean bool
	kind    litKind
}

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
)

func (e comparisonExpr) Eval(_ Outcome, input map[string]any) bool {
	val, ok := lookup(input, e.field)
	if !ok {
		return false
	}

	switch e.lit.kind {
	case litNumber:
		n, numOK := toNumber(val)
		if !numOK {
			return false
		}
		return compareNumbers(n, e.op, e.lit.num)
	case litBool:
		b, boolOK := val.(bool)
		if !boolOK {
			return false
		}
		switch e.op {
		case "==":
			return b == e.lit.boolean
		case "!=":
			return b != e.lit.boolean
		}
		return false
	default:
		s := fmt.Sprintf("%v", val)
		return compareStrings(s, e.op, e.lit.str)
	}
}

func (e comparisonExpr) String() string {
	switch e.lit.kind {
	case litNumber:
		return fmt.Sprintf("%s %s %s", e.field, e.op, strconv.FormatFloat(e.lit.num, 'f', -1, 64))
	case litBool:
		return fmt.Sprintf("%s %s %t", e.field, e.op, e.lit.boolean)
	default:
		return fmt.Sprintf("%s %s %q", e.field, e.op, e.lit.str)
	}
}

// Parse compiles a condition string into an Expr. Malformed comparisons
// (an operator with a missing side, or an unparseable literal) return an
// error; strings that contain no operator at all compile to Always.
func Parse(s string) (Expr, error) {
	s = strings.TrimSpace(s)

	switch Outcome(s) {
	case OutcomeSuccess, OutcomeError, OutcomeTimeout:
		return outcomeExpr{want: Outcome(s)}, nil
	}
	if s == "" || s == "always" {
		return Always, nil
	}

	for _, op := range operators {
		idx := strings.Index(s, op)
		if idx < 0 {
			continue
		}

		field := strings.TrimSpace(s[:idx])
		rhs := strings.TrimSpace(s[idx+len(op):])
		if field == "" {
			return nil, fmt.Errorf("expr: %q: missing field before %q", s, op)
		}
		if rhs == "" {
			return nil, fmt.Errorf("expr: %q: missing literal after %q", s, op)
		}

		lit, err := parseLiteral(rhs)
		if err != nil {
			return nil, fmt.Errorf("expr: %q: %w", s, err)
		}
		if lit.kind == litBool && op != "==" && op != "!=" {
			return nil, fmt.Errorf("expr: %q: operator %q not supported for booleans", s, op)
		}

		return comparisonExpr{field: field, op: op, lit: lit}, nil
	}

	// No operator: historically any unrecognized condition is true.
	return Always, nil
}

// MustParse is like Parse but falls back to Always on error. Used for
// lazy compilation paths where the validator has not run.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		return Always
	}
	return e
}

func parseLiteral(s string) (literal, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return literal{num: n, kind: litNumber}, nil
	}
	if s == "true" || s == "false" {
		return literal{boolean: s == "true", kind: litBool}, nil
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') {
		if s[len(s)-1] != s[0] {
			return literal{}, fmt.Errorf("unterminated string literal %s", s)
		}
		return literal{str: s[1 : len(s)-1], kind: litString}, nil
	}
	// Bare word: treat as a string literal.
	return literal{str: s, kind: litString}, nil
}

// lookup resolves a possibly dotted field path against the input map.
func lookup(input map[string]any, field string) (any, bool) {
	if input == nil {
		return nil, false
	}

	parts := strings.Split(field, ".")
	var cur any = input
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toNumber(v any) (float64, bool) {
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
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func compareNumbers(a float64, op string, b float64) bool {
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

func compareStrings(a, op, b string) bool {
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}
