package expr_test

import (
	"testing"

	"github.com/stepflow/stepflow/expr"
)

func TestParse_Outcomes(t *testing.T) {
	for _, cond := range []string{"success", "error", "timeout"} {
		e, err := expr.Parse(cond)
		if err != nil {
			t.Fatalf("Parse(%q): %v", cond, err)
		}
		if !e.Eval(expr.Outcome(cond), nil) {
			t.Errorf("%q should match its own outcome", cond)
		}
		if e.Eval(expr.OutcomeSuccess, nil) && cond != "success" {
			t.Errorf("%q should not match success", cond)
		}
	}
}

func TestParse_AlwaysForms(t *testing.T) {
	for _, cond := range []string{"", "always", "  always  "} {
		e, err := expr.Parse(cond)
		if err != nil {
			t.Fatalf("Parse(%q): %v", cond, err)
		}
		if !e.Eval(expr.OutcomeSuccess, nil) {
			t.Errorf("Parse(%q) should be constant-true", cond)
		}
	}
}

func TestParse_NumberComparisons(t *testing.T) {
	input := map[string]any{"amount": 1500.0, "count": 3}

	tests := []struct {
		cond string
		want bool
	}{
		{"amount > 1000", true},
		{"amount > 2000", false},
		{"amount >= 1500", true},
		{"amount < 1500", false},
		{"amount <= 1500", true},
		{"amount == 1500", true},
		{"amount != 1500", false},
		{"count > 2", true},
	}
	for _, tt := range tests {
		e, err := expr.Parse(tt.cond)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.cond, err)
		}
		if got := e.Eval(expr.OutcomeSuccess, input); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}

func TestParse_StringComparisons(t *testing.T) {
	input := map[string]any{"status": "approved", "tier": "gold"}

	tests := []struct {
		cond string
		want bool
	}{
		{`status == 'approved'`, true},
		{`status == "rejected"`, false},
		{`status != rejected`, true},
		{`tier == gold`, true},
	}
	for _, tt := range tests {
		e, err := expr.Parse(tt.cond)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.cond, err)
		}
		if got := e.Eval(expr.OutcomeSuccess, input); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}

func TestParse_BoolComparisons(t *testing.T) {
	input := map[string]any{"approved": true}

	e, err := expr.Parse("approved == true")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !e.Eval(expr.OutcomeSuccess, input) {
		t.Error("approved == true should hold")
	}

	if _, err := expr.Parse("approved > true"); err == nil {
		t.Error("ordering operator on a boolean should fail to parse")
	}
}

func TestParse_DottedPath(t *testing.T) {
	input := map[string]any{
		"order": map[string]any{"total": 250.0},
	}
	e, err := expr.Parse("order.total > 100")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !e.Eval(expr.OutcomeSuccess, input) {
		t.Error("order.total > 100 should hold")
	}
}

func TestParse_MissingFieldIsFalse(t *testing.T) {
	e, err := expr.Parse("missing > 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e.Eval(expr.OutcomeSuccess, map[string]any{}) {
		t.Error("comparison on a missing field should be false")
	}
}

func TestParse_MalformedComparisons(t *testing.T) {
	for _, cond := range []string{"> 5", "amount >"} {
		if _, err := expr.Parse(cond); err == nil {
			t.Errorf("Parse(%q) should fail", cond)
		}
	}
}

func TestParse_UnknownStringIsTrue(t *testing.T) {
	e, err := expr.Parse("some legacy condition")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !e.Eval(expr.OutcomeSuccess, nil) {
		t.Error("operator-free strings compile to constant-true")
	}
}

func TestMustParse_FallsBackToAlways(t *testing.T) {
	e := expr.MustParse("amount >")
	if !e.Eval(expr.OutcomeSuccess, nil) {
		t.Error("MustParse should fall back to Always on error")
	}
}
