package engine

import (
	"testing"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

func TestEvaluateEmptyExpressionPasses(t *testing.T) {
	pass, err := Evaluate("", nil)
	if err != nil || !pass {
		t.Errorf("Evaluate(\"\") = %v, %v, want true, nil", pass, err)
	}
}

func TestEvaluateComparisons(t *testing.T) {
	vars := conveyor.Variables{
		"amount": conveyor.Number(150),
		"region": conveyor.String("eu"),
	}

	pass, err := Evaluate(`amount > 100 && region == "eu"`, vars)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !pass {
		t.Error("expected condition to pass")
	}

	pass, err = Evaluate(`amount > 200`, vars)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if pass {
		t.Error("expected condition to fail")
	}
}

func TestEvaluateUndefinedVariable(t *testing.T) {
	// Undefined names resolve to nil, which is falsy.
	pass, err := Evaluate("missing", conveyor.Variables{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if pass {
		t.Error("undefined variable should be falsy")
	}
}

func TestEvaluateTruthiness(t *testing.T) {
	vars := conveyor.Variables{"name": conveyor.String("x"), "zero": conveyor.Number(0)}

	if pass, _ := Evaluate("name", vars); !pass {
		t.Error("non-empty string should be truthy")
	}
	if pass, _ := Evaluate("zero", vars); pass {
		t.Error("zero should be falsy")
	}
}

func TestEvaluateBadExpression(t *testing.T) {
	if _, err := Evaluate("&&& nonsense !", nil); err == nil {
		t.Error("expected compile error")
	}
}
