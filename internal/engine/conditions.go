package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/seanmorton/conveyor/internal/conveyor"
)

// Evaluate evaluates a guard expression against workflow variables. An
// empty expression always passes.
// Example: `amount > 100 && region == "eu"` where both names are
// workflow variables.
func Evaluate(expression string, vars conveyor.Variables) (bool, error) {
	if expression == "" {
		return true, nil
	}

	env := vars.Env()
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}

	return isTruthy(result), nil
}

// isTruthy converts an expression result to a boolean.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	}
	return true
}
