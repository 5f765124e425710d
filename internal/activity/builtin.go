// Package activity provides a small set of host-level activity
// executors honoring the engine's result protocol. Hosts register the
// ones they need; domain-specific activities implement engine.Executor
// directly.
package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/engine"
)

// RegisterBuiltins registers every built-in executor on the engine,
// writing console output to w (os.Stdout when nil).
func RegisterBuiltins(e *engine.Engine, w io.Writer) {
	e.Register(SetVariable{})
	e.Register(IfElse{})
	e.Register(Fork{})
	e.Register(Notify{})
	e.Register(NewWriteLine(w))
	e.Register(Receive{})
}

// SetVariable writes the "name" property's variable with the "value"
// property, then continues.
type SetVariable struct{}

func (SetVariable) Type() string { return "setVariable" }

func (SetVariable) Execute(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	name := actx.StringProp("name")
	if name == "" {
		return engine.Result{}, fmt.Errorf("setVariable %s: missing name property", actx.Activity.ID)
	}
	return engine.Output(name, conveyor.FromAny(actx.Prop("value"))), nil
}

// IfElse evaluates the "condition" property against the instance
// variables and continues along the "true" or "false" outcome.
type IfElse struct{}

func (IfElse) Type() string { return "ifElse" }

func (IfElse) Execute(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	cond := actx.StringProp("condition")
	pass, err := engine.Evaluate(cond, actx.Instance.Variables)
	if err != nil {
		return engine.Result{}, err
	}
	if pass {
		return engine.ContinueOutcome("true"), nil
	}
	return engine.ContinueOutcome("false"), nil
}

// Fork continues along every outbound connection, splitting execution
// into parallel branches. It exists to make the split visible in the
// graph; any activity with multiple outbound connections forks too.
type Fork struct{}

func (Fork) Type() string { return "fork" }

func (Fork) Execute(_ context.Context, _ *engine.ActivityContext) (engine.Result, error) {
	return engine.Continue(), nil
}

// WriteLine prints the "text" property to its writer and continues.
type WriteLine struct {
	w io.Writer
}

func NewWriteLine(w io.Writer) WriteLine {
	if w == nil {
		w = os.Stdout
	}
	return WriteLine{w: w}
}

func (WriteLine) Type() string { return "writeLine" }

func (a WriteLine) Execute(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	fmt.Fprintln(a.w, actx.StringProp("text"))
	return engine.Continue(), nil
}

// Notify records the "text" property in the host log. Its side effect
// is complete before it returns, so it reports Noop.
type Notify struct{}

func (Notify) Type() string { return "notify" }

func (Notify) Execute(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	slog.Info("workflow notification",
		"instance", actx.Instance.ID,
		"activity", actx.Activity.ID,
		"text", actx.StringProp("text"))
	return engine.Noop(), nil
}

// Receive blocks awaiting external input. On resume it reads the input
// variable named by the "from" property (default "input"), saves it
// under the "saveAs" property (default the activity id), and continues.
type Receive struct{}

func (Receive) Type() string { return "receive" }

func (Receive) Execute(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	if !actx.Resuming {
		return engine.Block(), nil
	}

	from := actx.StringProp("from")
	if from == "" {
		from = "input"
	}
	saveAs := actx.StringProp("saveAs")
	if saveAs == "" {
		saveAs = actx.Activity.ID
	}

	v, ok := actx.Input[from]
	if !ok {
		v = conveyor.Null()
	}
	return engine.Output(saveAs, v), nil
}
