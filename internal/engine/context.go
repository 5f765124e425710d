package engine

import (
	"context"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// ActivityContext carries everything an executor may inspect while
// executing one activity: the instance, the activity's definition row,
// the owning workflow definition, and the input supplied to the current
// run or resume call.
type ActivityContext struct {
	Instance *conveyor.WorkflowInstance
	Activity *conveyor.ActivityDefinition
	Workflow *conveyor.WorkflowDefinitionVersion

	// Input holds the variables supplied to the current run/resume
	// call. The engine has already merged them into the instance
	// variables before any activity executes.
	Input conveyor.Variables

	// Resuming is true when this activity previously blocked and is
	// being re-entered with external input.
	Resuming bool
}

// Prop returns a raw activity property, or nil.
func (c *ActivityContext) Prop(name string) any {
	if c.Activity == nil || c.Activity.Properties == nil {
		return nil
	}
	return c.Activity.Properties[name]
}

// StringProp returns a string activity property, or "".
func (c *ActivityContext) StringProp(name string) string {
	s, _ := c.Prop(name).(string)
	return s
}

// Variable returns the named instance variable, or Null.
func (c *ActivityContext) Variable(name string) conveyor.Value {
	if v, ok := c.Instance.Variables[name]; ok {
		return v
	}
	return conveyor.Null()
}

// Executor runs activities of one type. The engine invokes Execute once
// per graph visit and applies the returned result; a non-nil error is
// recorded as a fault for that activity.
type Executor interface {
	Type() string
	Execute(ctx context.Context, actx *ActivityContext) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc struct {
	Kind string
	Fn   func(ctx context.Context, actx *ActivityContext) (Result, error)
}

func (e ExecutorFunc) Type() string { return e.Kind }

func (e ExecutorFunc) Execute(ctx context.Context, actx *ActivityContext) (Result, error) {
	return e.Fn(ctx, actx)
}
