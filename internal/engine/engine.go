// Package engine walks workflow activity graphs, applying activity
// results to mutate instance state, and exposes the run/resume entry
// points around which suspension is built.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// Engine executes workflow definitions. It holds no per-instance state
// beyond short-lived execution leases; everything durable lives on the
// WorkflowInstance the caller persists.
type Engine struct {
	executors map[string]Executor
	bus       *EventBus
	ids       conveyor.IDGenerator
	leases    sync.Map // instance id -> *sync.Mutex
}

// New creates an Engine publishing to bus. A nil bus disables events.
func New(ids conveyor.IDGenerator, bus *EventBus) *Engine {
	if ids == nil {
		ids = conveyor.UUIDGenerator{}
	}
	return &Engine{
		executors: make(map[string]Executor),
		bus:       bus,
		ids:       ids,
	}
}

// Register adds an activity executor. Later registrations of the same
// type replace earlier ones.
func (e *Engine) Register(exec Executor) {
	e.executors[exec.Type()] = exec
}

// RunOption configures a Run call.
type RunOption func(*conveyor.WorkflowInstance)

// WithCorrelationID groups the new instance under an external business
// key.
func WithCorrelationID(id string) RunOption {
	return func(inst *conveyor.WorkflowInstance) { inst.CorrelationID = id }
}

// Run creates a new instance of def, seeds its variables with input,
// and executes from the graph's start activities until every branch
// completes, blocks, or faults. The returned instance reflects the
// furthest state reached; the caller is responsible for persisting it.
func (e *Engine) Run(ctx context.Context, def *conveyor.WorkflowDefinitionVersion, input conveyor.Variables, opts ...RunOption) (*conveyor.WorkflowInstance, error) {
	if len(def.Activities) == 0 {
		return nil, fmt.Errorf("definition %s has no activities", def.DefinitionID)
	}

	inst := &conveyor.WorkflowInstance{
		ID:           e.ids.Generate(),
		DefinitionID: def.DefinitionID,
		Version:      def.Version,
		Status:       conveyor.StatusRunning,
		Variables:    conveyor.Variables{}.Merge(input),
		CreatedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(inst)
	}

	unlock, err := e.lease(inst.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e.publish(inst, "", EventInstanceStarted, map[string]any{"version": def.Version})
	e.execute(ctx, def, inst, def.StartActivities(), input, nil)
	return inst, nil
}

// Resume re-enters a blocked instance at exactly the named blocking
// activities, after writing input into its variables. Every ref must
// currently be blocking, otherwise conveyor.ErrInvalidResumeTarget is
// returned and the instance is untouched.
func (e *Engine) Resume(ctx context.Context, def *conveyor.WorkflowDefinitionVersion, inst *conveyor.WorkflowInstance, refs []string, input conveyor.Variables) (*conveyor.WorkflowInstance, error) {
	if inst.Status.Terminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", conveyor.ErrInstanceFinished, inst.ID, inst.Status)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no blocking activities named", conveyor.ErrInvalidResumeTarget)
	}
	for _, ref := range refs {
		if !inst.IsBlockedOn(ref) {
			return nil, fmt.Errorf("%w: %s", conveyor.ErrInvalidResumeTarget, ref)
		}
	}

	unlock, err := e.lease(inst.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	resuming := make(map[string]bool, len(refs))
	for _, ref := range refs {
		inst.RemoveBlocking(ref)
		resuming[ref] = true
	}
	inst.Variables = inst.Variables.Merge(input)
	inst.Status = conveyor.StatusRunning

	e.publish(inst, "", EventInstanceResumed, map[string]any{"activities": refs})
	e.execute(ctx, def, inst, refs, input, resuming)
	return inst, nil
}

// lease takes the instance's exclusive execution lease, rejecting a
// second concurrent run/resume on the same instance id.
func (e *Engine) lease(instanceID string) (func(), error) {
	v, _ := e.leases.LoadOrStore(instanceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, fmt.Errorf("%w: %s", conveyor.ErrInstanceBusy, instanceID)
	}
	return mu.Unlock, nil
}

// execute walks the graph depth-first per branch in declaration order,
// starting from the given activity ids. It mutates inst in place and
// sets the final status: blocked when anything is awaiting input,
// faulted when this pass recorded a fault and nothing blocks, else
// completed. Cancellation is honored between activity executions only.
func (e *Engine) execute(ctx context.Context, def *conveyor.WorkflowDefinitionVersion, inst *conveyor.WorkflowInstance, starts []string, input conveyor.Variables, resuming map[string]bool) {
	stack := make([]string, 0, len(def.Activities))
	pushReversed(&stack, starts)

	faulted := false
	for len(stack) > 0 {
		if ctx.Err() != nil {
			// Terminal states carry an empty blocking set; anything
			// recorded this pass will never be resumable.
			inst.Status = conveyor.StatusCancelled
			inst.BlockingActivities = nil
			inst.UpdatedAt = time.Now().UTC()
			e.publish(inst, "", EventInstanceCancelled, nil)
			return
		}

		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		actDef := def.Activity(id)
		if actDef == nil {
			inst.AppendLog(id, true, fmt.Sprintf("unknown activity %q", id))
			faulted = true
			continue
		}

		exec, ok := e.executors[actDef.Type]
		if !ok {
			inst.AppendLog(id, true, fmt.Sprintf("no executor registered for activity type %q", actDef.Type))
			e.publish(inst, id, EventActivityFaulted, map[string]any{"type": actDef.Type})
			faulted = true
			continue
		}

		actx := &ActivityContext{
			Instance: inst,
			Activity: actDef,
			Workflow: def,
			Input:    input,
			Resuming: resuming[id],
		}
		res, err := exec.Execute(ctx, actx)
		if err != nil {
			res = Faultf("%s", err.Error())
		}

		switch res.Kind {
		case KindNoop:
			e.publish(inst, id, EventActivityExecuted, map[string]any{"result": res.Kind.String()})

		case KindContinue, KindOutput:
			if res.Kind == KindOutput {
				inst.Variables = inst.Variables.Merge(conveyor.Variables{res.Name: res.Value})
			}
			inst.AppendLog(id, false, res.Message)
			e.publish(inst, id, EventActivityExecuted, map[string]any{"result": res.Kind.String()})
			pushReversed(&stack, e.nextActivities(def, inst, id, res))

		case KindBlock:
			inst.AddBlocking(id)
			e.publish(inst, id, EventActivityBlocked, nil)

		case KindFault:
			inst.AppendLog(id, true, res.Message)
			e.publish(inst, id, EventActivityFaulted, map[string]any{"message": res.Message})
			faulted = true
		}
	}

	inst.UpdatedAt = time.Now().UTC()
	switch {
	case len(inst.BlockingActivities) > 0:
		inst.Status = conveyor.StatusBlocked
		e.publish(inst, "", EventInstanceBlocked, map[string]any{"blocking": inst.BlockingActivities})
	case faulted:
		inst.Status = conveyor.StatusFaulted
		e.publish(inst, "", EventInstanceFaulted, nil)
	default:
		inst.Status = conveyor.StatusCompleted
		e.publish(inst, "", EventInstanceCompleted, nil)
	}
}

// nextActivities resolves where a Continue/Output result leads.
// Explicit next ids win; otherwise the activity's outbound connections
// with a matching outcome are followed, each gated by its optional
// condition. A failing condition expression skips the connection and is
// surfaced as an event, not a log entry.
func (e *Engine) nextActivities(def *conveyor.WorkflowDefinitionVersion, inst *conveyor.WorkflowInstance, activityID string, res Result) []string {
	if len(res.Next) > 0 {
		return res.Next
	}
	var next []string
	for _, conn := range def.Outbound(activityID, res.Outcome) {
		pass, err := Evaluate(conn.When, inst.Variables)
		if err != nil {
			slog.Warn("connection condition failed", "instance", inst.ID, "source", conn.Source, "target", conn.Target, "err", err)
			e.publish(inst, activityID, EventActivityFaulted, map[string]any{"condition": conn.When, "error": err.Error()})
			continue
		}
		if pass {
			next = append(next, conn.Target)
		}
	}
	return next
}

func pushReversed(stack *[]string, ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		*stack = append(*stack, ids[i])
	}
}
