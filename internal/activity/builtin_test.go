package activity

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/engine"
)

func run(t *testing.T, def *conveyor.WorkflowDefinitionVersion, input conveyor.Variables) (*conveyor.WorkflowInstance, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	e := engine.New(nil, nil)
	RegisterBuiltins(e, &out)

	inst, err := e.Run(context.Background(), def, input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return inst, &out
}

func TestSetVariable(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "set", Type: "setVariable", Properties: map[string]any{"name": "greeting", "value": "hello"}},
		},
	}

	inst, _ := run(t, def, nil)
	if inst.Status != conveyor.StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
	if got := inst.Variables["greeting"].Text(); got != "hello" {
		t.Errorf("greeting = %q, want hello", got)
	}
}

func TestSetVariableRequiresName(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "set", Type: "setVariable", Properties: map[string]any{"value": "hello"}},
		},
	}

	inst, _ := run(t, def, nil)
	if inst.Status != conveyor.StatusFaulted {
		t.Errorf("status = %s, want faulted", inst.Status)
	}
}

func TestIfElseRouting(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "check", Type: "ifElse", Properties: map[string]any{"condition": "amount > 10"}},
			{ID: "hi", Type: "writeLine", Properties: map[string]any{"text": "high"}},
			{ID: "lo", Type: "writeLine", Properties: map[string]any{"text": "low"}},
		},
		Connections: []conveyor.Connection{
			{Source: "check", Target: "hi", Outcome: "true"},
			{Source: "check", Target: "lo", Outcome: "false"},
		},
	}

	_, out := run(t, def, conveyor.Variables{"amount": conveyor.Number(50)})
	if got := strings.TrimSpace(out.String()); got != "high" {
		t.Errorf("output = %q, want high", got)
	}

	_, out = run(t, def, conveyor.Variables{"amount": conveyor.Number(5)})
	if got := strings.TrimSpace(out.String()); got != "low" {
		t.Errorf("output = %q, want low", got)
	}
}

func TestWriteLine(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "w", Type: "writeLine", Properties: map[string]any{"text": "ahoy"}},
		},
	}

	inst, out := run(t, def, nil)
	if inst.Status != conveyor.StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
	if out.String() != "ahoy\n" {
		t.Errorf("output = %q, want %q", out.String(), "ahoy\n")
	}
}

func TestNotifyLeavesNoLogEntry(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "n", Type: "notify", Properties: map[string]any{"text": "ping"}},
		},
	}

	inst, _ := run(t, def, nil)
	if inst.Status != conveyor.StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
	if len(inst.ExecutionLog) != 0 {
		t.Errorf("log = %v, want empty", inst.ExecutionLog)
	}
}

func TestReceiveBlocksThenSavesInput(t *testing.T) {
	var out bytes.Buffer
	e := engine.New(nil, nil)
	RegisterBuiltins(e, &out)

	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Version:      1,
		Activities: []conveyor.ActivityDefinition{
			{ID: "read", Type: "receive", Properties: map[string]any{"saveAs": "answer"}},
		},
	}

	inst, err := e.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inst.Status != conveyor.StatusBlocked || !inst.IsBlockedOn("read") {
		t.Fatalf("status = %s blocking %v, want blocked on read", inst.Status, inst.BlockingActivities)
	}

	inst, err = e.Resume(context.Background(), def, inst, []string{"read"}, conveyor.Variables{"input": conveyor.String("42")})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if inst.Status != conveyor.StatusCompleted {
		t.Errorf("status = %s, want completed", inst.Status)
	}
	if got := inst.Variables["answer"].Text(); got != "42" {
		t.Errorf("answer = %q, want 42", got)
	}
}

func TestReceiveDefaultsSaveAsToActivityID(t *testing.T) {
	e := engine.New(nil, nil)
	RegisterBuiltins(e, nil)

	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities:   []conveyor.ActivityDefinition{{ID: "ask", Type: "receive"}},
	}

	inst, err := e.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	inst, err = e.Resume(context.Background(), def, inst, []string{"ask"}, conveyor.Variables{"input": conveyor.Number(7)})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if n, _ := inst.Variables["ask"].Number(); n != 7 {
		t.Errorf("ask = %v, want 7", n)
	}
}

func TestForkRunsAllBranches(t *testing.T) {
	def := &conveyor.WorkflowDefinitionVersion{
		DefinitionID: "fam",
		Activities: []conveyor.ActivityDefinition{
			{ID: "split", Type: "fork"},
			{ID: "left", Type: "writeLine", Properties: map[string]any{"text": "left"}},
			{ID: "right", Type: "writeLine", Properties: map[string]any{"text": "right"}},
		},
		Connections: []conveyor.Connection{
			{Source: "split", Target: "left"},
			{Source: "split", Target: "right"},
		},
	}

	inst, out := run(t, def, nil)
	if inst.Status != conveyor.StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
	// Branches execute depth first in declaration order.
	if got := out.String(); got != "left\nright\n" {
		t.Errorf("output = %q, want both branches in order", got)
	}
	if len(inst.ExecutionLog) != 3 {
		t.Errorf("log has %d entries, want 3", len(inst.ExecutionLog))
	}
}
