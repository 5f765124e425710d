package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/seanmorton/conveyor/internal/activity"
	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/engine"
	"github.com/seanmorton/conveyor/internal/repository"
	"github.com/seanmorton/conveyor/internal/services"
)

// demo runs an interactive calculator workflow on the console. Each
// read step blocks the instance; console input resumes it, exercising
// the same suspend/resume path the HTTP API uses.
func demo() {
	ctx := context.Background()

	ids := conveyor.UUIDGenerator{}
	eng := engine.New(ids, engine.NewEventBus())
	activity.RegisterBuiltins(eng, os.Stdout)
	eng.Register(engine.ExecutorFunc{Kind: "calculate", Fn: calculate})
	eng.Register(engine.ExecutorFunc{Kind: "showResult", Fn: showResult})

	defs := repository.NewMemoryDefinitions()
	insts := repository.NewMemoryInstances()
	publisher := services.NewPublisher(defs, ids)
	exec := services.NewExecutionService(defs, insts, eng, nil)

	def := calculatorDefinition()
	if _, err := publisher.PublishVersion(ctx, def); err != nil {
		slog.Error("publish failed", "err", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		inst, err := exec.Start(ctx, def.DefinitionID, conveyor.Published(), nil)
		if err != nil {
			slog.Error("start failed", "err", err)
			os.Exit(1)
		}

		for inst.Status == conveyor.StatusBlocked {
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "exit" {
				return
			}

			input := conveyor.Variables{"input": conveyor.String(line)}
			inst, err = exec.Resume(ctx, inst.ID, inst.BlockingActivities, input)
			if err != nil {
				slog.Error("resume failed", "err", err)
				os.Exit(1)
			}
		}

		if inst.Status == conveyor.StatusFaulted {
			for _, entry := range inst.ExecutionLog {
				if entry.Faulted {
					fmt.Println("error:", entry.Message)
				}
			}
		}

		fmt.Println("Type enter to calculate again, or exit to quit.")
		if !scanner.Scan() || strings.TrimSpace(scanner.Text()) == "exit" {
			return
		}
	}
}

// calculatorDefinition wires the prompt/read/calculate graph.
func calculatorDefinition() *conveyor.WorkflowDefinitionVersion {
	step := func(id, typ string, props map[string]any) conveyor.ActivityDefinition {
		return conveyor.ActivityDefinition{ID: id, Type: typ, Properties: props}
	}
	link := func(source, target string) conveyor.Connection {
		return conveyor.Connection{Source: source, Target: target, Outcome: conveyor.DefaultOutcome}
	}

	return &conveyor.WorkflowDefinitionVersion{
		Name: "Calculator",
		Activities: []conveyor.ActivityDefinition{
			step("welcome", "writeLine", map[string]any{"text": "Welcome to the calculator. Enter the first number:"}),
			step("readA", "receive", map[string]any{"saveAs": "a"}),
			step("promptB", "writeLine", map[string]any{"text": "Enter the second number:"}),
			step("readB", "receive", map[string]any{"saveAs": "b"}),
			step("promptOp", "writeLine", map[string]any{"text": "Enter the operation (add, sub, mul, div):"}),
			step("readOp", "receive", map[string]any{"saveAs": "op"}),
			step("calc", "calculate", nil),
			step("show", "showResult", nil),
		},
		Connections: []conveyor.Connection{
			link("welcome", "readA"),
			link("readA", "promptB"),
			link("promptB", "readB"),
			link("readB", "promptOp"),
			link("promptOp", "readOp"),
			link("readOp", "calc"),
			link("calc", "show"),
		},
	}
}

func calculate(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	a, err := actx.Variable("a").Number()
	if err != nil {
		return engine.Faultf("first number: %v", err), nil
	}
	b, err := actx.Variable("b").Number()
	if err != nil {
		return engine.Faultf("second number: %v", err), nil
	}

	var result float64
	switch op := actx.Variable("op").Text(); op {
	case "add", "+":
		result = a + b
	case "sub", "-":
		result = a - b
	case "mul", "*":
		result = a * b
	case "div", "/":
		if b == 0 {
			return engine.Faultf("division by zero"), nil
		}
		result = a / b
	default:
		return engine.Faultf("unknown operation %q", op), nil
	}

	return engine.Output("result", conveyor.Number(result)), nil
}

func showResult(_ context.Context, actx *engine.ActivityContext) (engine.Result, error) {
	fmt.Println("Result:", actx.Variable("result").Text())
	return engine.Continue(), nil
}
