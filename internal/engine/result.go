package engine

import (
	"fmt"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// ResultKind discriminates the closed set of activity outcomes. The
// engine applies each kind with an exhaustive switch; there is no
// dispatch on the result value itself.
type ResultKind int

const (
	// KindNoop performs no mutation; the activity's only purpose was an
	// external side effect completed before returning.
	KindNoop ResultKind = iota
	// KindContinue advances to the named next activities, or follows
	// the graph's outbound connections when none are named.
	KindContinue
	// KindBlock suspends the branch until external input resumes it.
	KindBlock
	// KindFault records a faulted log entry and halts the branch.
	KindFault
	// KindOutput writes a named variable, then behaves as Continue.
	KindOutput
)

func (k ResultKind) String() string {
	switch k {
	case KindNoop:
		return "noop"
	case KindContinue:
		return "continue"
	case KindBlock:
		return "block"
	case KindFault:
		return "fault"
	case KindOutput:
		return "output"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// Result is the outcome of executing one activity. It is consumed
// immediately by the engine and never persisted.
type Result struct {
	Kind    ResultKind
	Next    []string // explicit next activity ids (Continue/Output)
	Outcome string   // connection outcome to follow when Next is empty
	Message string   // fault message
	Name    string   // output variable name
	Value   conveyor.Value
}

// Noop returns a result that does nothing.
func Noop() Result { return Result{Kind: KindNoop} }

// ContinueTo continues directly to the given activity ids, bypassing
// connection lookup.
func ContinueTo(ids ...string) Result {
	return Result{Kind: KindContinue, Next: ids}
}

// Continue follows the activity's outbound connections for the default
// outcome.
func Continue() Result { return Result{Kind: KindContinue} }

// ContinueOutcome follows the outbound connections carrying the named
// outcome.
func ContinueOutcome(outcome string) Result {
	return Result{Kind: KindContinue, Outcome: outcome}
}

// Block suspends the current branch awaiting external input.
func Block() Result { return Result{Kind: KindBlock} }

// Faultf records a faulted log entry with the formatted message and
// halts the branch.
func Faultf(format string, args ...any) Result {
	return Result{Kind: KindFault, Message: fmt.Sprintf(format, args...)}
}

// Output writes value under name, then continues along the default
// outcome.
func Output(name string, value conveyor.Value) Result {
	return Result{Kind: KindOutput, Name: name, Value: value}
}
