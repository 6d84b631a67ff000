// Package runtime defines the contract a Worker drives: an isolated
// execution context that runs one task at a time and reports back
// over an event channel. Concrete drivers live in pkg/runtime/procctx
// (EXEC, an external OS process) and pkg/runtime/memctx (EVAL, an
// in-process registered function).
package runtime

import (
	"github.com/butter-bot-machines/taskmill/pkg/task"
)

// Kind selects how a Context's execContent is interpreted.
type Kind int

const (
	// EXEC interprets execContent as the path to an external
	// executable, run in its own OS process.
	EXEC Kind = iota
	// EVAL interprets execContent as the name of a function
	// registered in an in-process registry.
	EVAL
)

func (k Kind) String() string {
	if k == EVAL {
		return "EVAL"
	}
	return "EXEC"
}

// Code is the application-level outcome a Context reports for a
// completed task. SUCCESS is the only code the dispatcher treats
// specially; anything else is an application-level failure eligible
// for retry, distinct from the context itself dying (EventExit).
type Code string

// SUCCESS marks a task that ran to completion without error.
const SUCCESS Code = "SUCCESS"

// EventKind discriminates the variants carried on a Context's event
// channel.
type EventKind int

const (
	// EventResponse reports a task finished, successfully or not.
	EventResponse EventKind = iota
	// EventError reports an out-of-band context error not tied to a
	// specific task (e.g. a malformed message from the runtime).
	EventError
	// EventExit reports the context itself has died and will not run
	// any further tasks. If a task was in flight, TaskID names it so
	// the dispatcher can fail it.
	EventExit
)

// Event is one message from a Context to the Worker that owns it.
type Event struct {
	Kind   EventKind
	TaskID string
	Code   Code
	Result interface{}
	Err    error
}

// Context is the isolated execution environment a Worker drives
// (spec §6.2). A Context is created once, runs zero or more tasks
// sequentially, and is torn down by Close.
type Context interface {
	// RunTask asynchronously hands payload to the context. When kind
	// is task.Dynamic, the context runs execOverride instead of its
	// own default execContent. RunTask returns an error only if the
	// context cannot accept the task at all (e.g. already closed);
	// outcomes of running the task arrive on Events.
	RunTask(taskID string, payload interface{}, execOverride string, kind task.ExecKind) error
	// Events returns the channel of response/error/exit events this
	// context emits. The channel is never closed by the Context; stop
	// reading from it after Close.
	Events() <-chan Event
	// Close stops the context from accepting further tasks. What
	// happens to an in-flight task depends on the driver: procctx
	// sends its process an interrupt, memctx lets it run to
	// completion. Safe to call more than once.
	Close() error
}

// Factory constructs a Context for a given default execution body and
// interpretation kind. Pool.Options.RuntimeFactory is one of these;
// procctx.New and memctx.New (partially applied) satisfy it.
type Factory func(execContent string, kind Kind) (Context, error)
