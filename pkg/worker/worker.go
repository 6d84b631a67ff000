// Package worker wraps a single runtime.Context with the state
// machine the dispatcher needs: idle, running one task, or exited for
// good. Grounded on the teacher's own worker struct (id, channel-fed
// processing loop, per-worker metrics) generalized from a fixed
// Execute func to an arbitrary runtime.Context.
package worker

import (
	"fmt"
	"sync"

	"github.com/butter-bot-machines/taskmill/pkg/logging"
	"github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
)

// State is a Worker's position in its lifecycle.
type State int

const (
	// Idle workers accept a new RunTask call.
	Idle State = iota
	// Running workers are executing exactly one task.
	Running
	// Exited workers are dead; the dispatcher must drop them and, if
	// a task was in flight, fail it.
	Exited
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Exited:
		return "EXITED"
	default:
		return "IDLE"
	}
}

// Event is one message from a Worker to the Pool that owns it: the
// runtime.Event it wraps, tagged with the worker and task it came
// from.
type Event struct {
	WorkerID int
	TaskID   string
	Kind     runtime.EventKind
	Code     runtime.Code
	Result   interface{}
	Err      error
}

// Worker owns exactly one runtime.Context for its whole lifetime
// (spec §4.3): the context is created once, at construction, and
// lives until the Worker exits or is closed.
type Worker struct {
	id     int
	ctx    runtime.Context
	logger logging.Logger

	mu            sync.Mutex
	state         State
	currentTaskID string

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Worker around ctx and starts forwarding its events.
func New(id int, ctx runtime.Context, logger logging.Logger) *Worker {
	w := &Worker{
		id:     id,
		ctx:    ctx,
		logger: logger,
		state:  Idle,
		events: make(chan Event, 8),
		stop:   make(chan struct{}),
	}
	go w.pump()
	return w
}

// ID returns the worker's pool-assigned identifier.
func (w *Worker) ID() int { return w.id }

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Idle reports whether the worker will currently accept RunTask.
func (w *Worker) Idle() bool { return w.State() == Idle }

// RunTask hands t to the underlying context. It is only valid to call
// while the worker is Idle; the dispatcher is expected to check that
// itself (via Idle) before placing work, so this is a defensive
// invariant rather than part of normal control flow.
func (w *Worker) RunTask(t *task.Task) error {
	w.mu.Lock()
	if w.state != Idle {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("worker %d: RunTask called while %s", w.id, state)
	}
	w.state = Running
	w.currentTaskID = t.ID()
	w.mu.Unlock()

	if err := w.ctx.RunTask(t.ID(), t.Payload(), t.ExecOverride(), t.ExecKind()); err != nil {
		w.mu.Lock()
		w.state = Exited
		w.mu.Unlock()
		return err
	}
	return nil
}

// Events returns the channel of Worker-tagged events. Never closed;
// stop reading after Close.
func (w *Worker) Events() <-chan Event { return w.events }

// Done returns a channel closed once the worker is torn down, for
// callers (the dispatcher's forwarding goroutine) that need to stop
// selecting on Events without leaking.
func (w *Worker) Done() <-chan struct{} { return w.stop }

// Close tears down the underlying context and stops the forwarding
// goroutine. Safe to call more than once.
func (w *Worker) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return w.ctx.Close()
}

func (w *Worker) pump() {
	for {
		select {
		case ev := <-w.ctx.Events():
			w.mu.Lock()
			taskID := w.currentTaskID
			switch ev.Kind {
			case runtime.EventResponse:
				w.state = Idle
				w.currentTaskID = ""
			case runtime.EventExit:
				w.state = Exited
				w.currentTaskID = ""
			}
			w.mu.Unlock()

			if ev.TaskID != "" {
				taskID = ev.TaskID
			}
			select {
			case w.events <- Event{WorkerID: w.id, TaskID: taskID, Kind: ev.Kind, Code: ev.Code, Result: ev.Result, Err: ev.Err}:
			case <-w.stop:
				return
			}
		case <-w.stop:
			return
		}
	}
}
