// Package task defines the unit of work the dispatcher places onto
// workers: an immutable payload and execution body plus a mutable
// retry counter.
package task

import (
	"github.com/google/uuid"
)

// ExecKind selects which execution body a Worker runs for a Task.
type ExecKind int

const (
	// PoolDefault runs the pool's configured execContent.
	PoolDefault ExecKind = iota
	// Dynamic runs the Task's own ExecOverride instead.
	Dynamic
)

func (k ExecKind) String() string {
	if k == Dynamic {
		return "DYNAMIC"
	}
	return "POOL_DEFAULT"
}

// MaxRetry is the upper clamp on a Task's retry budget (spec §4.1).
const MaxRetry = 5

// Options configures a Task at construction.
type Options struct {
	// ExecOverride, if non-empty, overrides the pool's default
	// execution body for this Task alone and forces ExecKind=Dynamic.
	ExecOverride string
	// Retries is the retry budget for this Task; it is clamped to
	// [0, MaxRetry].
	Retries int
}

// Task is an immutable description of one unit of work plus a mutable
// retry counter. Only the Pool mutates a Task after construction.
type Task struct {
	id           string
	payload      interface{}
	execOverride string
	execKind     ExecKind
	retriesLeft  int
}

// New constructs a Task with a fresh id. retriesLeft is clamped to
// [0, MaxRetry] regardless of the caller's requested value.
func New(payload interface{}, opts Options) *Task {
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	if retries > MaxRetry {
		retries = MaxRetry
	}

	kind := PoolDefault
	if opts.ExecOverride != "" {
		kind = Dynamic
	}

	return &Task{
		id:           uuid.NewString(),
		payload:      payload,
		execOverride: opts.ExecOverride,
		execKind:     kind,
		retriesLeft:  retries,
	}
}

// ID returns the Task's opaque unique identifier.
func (t *Task) ID() string { return t.id }

// Payload returns the caller-supplied payload, forwarded verbatim to
// the worker.
func (t *Task) Payload() interface{} { return t.payload }

// ExecOverride returns the per-task execution body override, if any.
func (t *Task) ExecOverride() string { return t.execOverride }

// ExecKind reports whether this Task runs the pool default or its own
// override.
func (t *Task) ExecKind() ExecKind { return t.execKind }

// RetriesLeft returns the remaining retry budget.
func (t *Task) RetriesLeft() int { return t.retriesLeft }

// IsRetryable reports whether the Task has any retry budget left.
func (t *Task) IsRetryable() bool { return t.retriesLeft > 0 }

// DecrementRetry consumes one unit of retry budget. It is an error to
// call this when no budget remains; callers must check IsRetryable
// first (spec §4.1's INVALID_STATE edge case).
func (t *Task) DecrementRetry() error {
	if t.retriesLeft <= 0 {
		return errInvalidState
	}
	t.retriesLeft--
	return nil
}

var errInvalidState = &stateError{"retriesLeft is already zero"}

// stateError is a tiny sentinel distinct from pkg/errors so pkg/task
// has no dependency on the dispatcher's error taxonomy — callers that
// care about INVALID_STATE wrap it themselves.
type stateError struct{ msg string }

func (e *stateError) Error() string { return e.msg }
