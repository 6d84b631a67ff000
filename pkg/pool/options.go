package pool

import (
	"time"

	"github.com/butter-bot-machines/taskmill/pkg/errors"
	"github.com/butter-bot-machines/taskmill/pkg/logging"
	"github.com/butter-bot-machines/taskmill/pkg/resources"
	rtctx "github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
	"github.com/butter-bot-machines/taskmill/pkg/timing"
)

// defaultMaxTasks and defaultTaskLoopTime mirror the merge-with-defaults
// step of construction. TaskRetry needs no constant: its zero value is
// the default. defaultMaxThreads is not a constant: it is derived
// per-host from pkg/resources.
const (
	defaultMaxTasks     = 100
	defaultTaskLoopTime = time.Second
)

// minTaskLoopTime is the floor below which the drain tick would spin
// uselessly.
const minTaskLoopTime = 100 * time.Millisecond

// Options configures a Pool at construction. The zero value is mostly
// usable: MaxThreads, MaxTasks, and TaskLoopTime of zero are replaced
// with defaults, Type's zero value is runtime.EXEC, and TaskRetry's
// zero value (no retries) is itself the documented default. LazyLoad
// has no such luck — Go's zero-value bool can't distinguish "caller
// didn't set this" from "caller wants eager loading" — so unlike the
// source this pool defaults to eager (LazyLoad: false) unless a
// caller opts in explicitly. See DESIGN.md for the reasoning.
type Options struct {
	// LazyLoad, when true, creates workers on demand as tasks arrive.
	// When false (the Go zero value), NewPool pre-creates MaxThreads
	// workers up front.
	LazyLoad bool
	// MaxThreads bounds the worker set. Zero defaults to a host
	// CPU-derived suggestion from pkg/resources.
	MaxThreads int
	// MaxTasks bounds the task queue.
	MaxTasks int
	// TaskRetry is the default per-task retry budget, used when a
	// Send call doesn't specify its own.
	TaskRetry int
	// TaskLoopTime is the drain tick period.
	TaskLoopTime time.Duration
	// Type selects EXEC or EVAL interpretation of execContent and any
	// per-task ExecOverride.
	Type rtctx.Kind

	// Logger receives lifecycle and error logging. Defaults to a JSON
	// slog logger writing to stdout at Info level if nil.
	Logger logging.Logger
	// Clock drives the drain ticker. Defaults to the real clock.
	Clock timing.Clock
	// RuntimeFactory constructs the execution context each new Worker
	// owns. Required; NewPool fails validation without one.
	RuntimeFactory rtctx.Factory
}

// SendOptions configures one Send call. Retries is a pointer so a
// caller can distinguish "use the pool's default retry budget" (nil)
// from "this task gets zero retries" (a pointer to 0).
type SendOptions struct {
	ExecOverride string
	Retries      *int
}

func applyDefaults(o Options) Options {
	if o.MaxThreads == 0 {
		o.MaxThreads = resources.DefaultLimits().MaxThreads
		if o.MaxThreads < 1 {
			o.MaxThreads = 1
		}
	}
	if o.MaxTasks == 0 {
		o.MaxTasks = defaultMaxTasks
	}
	if o.TaskLoopTime == 0 {
		o.TaskLoopTime = defaultTaskLoopTime
	}
	return o
}

func validate(o Options) error {
	agg := errors.NewAggregate()

	if o.MaxThreads < 1 {
		agg.Add(errors.New(errors.InvalidArgument, "maxThreads must be >= 1, got %d", o.MaxThreads))
	}
	if o.MaxTasks < 1 {
		agg.Add(errors.New(errors.InvalidArgument, "maxTasks must be >= 1, got %d", o.MaxTasks))
	}
	if o.TaskLoopTime < minTaskLoopTime {
		agg.Add(errors.New(errors.InvalidArgument, "taskLoopTime must be >= %s, got %s", minTaskLoopTime, o.TaskLoopTime))
	}
	if o.TaskRetry < 0 || o.TaskRetry > task.MaxRetry {
		agg.Add(errors.New(errors.InvalidArgument, "taskRetry must be in [0,%d], got %d", task.MaxRetry, o.TaskRetry))
	}
	if o.Type != rtctx.EXEC && o.Type != rtctx.EVAL {
		agg.Add(errors.New(errors.InvalidArgument, "type must be EXEC or EVAL"))
	}
	if o.RuntimeFactory == nil {
		agg.Add(errors.New(errors.InvalidArgument, "RuntimeFactory is required"))
	}

	if agg.HasErrors() {
		return agg
	}
	return nil
}

func validateRetry(n int) error {
	if n < 0 || n > task.MaxRetry {
		return errors.New(errors.InvalidArgument, "taskRetry must be in [0,%d], got %d", task.MaxRetry, n)
	}
	return nil
}
