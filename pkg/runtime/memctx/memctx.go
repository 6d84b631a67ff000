// Package memctx implements an EVAL runtime.Context: payloads are
// dispatched to plain Go functions registered by name, in-process. It
// is the execution driver the pool's own tests run against, and
// doubles as a template for a caller's own fast, allocation-light
// drivers.
package memctx

import (
	"fmt"
	"sync"

	"github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
)

// Func is a registered unit of work. A non-nil error is reported as
// an application-level failure (runtime.EventResponse with a non-
// SUCCESS code); a panic is caught and reported as the context dying
// (runtime.EventExit), the EVAL analogue of a crashed process.
type Func func(payload interface{}) (interface{}, error)

// Registry holds the named functions EVAL bodies resolve to. One
// Registry is normally shared by every Context a pool creates.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Func)}
}

// Register adds or replaces the function callable under name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
}

func (r *Registry) lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Context implements runtime.Context by calling into a Registry.
type Context struct {
	registry    *Registry
	defaultBody string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	events chan runtime.Event
}

// New builds a Context bound to registry. Partially applied, it
// satisfies runtime.Factory:
//
//	factory := func(body string, kind runtime.Kind) (runtime.Context, error) {
//	        return memctx.New(registry, body, kind)
//	}
func New(registry *Registry, execContent string, kind runtime.Kind) (runtime.Context, error) {
	if registry == nil {
		return nil, fmt.Errorf("memctx: nil registry")
	}
	return &Context{
		registry:    registry,
		defaultBody: execContent,
		events:      make(chan runtime.Event, 16),
	}, nil
}

// RunTask runs the resolved function in its own goroutine and emits
// exactly one event when it finishes.
func (c *Context) RunTask(taskID string, payload interface{}, execOverride string, kind task.ExecKind) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("memctx: context closed")
	}
	c.mu.Unlock()

	body := c.defaultBody
	if kind == task.Dynamic {
		body = execOverride
	}

	fn, ok := c.registry.lookup(body)
	if !ok {
		c.emit(runtime.Event{
			Kind:   runtime.EventExit,
			TaskID: taskID,
			Err:    fmt.Errorf("memctx: no function registered as %q", body),
		})
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.emit(runtime.Event{
					Kind:   runtime.EventExit,
					TaskID: taskID,
					Err:    fmt.Errorf("memctx: panic: %v", r),
				})
			}
		}()

		result, err := fn(payload)
		if err != nil {
			c.emit(runtime.Event{
				Kind:   runtime.EventResponse,
				TaskID: taskID,
				Code:   runtime.Code("ERROR"),
				Err:    err,
			})
			return
		}
		c.emit(runtime.Event{
			Kind:   runtime.EventResponse,
			TaskID: taskID,
			Code:   runtime.SUCCESS,
			Result: result,
		})
	}()
	return nil
}

// Events returns the context's event channel.
func (c *Context) Events() <-chan runtime.Event { return c.events }

// Close stops the context from accepting new tasks. A task already in
// flight still completes and still emits its event; memctx has no
// subprocess to kill, so there's nothing more forceful to do. The
// events channel is intentionally never closed, so a late-finishing
// goroutine never panics on a send to a closed channel.
func (c *Context) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Context) emit(e runtime.Event) {
	c.events <- e
}
