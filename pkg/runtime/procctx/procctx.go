// Package procctx implements an EXEC runtime.Context: each task is
// run in its own external OS process, spawned through a
// pkg/process.Manager and bounded by resource limits fixed at
// construction. Grounded on the teacher's worker pool, which drove
// pkg/process the same way: spawn, pipe payload over stdin, decode a
// JSON response from stdout, decide success/failure from it.
package procctx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/butter-bot-machines/taskmill/pkg/process"
	"github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
)

// response is the wire shape an EXEC body writes to stdout on exit.
// A body that exits without writing valid JSON, or that is killed by
// a resource limit, is treated as the context dying rather than as an
// application-level failure.
type response struct {
	Code   string      `json:"code"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Context implements runtime.Context by spawning one OS process per
// task through a shared process.Manager. The manager and resource
// limits are fixed when the Context is built; only the spawned
// process is per-task.
type Context struct {
	manager process.Manager
	path    string
	limits  process.ResourceLimits

	mu      sync.Mutex
	closed  bool
	current process.Process

	events chan runtime.Event
}

// New builds a Context bound to manager and limits. Partially applied,
// it satisfies runtime.Factory:
//
//	factory := func(body string, kind runtime.Kind) (runtime.Context, error) {
//	        return procctx.New(manager, limits, body, kind)
//	}
func New(manager process.Manager, limits process.ResourceLimits, execContent string, kind runtime.Kind) (runtime.Context, error) {
	if manager == nil {
		return nil, fmt.Errorf("procctx: nil manager")
	}
	if execContent == "" {
		return nil, fmt.Errorf("procctx: empty execContent")
	}
	return &Context{
		manager: manager,
		path:    execContent,
		limits:  limits,
		events:  make(chan runtime.Event, 16),
	}, nil
}

// RunTask spawns execOverride (if kind is task.Dynamic) or the
// context's default path, writes payload to the child's stdin as
// JSON, and decodes its stdout as a response once it exits.
func (c *Context) RunTask(taskID string, payload interface{}, execOverride string, kind task.ExecKind) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("procctx: context closed")
	}
	c.mu.Unlock()

	path := c.path
	if kind == task.Dynamic {
		path = execOverride
	}

	go c.run(taskID, path, payload)
	return nil
}

func (c *Context) run(taskID, path string, payload interface{}) {
	proc := c.manager.New(path, nil)
	if err := proc.SetLimits(c.limits); err != nil {
		c.emitExit(taskID, fmt.Errorf("procctx: set limits: %w", err))
		return
	}

	var stdin bytes.Buffer
	if err := json.NewEncoder(&stdin).Encode(payload); err != nil {
		c.emitExit(taskID, fmt.Errorf("procctx: encode payload: %w", err))
		return
	}
	proc.SetStdin(&stdin)

	var stdout bytes.Buffer
	proc.SetStdout(&stdout)
	var stderr bytes.Buffer
	proc.SetStderr(&stderr)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.current = proc
	c.mu.Unlock()

	if err := proc.Start(); err != nil {
		c.clearCurrent()
		c.emitExit(taskID, fmt.Errorf("procctx: start: %w", err))
		return
	}

	waitErr := proc.Wait()
	c.clearCurrent()

	if waitErr != nil {
		c.emitExit(taskID, fmt.Errorf("procctx: %w: %s", waitErr, stderr.String()))
		return
	}

	var resp response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		c.emitExit(taskID, fmt.Errorf("procctx: malformed response: %w", err))
		return
	}

	if resp.Code == string(runtime.SUCCESS) {
		c.emit(runtime.Event{Kind: runtime.EventResponse, TaskID: taskID, Code: runtime.SUCCESS, Result: resp.Result})
		return
	}
	c.emit(runtime.Event{
		Kind:   runtime.EventResponse,
		TaskID: taskID,
		Code:   runtime.Code(resp.Code),
		Err:    fmt.Errorf("%s", resp.Error),
	})
}

func (c *Context) clearCurrent() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Events returns the context's event channel.
func (c *Context) Events() <-chan runtime.Event { return c.events }

// Close signals the in-flight process, if any, and stops the context
// from accepting new tasks.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.current != nil {
		return c.current.Signal(os.Interrupt)
	}
	return nil
}

func (c *Context) emit(e runtime.Event) {
	c.events <- e
}

func (c *Context) emitExit(taskID string, err error) {
	c.emit(runtime.Event{Kind: runtime.EventExit, TaskID: taskID, Err: err})
}
