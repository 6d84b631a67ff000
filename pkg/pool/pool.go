// Package pool implements the dispatcher: the bounded worker pool
// that places incoming tasks on workers, retries application-level
// failures, drains the queue on a timer, and exposes dynamic
// reconfiguration. It is the core of this module; everything else
// (pkg/task, pkg/queue, pkg/worker, pkg/runtime) exists to serve it.
//
// All pool-owned state is touched only from the single goroutine
// started by NewPool (run). Every exported method sends a closure
// over an internal channel and waits for it to execute, which is how
// this package satisfies the "single logical actor" requirement
// without a mutex: admission, placement, and retry decisions can
// never interleave with each other, no matter how many goroutines
// call Send concurrently.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/butter-bot-machines/taskmill/pkg/errors"
	"github.com/butter-bot-machines/taskmill/pkg/logging"
	"github.com/butter-bot-machines/taskmill/pkg/logging/slog"
	"github.com/butter-bot-machines/taskmill/pkg/queue"
	rtctx "github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
	"github.com/butter-bot-machines/taskmill/pkg/timing"
	"github.com/butter-bot-machines/taskmill/pkg/worker"
)

// pendingEntry is what the dispatcher keeps per live task: the task
// itself (so a failed response can be retried without the queue
// having to have kept it) and the future a Send call is waiting on.
type pendingEntry struct {
	task   *task.Task
	future *Future
}

// Pool is the worker-thread pool dispatcher.
type Pool struct {
	execContent string
	execKind    rtctx.Kind
	logger      logging.Logger
	clock       timing.Clock
	factory     rtctx.Factory

	// actor-owned state; touched only inside run() and the closures
	// it executes.
	workers      map[int]*worker.Worker
	nextWorkerID int
	queue        *queue.Queue
	pending      map[string]*pendingEntry
	maxThreads   int
	maxTasks     int
	taskRetry    int
	taskLoopTime time.Duration
	ticker       timing.Ticker

	cmds           chan func()
	workerEventsCh chan worker.Event
	events         chan Event

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool constructs a Pool bound to execContent, the default
// execution body every worker runs unless a Task carries its own
// ExecOverride. Options are merged with defaults and validated;
// NewPool returns a typed *errors.Error (or *errors.Aggregate) and a
// nil Pool on the first violation — no partial pool is ever returned.
func NewPool(execContent string, opts Options) (*Pool, error) {
	opts = applyDefaults(opts)
	if err := validate(opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.NewLogger(logging.LevelInfo, nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timing.New()
	}

	p := &Pool{
		execContent:    execContent,
		execKind:       opts.Type,
		logger:         logger,
		clock:          clock,
		factory:        opts.RuntimeFactory,
		workers:        make(map[int]*worker.Worker),
		queue:          queue.New(opts.MaxTasks),
		pending:        make(map[string]*pendingEntry),
		maxThreads:     opts.MaxThreads,
		maxTasks:       opts.MaxTasks,
		taskRetry:      opts.TaskRetry,
		taskLoopTime:   opts.TaskLoopTime,
		cmds:           make(chan func(), 32),
		workerEventsCh: make(chan worker.Event, 64),
		events:         make(chan Event, 64),
		closeCh:        make(chan struct{}),
	}
	p.ticker = clock.NewTicker(opts.TaskLoopTime)

	if !opts.LazyLoad {
		for i := 0; i < opts.MaxThreads; i++ {
			if err := p.addWorker(); err != nil {
				return nil, errors.Wrap(err, "pre-creating worker %d", i)
			}
		}
	}

	p.wg.Add(1)
	go p.run()

	logger.Info("pool constructed", "maxThreads", p.maxThreads, "maxTasks", p.maxTasks, "type", opts.Type.String(), "lazyLoad", opts.LazyLoad)
	return p, nil
}

// Send submits payload for execution, returning a Future the caller
// awaits for the result. The error return is non-nil only for the
// synchronous INVALID_ARGUMENT / QUEUE_FULL cases (spec's send).
func (p *Pool) Send(payload interface{}, opts SendOptions) (*Future, error) {
	r, ok := call(p, func() sendResult { return p.doSend(payload, opts) })
	if !ok {
		return nil, fmt.Errorf("pool is closed")
	}
	return r.future, r.err
}

type sendResult struct {
	future *Future
	err    error
}

func (p *Pool) doSend(payload interface{}, opts SendOptions) sendResult {
	retry := p.taskRetry
	if opts.Retries != nil {
		retry = *opts.Retries
	}
	if err := validateRetry(retry); err != nil {
		return sendResult{nil, err}
	}

	tk := task.New(payload, task.Options{ExecOverride: opts.ExecOverride, Retries: retry})
	fut := newFuture()

	if p.consumeTask(tk) {
		p.pending[tk.ID()] = &pendingEntry{task: tk, future: fut}
		return sendResult{fut, nil}
	}
	if !p.queue.Full() && p.queue.Push(tk) {
		p.pending[tk.ID()] = &pendingEntry{task: tk, future: fut}
		return sendResult{fut, nil}
	}

	return sendResult{nil, errors.New(errors.QueueFull, "pool is at capacity and the task queue is full")}
}

// consumeTask implements the send/drain placement policy minus
// enqueue/reject: grow-first if under maxThreads, else dispatch to an
// idle worker if one exists. Returns false if neither applies.
func (p *Pool) consumeTask(tk *task.Task) bool {
	if len(p.workers) < p.maxThreads {
		if p.addWorkerAndRun(tk) {
			return true
		}
		// Creating the execution context failed; fall through and
		// try an idle worker instead of silently dropping the task.
	}
	if w := p.findIdle(); w != nil {
		if err := w.RunTask(tk); err != nil {
			p.logger.Error("dispatch to idle worker failed", "workerId", w.ID(), "taskId", tk.ID(), "error", err)
			return false
		}
		return true
	}
	return false
}

func (p *Pool) findIdle() *worker.Worker {
	for _, w := range p.workers {
		if w.Idle() {
			return w
		}
	}
	return nil
}

// addWorker creates a worker with no task assigned, used for eager
// (non-lazy) construction.
func (p *Pool) addWorker() error {
	ctx, err := p.factory(p.execContent, p.execKind)
	if err != nil {
		return errors.Wrap(err, "create execution context")
	}
	p.registerWorker(ctx)
	return nil
}

// addWorkerAndRun creates a worker and immediately assigns tk to it.
// Returns false (leaving the pool's worker set unchanged) if the
// execution context can't be created.
func (p *Pool) addWorkerAndRun(tk *task.Task) bool {
	ctx, err := p.factory(p.execContent, p.execKind)
	if err != nil {
		p.logger.Error("create execution context failed", "error", err)
		return false
	}
	w := p.registerWorker(ctx)
	if err := w.RunTask(tk); err != nil {
		p.logger.Error("run task on new worker failed", "workerId", w.ID(), "taskId", tk.ID(), "error", err)
		return false
	}
	p.logger.Debug("worker created", "workerId", w.ID(), "taskId", tk.ID())
	return true
}

func (p *Pool) registerWorker(ctx rtctx.Context) *worker.Worker {
	id := p.nextWorkerID
	p.nextWorkerID++
	w := worker.New(id, ctx, p.logger)
	p.workers[id] = w
	p.wg.Add(1)
	go p.forward(w)
	return w
}

// forward pumps one worker's events into the dispatcher's merged
// event channel until the worker (or the pool) is closed.
func (p *Pool) forward(w *worker.Worker) {
	defer p.wg.Done()
	for {
		select {
		case ev := <-w.Events():
			select {
			case p.workerEventsCh <- ev:
			case <-w.Done():
				return
			case <-p.closeCh:
				return
			}
		case <-w.Done():
			return
		case <-p.closeCh:
			return
		}
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case cmd := <-p.cmds:
			cmd()
		case ev := <-p.workerEventsCh:
			p.handleWorkerEvent(ev)
		case <-p.ticker.C():
			p.drain()
		case <-p.closeCh:
			return
		}
	}
}

func (p *Pool) handleWorkerEvent(ev worker.Event) {
	switch ev.Kind {
	case rtctx.EventResponse:
		p.handleResponse(ev)
	case rtctx.EventExit:
		p.handleExit(ev)
	case rtctx.EventError:
		p.logger.Warn("worker:error", "workerId", ev.WorkerID, "error", ev.Err)
		p.emit(Event{Kind: EventWorkerError, WorkerID: ev.WorkerID, TaskID: ev.TaskID, Err: ev.Err})
	}
}

func (p *Pool) handleResponse(ev worker.Event) {
	pend, ok := p.pending[ev.TaskID]
	if !ok {
		p.logger.Warn("response for unknown task", "taskId", ev.TaskID)
	} else if ev.Code == rtctx.SUCCESS {
		pend.future.resolve(ev.Result)
		delete(p.pending, ev.TaskID)
	} else if pend.task.IsRetryable() {
		pend.task.DecrementRetry()
		if p.queue.Push(pend.task) {
			p.logger.Debug("task retried", "taskId", ev.TaskID, "retriesLeft", pend.task.RetriesLeft())
		} else {
			pend.future.reject(errors.New(errors.QueueFull, "queue full, cannot retry task").WithContext("taskId", ev.TaskID))
			delete(p.pending, ev.TaskID)
			p.logger.Warn("task retry dropped, queue full", "taskId", ev.TaskID)
		}
	} else {
		pend.future.reject(errors.New(errors.TaskFailed, "%v", ev.Err).WithContext("taskId", ev.TaskID).WithContext("code", string(ev.Code)))
		delete(p.pending, ev.TaskID)
	}

	p.drainOne()
}

func (p *Pool) handleExit(ev worker.Event) {
	if w, ok := p.workers[ev.WorkerID]; ok {
		w.Close()
		delete(p.workers, ev.WorkerID)
	}

	if ev.TaskID != "" {
		if pend, ok := p.pending[ev.TaskID]; ok {
			pend.future.reject(errors.New(errors.WorkerExited, "%v", ev.Err).WithContext("taskId", ev.TaskID))
			delete(p.pending, ev.TaskID)
		}
	}

	p.logger.Warn("worker:exit", "workerId", ev.WorkerID, "taskId", ev.TaskID, "error", ev.Err)
	p.emit(Event{Kind: EventWorkerExit, WorkerID: ev.WorkerID, TaskID: ev.TaskID, Err: ev.Err})
}

// drain pops tasks from the head of the queue and dispatches them
// until the queue is empty or a dispatch attempt fails.
func (p *Pool) drain() {
	for p.drainOne() {
	}
}

// drainOne attempts to place the task at the head of the queue,
// removing it only on success. Returns whether it placed a task, so
// drain can keep going.
func (p *Pool) drainOne() bool {
	tk := p.queue.PeekFront()
	if tk == nil {
		return false
	}
	if !p.consumeTask(tk) {
		return false
	}
	p.queue.RemoveTask(tk.ID())
	return true
}

func (p *Pool) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("event channel full, dropping event", "kind", ev.Kind.String())
	}
}

// Events returns the pool's lifecycle event channel (worker:error /
// worker:exit). Never closed by the Pool.
func (p *Pool) Events() <-chan Event { return p.events }

// call runs fn on the dispatcher goroutine and returns its result.
// The second return value is false if the pool was already closed.
func call[T any](p *Pool, fn func() T) (T, bool) {
	reply := make(chan T, 1)
	select {
	case p.cmds <- func() { reply <- fn() }:
	case <-p.closeCh:
		var zero T
		return zero, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-p.closeCh:
		var zero T
		return zero, false
	}
}

// SetMaxThreads updates the worker-set bound. Lowering it does not
// kill existing workers; the pool contracts naturally as they exit.
func (p *Pool) SetMaxThreads(n int) error {
	v, ok := call(p, func() error {
		if n < 1 {
			return errors.New(errors.InvalidArgument, "maxThreads must be >= 1, got %d", n)
		}
		p.maxThreads = n
		p.logger.Info("maxThreads updated", "value", n)
		return nil
	})
	if !ok {
		return fmt.Errorf("pool is closed")
	}
	return v
}

// SetMaxTasks updates the queue's bound.
func (p *Pool) SetMaxTasks(n int) error {
	v, ok := call(p, func() error {
		if n < 1 {
			return errors.New(errors.InvalidArgument, "maxTasks must be >= 1, got %d", n)
		}
		p.maxTasks = n
		p.queue.SetMaxLength(n)
		p.logger.Info("maxTasks updated", "value", n)
		return nil
	})
	if !ok {
		return fmt.Errorf("pool is closed")
	}
	return v
}

// SetTaskLoopTime updates the drain tick period, replacing the
// ticker.
func (p *Pool) SetTaskLoopTime(d time.Duration) error {
	v, ok := call(p, func() error {
		if d < minTaskLoopTime {
			return errors.New(errors.InvalidArgument, "taskLoopTime must be >= %s, got %s", minTaskLoopTime, d)
		}
		p.ticker.Stop()
		p.ticker = p.clock.NewTicker(d)
		p.taskLoopTime = d
		p.logger.Info("taskLoopTime updated", "value", d)
		return nil
	})
	if !ok {
		return fmt.Errorf("pool is closed")
	}
	return v
}

// SetTaskRetry updates the default per-task retry budget.
func (p *Pool) SetTaskRetry(n int) error {
	v, ok := call(p, func() error {
		if err := validateRetry(n); err != nil {
			return err
		}
		p.taskRetry = n
		p.logger.Info("taskRetry updated", "value", n)
		return nil
	})
	if !ok {
		return fmt.Errorf("pool is closed")
	}
	return v
}

// WipeTaskQueue empties the queue, rejecting every still-queued
// task's future with a WIPED error so no caller awaits forever.
func (p *Pool) WipeTaskQueue() {
	call(p, func() struct{} {
		for _, tk := range p.queue.Tasks() {
			if pend, ok := p.pending[tk.ID()]; ok {
				pend.future.reject(errors.New(errors.Wiped, "task queue wiped"))
				delete(p.pending, tk.ID())
			}
		}
		p.queue.WipeTask()
		return struct{}{}
	})
}

// WipeThreadPool closes every worker's execution context, drops the
// worker set, and rejects every pending future (running or still
// queued) with a WIPED error.
func (p *Pool) WipeThreadPool() {
	call(p, func() struct{} {
		p.closeWorkers()
		p.rejectAllPending("thread pool wiped")
		return struct{}{}
	})
}

// Close stops the drain ticker, closes every worker's context, and
// rejects any still-pending futures, then shuts down the dispatcher
// goroutine. Safe to call more than once.
func (p *Pool) Close() error {
	select {
	case <-p.closeCh:
		return nil
	default:
	}

	call(p, func() struct{} {
		p.ticker.Stop()
		p.closeWorkers()
		p.rejectAllPending("pool closed")
		return struct{}{}
	})

	p.closeOnce.Do(func() { close(p.closeCh) })
	p.wg.Wait()
	return nil
}

func (p *Pool) closeWorkers() {
	for id, w := range p.workers {
		w.Close()
		delete(p.workers, id)
	}
}

func (p *Pool) rejectAllPending(reason string) {
	for id, pend := range p.pending {
		pend.future.reject(errors.New(errors.Wiped, reason))
		delete(p.pending, id)
	}
}

// IsFull reports whether the pool is at worker capacity with no idle
// worker and a full queue — the state in which Send would fail
// synchronously with QUEUE_FULL.
func (p *Pool) IsFull() bool {
	v, _ := call(p, func() bool {
		return len(p.workers) >= p.maxThreads && p.findIdle() == nil && p.queue.Full()
	})
	return v
}

// ThreadLength returns the current worker count.
func (p *Pool) ThreadLength() int {
	v, _ := call(p, func() int { return len(p.workers) })
	return v
}

// TaskLength returns the current queue length.
func (p *Pool) TaskLength() int {
	v, _ := call(p, func() int { return p.queue.Len() })
	return v
}

// IdleThread reports whether any worker is currently idle.
func (p *Pool) IdleThread() bool {
	v, _ := call(p, func() bool { return p.findIdle() != nil })
	return v
}
