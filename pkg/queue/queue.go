// Package queue implements the bounded, id-indexed FIFO the dispatcher
// uses to hold tasks that cannot be placed immediately.
package queue

import (
	"container/list"
	"sync"

	"github.com/butter-bot-machines/taskmill/pkg/task"
)

// Queue is a bounded FIFO of *task.Task with O(1) lookup by id. The
// zero value is not usable; construct with New. Queue is safe for
// concurrent use, though the dispatcher in pkg/pool only ever touches
// it from its single actor goroutine.
type Queue struct {
	mu        sync.Mutex
	order     *list.List
	byID      map[string]*list.Element
	maxLength int
}

// New creates an empty Queue bounded at maxLength.
func New(maxLength int) *Queue {
	return &Queue{
		order:     list.New(),
		byID:      make(map[string]*list.Element),
		maxLength: maxLength,
	}
}

// Push appends t to the tail. Returns false without mutating the
// queue if it is already at maxLength.
func (q *Queue) Push(t *task.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.order.Len() >= q.maxLength {
		return false
	}

	elem := q.order.PushBack(t)
	q.byID[t.ID()] = elem
	return true
}

// Pop removes and returns the head task, or nil if the queue is
// empty.
func (q *Queue) Pop() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.order.Front()
	if front == nil {
		return nil
	}
	q.order.Remove(front)
	t := front.Value.(*task.Task)
	delete(q.byID, t.ID())
	return t
}

// GetTask returns the task with the given id without removing it, or
// nil if no such task is queued.
func (q *Queue) GetTask(id string) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem, ok := q.byID[id]
	if !ok {
		return nil
	}
	return elem.Value.(*task.Task)
}

// PeekFront returns the head task without removing it, or nil if the
// queue is empty. Used by the dispatcher to test whether a task can
// be placed before committing to removing it from the queue.
func (q *Queue) PeekFront() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.order.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*task.Task)
}

// RemoveTask removes the task with the given id from any position in
// the queue. Returns false if no such task was queued.
func (q *Queue) RemoveTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem, ok := q.byID[id]
	if !ok {
		return false
	}
	q.order.Remove(elem)
	delete(q.byID, id)
	return true
}

// RetryTask decrements the retry budget of the task with the given id
// and moves it to the tail, for a task that is still queued (spec
// §4.2). The pool does not call it: a task that comes back from a
// worker is no longer queued, so the pool decrements its budget and
// pushes it again itself. Returns
// false if the task isn't queued or has no retry budget left; in
// that case the queue is left untouched.
func (q *Queue) RetryTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem, ok := q.byID[id]
	if !ok {
		return false
	}

	t := elem.Value.(*task.Task)
	if !t.IsRetryable() {
		return false
	}
	if err := t.DecrementRetry(); err != nil {
		return false
	}

	q.order.MoveToBack(elem)
	return true
}

// WipeTask empties the queue.
func (q *Queue) WipeTask() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order.Init()
	q.byID = make(map[string]*list.Element)
}

// SetMaxLength updates the bound. Lowering it below the current
// length simply caps future Push calls; it never evicts queued tasks
// (spec §3).
func (q *Queue) SetMaxLength(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxLength = n
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// MaxLength returns the current bound.
func (q *Queue) MaxLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxLength
}

// Full reports whether the queue is at its bound.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len() >= q.maxLength
}

// Tasks returns a snapshot slice of queued tasks in FIFO order, used
// by the pool's WipeTaskQueue to reject every queued task's future
// before the queue is emptied.
func (q *Queue) Tasks() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*task.Task, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		tasks = append(tasks, e.Value.(*task.Task))
	}
	return tasks
}
