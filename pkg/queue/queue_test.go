package queue

import (
	"testing"

	"github.com/butter-bot-machines/taskmill/pkg/task"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(2)

	a := task.New("a", task.Options{})
	b := task.New("b", task.Options{})

	if !q.Push(a) {
		t.Fatal("Push(a) should succeed")
	}
	if !q.Push(b) {
		t.Fatal("Push(b) should succeed")
	}

	c := task.New("c", task.Options{})
	if q.Push(c) {
		t.Fatal("Push(c) should fail, queue is at maxLength")
	}

	if got := q.Pop(); got != a {
		t.Errorf("Pop() = %v, want a", got.Payload())
	}
	if got := q.Pop(); got != b {
		t.Errorf("Pop() = %v, want b", got.Payload())
	}
	if got := q.Pop(); got != nil {
		t.Error("Pop() on empty queue should return nil")
	}
}

func TestGetAndRemoveTask(t *testing.T) {
	q := New(5)
	a := task.New("a", task.Options{})
	q.Push(a)

	if got := q.GetTask(a.ID()); got != a {
		t.Error("GetTask should find the pushed task without removing it")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	if !q.RemoveTask(a.ID()) {
		t.Error("RemoveTask should succeed for a queued id")
	}
	if q.GetTask(a.ID()) != nil {
		t.Error("task should be gone after RemoveTask")
	}
	if q.RemoveTask(a.ID()) {
		t.Error("RemoveTask should fail the second time")
	}
}

func TestRetryTaskReordersToTail(t *testing.T) {
	q := New(5)
	a := task.New("a", task.Options{Retries: 1})
	b := task.New("b", task.Options{})
	q.Push(a)
	q.Push(b)

	if !q.RetryTask(a.ID()) {
		t.Fatal("RetryTask should succeed for a retryable queued task")
	}
	if a.RetriesLeft() != 0 {
		t.Errorf("RetriesLeft() = %d, want 0", a.RetriesLeft())
	}

	// b (no retry) should now be ahead of a (retried, decremented to 0).
	if got := q.Pop(); got != b {
		t.Error("non-retried sibling should be dequeued first")
	}
	if got := q.Pop(); got != a {
		t.Error("retried task should be re-inserted at the tail")
	}
}

func TestRetryTaskRejectsExhaustedOrMissing(t *testing.T) {
	q := New(5)
	a := task.New("a", task.Options{})
	q.Push(a)

	if q.RetryTask(a.ID()) {
		t.Error("RetryTask should fail for a task with no retry budget")
	}
	if q.RetryTask("missing") {
		t.Error("RetryTask should fail for an id not in the queue")
	}
}

func TestWipeTask(t *testing.T) {
	q := New(5)
	q.Push(task.New("a", task.Options{}))
	q.Push(task.New("b", task.Options{}))

	q.WipeTask()

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after wipe", q.Len())
	}
	if q.Pop() != nil {
		t.Error("Pop() after wipe should return nil")
	}
}

func TestSetMaxLengthCapsFuturePushes(t *testing.T) {
	q := New(5)
	q.Push(task.New("a", task.Options{}))
	q.Push(task.New("b", task.Options{}))

	q.SetMaxLength(1)

	if !q.Full() {
		t.Error("queue should report full once bound is below current length")
	}
	if q.Push(task.New("c", task.Options{})) {
		t.Error("Push should fail once the lowered bound is already exceeded")
	}
	if q.Len() != 2 {
		t.Error("lowering maxLength must not evict already-queued tasks")
	}
}
