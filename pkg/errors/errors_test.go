package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorCreation(t *testing.T) {
	err := New(QueueFull, "pool saturated")
	if err.Type != QueueFull {
		t.Errorf("Type = %v, want %v", err.Type, QueueFull)
	}
	if err.Message != "pool saturated" {
		t.Errorf("Message = %v, want %v", err.Message, "pool saturated")
	}
	if len(err.Stack) == 0 {
		t.Error("stack trace not captured")
	}

	cause := fmt.Errorf("context deadline exceeded")
	wrapped := Wrap(cause, "worker dial failed")
	if !strings.Contains(wrapped.Error(), "worker dial failed") {
		t.Error("wrapped error missing wrapper message")
	}
	if !strings.Contains(wrapped.Error(), "context deadline exceeded") {
		t.Error("wrapped error missing cause message")
	}

	if Wrap(nil, "wrapper") != nil {
		t.Error("wrapping nil error should return nil")
	}
}

func TestErrorContext(t *testing.T) {
	err := New(TaskFailed, "application error").
		WithContext("taskId", "t-1").
		WithContext("code", 17)

	if err.Context["taskId"] != "t-1" {
		t.Error("context value not set correctly")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "taskId=t-1") {
		t.Error("error string missing context")
	}

	err = err.WithType(WorkerExited)
	if err.Type != WorkerExited {
		t.Error("type not updated")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := Wrap(cause, "worker crashed")
	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the original cause")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := New(WorkerErrorType, "transient fault")

	simple := fmt.Sprintf("%s", err)
	if !strings.Contains(simple, "transient fault") {
		t.Error("simple format missing message")
	}

	verbose := fmt.Sprintf("%+v", err)
	if !strings.Contains(verbose, "Stack trace:") {
		t.Error("verbose format missing stack trace")
	}
}

func TestErrorBehavior(t *testing.T) {
	tempErr := New(WorkerErrorType, "flaky")
	tempErr.Temporary = true
	if !tempErr.IsTemporary() {
		t.Error("expected temporary error")
	}

	var nilErr *Error
	if nilErr.IsTemporary() || nilErr.IsTimeout() {
		t.Error("nil error should report false for both")
	}
	if nilErr.Error() != "" {
		t.Error("nil error should format to empty string")
	}
}

func TestAggregate(t *testing.T) {
	agg := NewAggregate()
	if agg.HasErrors() {
		t.Error("new aggregate should have no errors")
	}

	agg.Add(New(InvalidArgument, "maxThreads must be >= 1"))
	agg.Add(New(InvalidArgument, "taskLoopTime must be >= 100ms"))

	if !agg.HasErrors() {
		t.Error("aggregate should have errors")
	}
	if len(agg.Errors()) != 2 {
		t.Errorf("len(Errors()) = %d, want 2", len(agg.Errors()))
	}
	errStr := agg.Error()
	if !strings.Contains(errStr, "2 errors occurred") {
		t.Error("aggregate summary missing count")
	}
}
