package memctx

import (
	"errors"
	"testing"
	"time"

	"github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/task"
)

func TestRunTaskSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register("double", func(payload interface{}) (interface{}, error) {
		return payload.(int) * 2, nil
	})

	ctx, err := New(reg, "double", runtime.EVAL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := ctx.RunTask("t1", 21, "", task.PoolDefault); err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}

	select {
	case ev := <-ctx.Events():
		if ev.Kind != runtime.EventResponse || ev.Code != runtime.SUCCESS || ev.Result != 42 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRunTaskApplicationError(t *testing.T) {
	reg := NewRegistry()
	wantErr := errors.New("boom")
	reg.Register("fail", func(interface{}) (interface{}, error) {
		return nil, wantErr
	})

	ctx, _ := New(reg, "fail", runtime.EVAL)
	ctx.RunTask("t1", nil, "", task.PoolDefault)

	ev := <-ctx.Events()
	if ev.Kind != runtime.EventResponse {
		t.Fatalf("Kind = %v, want EventResponse", ev.Kind)
	}
	if ev.Code == runtime.SUCCESS {
		t.Fatal("expected a non-SUCCESS code")
	}
	if ev.Err != wantErr {
		t.Errorf("Err = %v, want %v", ev.Err, wantErr)
	}
}

func TestRunTaskPanicIsExit(t *testing.T) {
	reg := NewRegistry()
	reg.Register("crash", func(interface{}) (interface{}, error) {
		panic("segfault")
	})

	ctx, _ := New(reg, "crash", runtime.EVAL)
	ctx.RunTask("t1", nil, "", task.PoolDefault)

	ev := <-ctx.Events()
	if ev.Kind != runtime.EventExit {
		t.Fatalf("Kind = %v, want EventExit", ev.Kind)
	}
	if ev.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", ev.TaskID)
	}
}

func TestRunTaskDynamicOverride(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pool-default", func(interface{}) (interface{}, error) { return "default", nil })
	reg.Register("task-specific", func(interface{}) (interface{}, error) { return "override", nil })

	ctx, _ := New(reg, "pool-default", runtime.EVAL)
	ctx.RunTask("t1", nil, "task-specific", task.Dynamic)

	ev := <-ctx.Events()
	if ev.Result != "override" {
		t.Errorf("Result = %v, want override", ev.Result)
	}
}

func TestRunTaskUnknownBodyExits(t *testing.T) {
	reg := NewRegistry()
	ctx, _ := New(reg, "missing", runtime.EVAL)
	ctx.RunTask("t1", nil, "", task.PoolDefault)

	ev := <-ctx.Events()
	if ev.Kind != runtime.EventExit {
		t.Fatalf("Kind = %v, want EventExit", ev.Kind)
	}
}

func TestRunTaskAfterCloseErrors(t *testing.T) {
	reg := NewRegistry()
	ctx, _ := New(reg, "anything", runtime.EVAL)
	ctx.Close()

	if err := ctx.RunTask("t1", nil, "", task.PoolDefault); err == nil {
		t.Fatal("expected error running a task on a closed context")
	}
}
