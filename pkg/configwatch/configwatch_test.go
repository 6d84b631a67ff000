package configwatch

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/butter-bot-machines/taskmill/pkg/logging"
	memlog "github.com/butter-bot-machines/taskmill/pkg/logging/memory"
)

type fakeSetter struct {
	maxThreads   int
	maxTasks     int
	taskLoopTime time.Duration
	taskRetry    int
	calls        int
}

func (f *fakeSetter) SetMaxThreads(n int) error       { f.maxThreads = n; f.calls++; return nil }
func (f *fakeSetter) SetMaxTasks(n int) error          { f.maxTasks = n; f.calls++; return nil }
func (f *fakeSetter) SetTaskLoopTime(d time.Duration) error { f.taskLoopTime = d; f.calls++; return nil }
func (f *fakeSetter) SetTaskRetry(n int) error         { f.taskRetry = n; f.calls++; return nil }

func testLogger() logging.Logger {
	return memlog.NewLogger(logging.LevelDebug, io.Discard)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestStartAppliesInitialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	if err := os.WriteFile(path, []byte("max_threads: 4\nmax_tasks: 10\ntask_loop_time: 250ms\n"), 0644); err != nil {
		t.Fatal(err)
	}

	setter := &fakeSetter{}
	w, err := New(path, setter, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if setter.maxThreads != 4 || setter.maxTasks != 10 || setter.taskLoopTime != 250*time.Millisecond {
		t.Errorf("unexpected initial apply: %+v", setter)
	}
}

func TestReloadOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	if err := os.WriteFile(path, []byte("max_threads: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	setter := &fakeSetter{}
	w, err := New(path, setter, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.debounce = 20 * time.Millisecond
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitUntil(t, func() bool { return setter.maxThreads == 2 })

	if err := os.WriteFile(path, []byte("max_threads: 6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return setter.maxThreads == 6 })
}

func TestReloadSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	if err := os.WriteFile(path, []byte("max_threads: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	setter := &fakeSetter{}
	w, err := New(path, setter, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitUntil(t, func() bool { return setter.calls > 0 })
	callsAfterFirstLoad := setter.calls

	w.reload()
	if setter.calls != callsAfterFirstLoad {
		t.Errorf("reload() on unchanged content re-applied config: calls went from %d to %d", callsAfterFirstLoad, setter.calls)
	}
}

func TestParseTypeDefaultsToExec(t *testing.T) {
	if got := ParseType(""); got.String() != "EXEC" {
		t.Errorf("ParseType(%q) = %v, want EXEC", "", got)
	}
	if got := ParseType("EVAL"); got.String() != "EVAL" {
		t.Errorf("ParseType(%q) = %v, want EVAL", "EVAL", got)
	}
}
