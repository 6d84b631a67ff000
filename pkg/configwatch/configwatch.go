// Package configwatch watches a pool's YAML config file and pushes
// changes through the pool's dynamic reconfiguration setters. Grounded
// on the donor's pkg/watcher: the same fsnotify-plus-debounce-ticker
// shape, narrowed from a directory of markdown files to one config
// file, and a content hash to skip a reload when a write didn't
// actually change the bytes (editors routinely touch-then-rewrite).
package configwatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/butter-bot-machines/taskmill/pkg/config"
	"github.com/butter-bot-machines/taskmill/pkg/logging"
	rtctx "github.com/butter-bot-machines/taskmill/pkg/runtime"
)

// Setter is the subset of *pool.Pool's dynamic reconfiguration surface
// a Watcher drives. Defined as an interface (rather than importing
// *pool.Pool directly) so tests can assert against a fake without
// spinning up a real pool.
type Setter interface {
	SetMaxThreads(n int) error
	SetMaxTasks(n int) error
	SetTaskLoopTime(d time.Duration) error
	SetTaskRetry(n int) error
}

// defaultDebounce mirrors the donor's own file-watch debounce default.
const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a PoolConfig file on change and applies any field
// that actually changed to a Setter. Type (EXEC/EVAL) is never
// hot-reloaded: a Pool's execution driver is fixed for its lifetime
// (spec's Worker ownership invariant), so the Watcher does not read the
// `type` field at all; a change to it has no effect on the running pool
// and is not logged.
type Watcher struct {
	path     string
	debounce time.Duration
	setter   Setter
	logger   logging.Logger

	fsw      *fsnotify.Watcher
	done     chan struct{}
	lastHash string
}

// New creates a Watcher bound to path. It does not start watching;
// call Start.
func New(path string, setter Setter, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		setter:   setter,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start performs an initial load (so construction-time values are
// applied even if the file never changes again) and begins watching
// its parent directory for writes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("configwatch: watch %s: %w", dir, err)
	}

	w.reload()
	go w.run()
	return nil
}

// Stop tears down the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	pending := false
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = true
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configwatch: fsnotify error", "error", err)

		case <-ticker.C:
			if pending {
				pending = false
				w.reload()
			}

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("configwatch: read config failed", "path", w.path, "error", err)
		}
		return
	}

	hash := sha256.Sum256(data)
	hexHash := hex.EncodeToString(hash[:])
	if hexHash == w.lastHash {
		return
	}
	w.lastHash = hexHash

	cfg, err := config.ParseConfig(data)
	if err != nil {
		w.logger.Warn("configwatch: parse config failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("configwatch: invalid config", "path", w.path, "error", err)
		return
	}

	w.apply(cfg)
}

func (w *Watcher) apply(cfg *config.PoolConfig) {
	if cfg.MaxThreads > 0 {
		if err := w.setter.SetMaxThreads(cfg.MaxThreads); err != nil {
			w.logger.Warn("configwatch: SetMaxThreads failed", "value", cfg.MaxThreads, "error", err)
		}
	}
	if cfg.MaxTasks > 0 {
		if err := w.setter.SetMaxTasks(cfg.MaxTasks); err != nil {
			w.logger.Warn("configwatch: SetMaxTasks failed", "value", cfg.MaxTasks, "error", err)
		}
	}
	if cfg.TaskLoopTime != "" {
		d, err := time.ParseDuration(cfg.TaskLoopTime)
		if err != nil {
			w.logger.Warn("configwatch: invalid task_loop_time", "value", cfg.TaskLoopTime, "error", err)
		} else if err := w.setter.SetTaskLoopTime(d); err != nil {
			w.logger.Warn("configwatch: SetTaskLoopTime failed", "value", d, "error", err)
		}
	}
	if err := w.setter.SetTaskRetry(cfg.TaskRetry); err != nil {
		w.logger.Warn("configwatch: SetTaskRetry failed", "value", cfg.TaskRetry, "error", err)
	}

	w.logger.Info("configwatch: applied config", "path", w.path)
}

// ParseType translates a PoolConfig's Type field into a runtime.Kind,
// used once at Pool construction time (see Watcher's doc comment on
// why Type is not hot-reloaded).
func ParseType(s string) rtctx.Kind {
	if s == "EVAL" {
		return rtctx.EVAL
	}
	return rtctx.EXEC
}
