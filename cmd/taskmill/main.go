// Command taskmill runs a standalone worker-thread pool: it loads a
// PoolConfig, constructs a Pool against either an EXEC (subprocess) or
// EVAL (in-process) execution body, optionally hot-reloads its config
// file, and serves until interrupted.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/butter-bot-machines/taskmill/pkg/config"
	"github.com/butter-bot-machines/taskmill/pkg/config/env"
	"github.com/butter-bot-machines/taskmill/pkg/configwatch"
	"github.com/butter-bot-machines/taskmill/pkg/logging"
	slogging "github.com/butter-bot-machines/taskmill/pkg/logging/slog"
	"github.com/butter-bot-machines/taskmill/pkg/pool"
	procos "github.com/butter-bot-machines/taskmill/pkg/process/os"
	rtctx "github.com/butter-bot-machines/taskmill/pkg/runtime"
	"github.com/butter-bot-machines/taskmill/pkg/runtime/memctx"
	"github.com/butter-bot-machines/taskmill/pkg/runtime/procctx"
	"github.com/butter-bot-machines/taskmill/pkg/timing"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "taskmill.yaml", "path to the pool config file")
	execBody := flag.String("exec", "", "EXEC mode: path to the subprocess executed per task")
	watch := flag.Bool("watch", true, "hot-reload the config file while running")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	logger := slogging.NewLogger(logging.LevelInfo, os.Stdout)

	mgr := config.NewManager(*configPath)
	if err := mgr.Load(); err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	mgr.ApplyEnvOverrides(env.New())
	cfg := mgr.GetConfig()

	opts := pool.Options{
		LazyLoad:   cfg.LazyLoad,
		MaxThreads: cfg.MaxThreads,
		MaxTasks:   cfg.MaxTasks,
		TaskRetry:  cfg.TaskRetry,
		Logger:     logger,
		Clock:      timing.New(),
		Type:       configwatch.ParseType(cfg.Type),
	}
	if cfg.TaskLoopTime != "" {
		if d, err := time.ParseDuration(cfg.TaskLoopTime); err == nil {
			opts.TaskLoopTime = d
		}
	}

	execContent := *execBody
	if execContent != "" {
		opts.Type = rtctx.EXEC
		procMgr := procos.NewManager(opts.Clock)
		opts.RuntimeFactory = func(body string, kind rtctx.Kind) (rtctx.Context, error) {
			return procctx.New(procMgr, procMgr.GetDefaultLimits(), body, kind)
		}
	} else {
		reg := memctx.NewRegistry()
		registerBuiltins(reg)
		execContent = "echo"
		opts.RuntimeFactory = func(body string, kind rtctx.Kind) (rtctx.Context, error) {
			return memctx.New(reg, body, kind)
		}
	}

	p, err := pool.NewPool(execContent, opts)
	if err != nil {
		logger.Error("failed to construct pool", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	if *watch {
		w, err := configwatch.New(*configPath, p, logger)
		if err != nil {
			logger.Error("failed to start config watcher", "error", err)
		} else if err := w.Start(); err != nil {
			logger.Error("failed to start config watcher", "error", err)
		} else {
			defer w.Stop()
		}
	}

	go dispatchStdinLines(p, logger)
	go logLifecycleEvents(p, logger)

	logger.Info("taskmill started", "config", *configPath, "maxThreads", opts.MaxThreads, "type", opts.Type.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
}

// registerBuiltins wires a couple of demo EVAL bodies so `taskmill` is
// runnable out of the box without an external subprocess.
func registerBuiltins(reg *memctx.Registry) {
	reg.Register("echo", func(payload interface{}) (interface{}, error) { return payload, nil })
	reg.Register("sleep", func(payload interface{}) (interface{}, error) {
		time.Sleep(50 * time.Millisecond)
		return payload, nil
	})
}

// dispatchStdinLines treats each line of stdin as a JSON payload to
// submit, a convenience for piping work into the pool from a shell.
func dispatchStdinLines(p *pool.Pool, logger logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var payload interface{}
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			logger.Warn("invalid JSON line, skipping", "error", err)
			continue
		}
		if _, err := p.Send(payload, pool.SendOptions{}); err != nil {
			logger.Error("send failed", "error", err)
		}
	}
}

func logLifecycleEvents(p *pool.Pool, logger logging.Logger) {
	for ev := range p.Events() {
		logger.Warn(ev.Kind.String(), "workerId", ev.WorkerID, "taskId", ev.TaskID, "error", ev.Err)
	}
}
