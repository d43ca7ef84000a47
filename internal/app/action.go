package app

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"crontick/internal/config"
	logx "crontick/pkg/logx"
)

const maxOutputLog = 512

// executor runs exec actions off the poll goroutine. A trigger whose
// previous command is still running skips the new firing.
type executor struct {
	ctx context.Context
	log logx.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]bool
}

func newExecutor(ctx context.Context, log logx.Logger) *executor {
	return &executor{ctx: ctx, log: log, running: map[string]bool{}}
}

// spawn starts argv in the background and returns at once. It reports
// whether the command was started.
func (e *executor) spawn(name string, argv []string, timeout time.Duration) bool {
	e.mu.Lock()
	if e.running[name] {
		e.mu.Unlock()
		e.log.Warn("previous run still active; skipping", logx.String("trigger", name))
		return false
	}
	e.running[name] = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, name)
			e.mu.Unlock()
		}()
		e.run(name, argv, timeout)
	}()
	return true
}

func (e *executor) run(name string, argv []string, timeout time.Duration) {
	ctx := e.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	log := e.log.With(logx.String("trigger", name), logx.String("command", argv[0]))

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	took := time.Since(start)

	if len(out) > 0 {
		log.Debug("command output", logx.String("output", truncate(strings.TrimSpace(string(out)), maxOutputLog)))
	}
	switch {
	case err == nil:
		log.Info("command finished", logx.Duration("took", took))
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn("command timed out", logx.Duration("timeout", timeout), logx.Err(err))
	case e.ctx.Err() != nil:
		log.Debug("command cancelled by shutdown", logx.Err(err))
	default:
		log.Warn("command failed", logx.Duration("took", took), logx.Err(err))
	}
}

// wait blocks until every spawned command has exited or ctx is done.
func (e *executor) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newAction builds the zero-argument action for a trigger.
func newAction(tc config.TriggerConfig, ex *executor, log logx.Logger) (func(), error) {
	switch tc.Action.Type {
	case "", config.ActionLog:
		msg := tc.Action.Message
		if msg == "" {
			msg = "trigger fired"
		}
		log = log.With(logx.String("trigger", tc.Name))
		return func() { log.Info(msg) }, nil
	case config.ActionExec:
		if len(tc.Action.Command) == 0 {
			return nil, fmt.Errorf("trigger %q: exec action without command", tc.Name)
		}
		timeout, err := config.ParseDurationField("action.timeout", tc.Action.Timeout)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", tc.Name, err)
		}
		argv := append([]string(nil), tc.Action.Command...)
		name := tc.Name
		return func() { ex.spawn(name, argv, timeout) }, nil
	default:
		return nil, fmt.Errorf("trigger %q: unknown action type %q", tc.Name, tc.Action.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
