// Package jobs runs the external ETL process under a wall-clock timeout.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"etl-backend/internal/shared/telemetry"
)

const (
	DefaultTimeout = 60 * time.Second
	// waitDelay bounds how long Wait keeps draining pipes held open by
	// grandchildren after the direct child exits.
	waitDelay = 2 * time.Second
)

var (
	ErrTimeout   = errors.New("etl process timed out")
	ErrNoCommand = errors.New("etl command is not configured")
)

// StartError reports a process that could not be spawned.
type StartError struct {
	Command string
	Err     error
}

func (e StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Command, e.Err)
}

func (e StartError) Unwrap() error { return e.Err }

// Result holds what a finished (or timed out) process left behind.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Diagnostics returns stderr when it has content, stdout otherwise.
func (r Result) Diagnostics() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner launches Command in Dir. OutputPath is removed before every start
// so a stale file is never mistaken for fresh output.
type Runner struct {
	Command    []string
	Dir        string
	OutputPath string
	Timeout    time.Duration

	kill func(*os.Process) error
}

// Run starts the process and waits for it to exit or for the timeout. The
// exit code is recorded, not judged. ctx is only used for log correlation:
// cancelling it does not stop the process.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if len(r.Command) == 0 || strings.TrimSpace(r.Command[0]) == "" {
		return Result{}, ErrNoCommand
	}
	if r.OutputPath != "" {
		if err := os.Remove(r.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("remove stale output: %w", err)
		}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	kill := r.kill
	if kill == nil {
		kill = func(p *os.Process) error { return p.Kill() }
	}

	stdout, stderr := &capture{}, &capture{}
	cmd := exec.Command(r.Command[0], r.Command[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, StartError{Command: strings.Join(r.Command, " "), Err: err}
	}
	telemetry.Info("etl.process.started", map[string]any{
		"run_id":     runID(ctx),
		"pid":        cmd.Process.Pid,
		"timeout_ms": timeout.Milliseconds(),
	})

	done := newCompletion()
	exited := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		done.settle(outcome{timedOut: true}, stdout, stderr, func() {
			if err := kill(cmd.Process); err != nil {
				telemetry.Warn("etl.process.kill_failed", map[string]any{"run_id": runID(ctx), "err": err})
			}
		})
	})
	go func() {
		defer close(exited)
		err := cmd.Wait()
		timer.Stop()
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			telemetry.Warn("etl.process.wait_failed", map[string]any{"run_id": runID(ctx), "err": err})
		}
		done.settle(outcome{exitCode: code}, stdout, stderr, nil)
	}()

	out := done.wait()
	res := Result{
		Stdout:   out.stdout,
		Stderr:   out.stderr,
		ExitCode: out.exitCode,
		Duration: time.Since(started),
	}
	if out.timedOut {
		// The killed process must be reaped before the caller lets the
		// next run touch the output file.
		<-exited
		res.ExitCode = -1
		telemetry.Warn("etl.process.timed_out", map[string]any{
			"run_id":      runID(ctx),
			"duration_ms": res.Duration.Milliseconds(),
		})
		return res, ErrTimeout
	}
	telemetry.Info("etl.process.exited", map[string]any{
		"run_id":      runID(ctx),
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

type runIDKey struct{}

// WithRunID tags ctx so process log lines carry the run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
