// Package tools invokes the external programs the pipeline is built on:
// the tide/astronomy provider, the calendar typesetter, the image converter
// and compositor, and the PostScript-to-PDF renderer.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Command is a single external program invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands. It blocks until the process exits or ctx ends.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Error is a failed invocation with its diagnostic output.
type Error struct {
	Command  Command
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Command.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the captured tool output for error reports.
func (e *Error) Detail() string { return e.Output }

// ErrTimeout is wrapped by Error when the context deadline killed the process.
var ErrTimeout = errors.New("timed out")

// ExecRunner runs commands as local subprocesses.
type ExecRunner struct {
	Logger *slog.Logger
	// WaitDelay bounds how long Run waits for output pipes after the
	// process was killed.
	WaitDelay time.Duration
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger, WaitDelay: 5 * time.Second}
}

// Run executes cmd and captures stdout and stderr separately.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.Logger != nil {
		r.Logger.Debug("executing tool", "name", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, res.Duration.Round(time.Millisecond))
	}
	return res, &Error{
		Command:  cmd,
		ExitCode: res.ExitCode,
		Output:   combined(res),
		Err:      err,
	}
}

func combined(res Result) string {
	out := strings.TrimSpace(res.Stderr)
	if s := strings.TrimSpace(res.Stdout); s != "" {
		if out != "" {
			out += "\n"
		}
		out += s
	}
	return out
}
