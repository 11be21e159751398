package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

//go:generate mockgen -destination=../mocks/mock_runner.go -package=mocks github.com/finnctl/finnctl/pkg/process Runner

// Command describes one external invocation. Env is the complete environment of
// the child; nothing from the orchestrator's own environment leaks in unless listed.
type Command struct {
	Name   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Argv returns the command name followed by its arguments
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command line for logs
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes external commands, blocking until they finish
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran and exited non-zero
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the exit status carried by err: 0 for nil, the child's
// status for an *ExitError, and 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the command and waits for it. Cancelling ctx terminates the
// child together with the processes it started.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	// Commands reading stdin keep the terminal's foreground group
	if c.Stdin == nil {
		release := setProcessGroup(cmd)
		defer release()
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal
			code = 1
		}
		return &ExitError{Command: c.Name, Code: code, Err: err}
	}
	return fmt.Errorf("failed to run %s: %w", c.Name, err)
}
