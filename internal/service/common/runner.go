//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command is a single external program invocation.
type Command struct {
	// Dir is the working directory of the process; empty means the current one.
	Dir string
	// Name is the executable, resolved through PATH when it has no separator.
	Name string
	// Args are passed to the executable verbatim, without shell expansion.
	Args []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Output is the combined stdout and stderr.
	Output []byte
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner runs external commands.
// A non-zero exit is reported through Result; an error means the command could not run.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct {
	// timeout bounds every call; zero disables it.
	timeout time.Duration
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithTimeout bounds the duration of every command.
func WithTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// errCommandRequired is returned when a command has no executable name.
var errCommandRequired = errors.New("command name must be provided")

// NewExecRunner creates a subprocess runner.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := new(ExecRunner)
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes cmd and captures its combined output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, errCommandRequired
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	process := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec // Tools come from trusted configuration.
	process.Dir = cmd.Dir

	output, err := process.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("run %s: %w", cmd.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Result{ExitCode: exitErr.ExitCode(), Output: output}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("run %s: %w", cmd.Name, err)
	}

	return &Result{Output: output}, nil
}
