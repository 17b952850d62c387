package tools

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// DefaultWaitDelay is the grace period between the stop signal and a kill.
const DefaultWaitDelay = 5 * time.Second

// Command describes one child process. A nil Env inherits nothing from the
// caller; callers assemble the environment explicitly.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CommandRunner abstracts child process execution for runtime engines.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (int, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct {
	WaitDelay time.Duration
}

// Run starts the command and waits for it. A non-zero exit is reported as a
// status with a nil error; err is reserved for failures to run at all.
func (r ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctxErr := ctx.Err(); ctxErr != nil && exitErr.ExitCode() < 0 {
			return -1, ctxErr
		}
		return exitErr.ExitCode(), nil
	}

	exitCode := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return exitCode, err
}
