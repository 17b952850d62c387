package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("runtime: configuration error")
	ErrExecutableNotFound = errors.New("runtime: executable not found")
	ErrRuntimeNotFound    = errors.New("runtime: java runtime not found")
	ErrUnknownMode        = errors.New("runtime: unknown mode")
)

// ExitError is the engine's own exit signal. Its status becomes the
// process exit code.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("runtime: exited with status %d", e.Status)
}

// InvocationError wraps any other failure raised while the wrapped runtime
// was starting or running.
type InvocationError struct {
	Cause error
}

func (e *InvocationError) Error() string {
	if e.Cause == nil {
		return "runtime: invocation failed"
	}
	return "runtime: invocation failed: " + e.Cause.Error()
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// RootCause follows the Unwrap chain to its last link. Joined errors end the
// walk since they have no single cause.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil || next == err {
			return err
		}
		err = next
	}
	return nil
}

// Chain lists err followed by every error it wraps, outermost first.
func Chain(err error) []error {
	var out []error
	for err != nil {
		out = append(out, err)
		next := errors.Unwrap(err)
		if next == err {
			break
		}
		err = next
	}
	return out
}

// outcomeOf classifies the error returned by an engine or JVM run.
func outcomeOf(err error) (Outcome, error) {
	if err == nil {
		return Outcome{}, nil
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return Outcome{Status: exit.Status, Present: true}, nil
	}
	var inv *InvocationError
	if errors.As(err, &inv) {
		return Outcome{}, err
	}
	return Outcome{}, &InvocationError{Cause: err}
}
