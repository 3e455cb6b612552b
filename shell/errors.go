package shell

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInputClosed is returned when sending to a shell whose input has already been ended.
var ErrInputClosed = errors.New("shell input is closed")

// MalformedMessageError is reported for a line of worker output that could not be decoded.
// It does not interrupt the stream.
type MalformedMessageError struct {
	Line string
	// Args are the command-line arguments of the worker that produced the line.
	Args []string
	Err  error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("invalid or malformed message: %s", e.Line)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// WorkerExecutionError is reported when the worker wrote to stderr, or exited with a non-zero code without doing so.
type WorkerExecutionError struct {
	Program string
	Args    []string
	// Stderr is the full diagnostic output of the worker, verbatim.
	Stderr   string
	ExitCode int
}

func (e *WorkerExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("an unexpected error occurred while executing %q >> %s", e.command(), strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%q failed with exit code %d", e.command(), e.ExitCode)
}

func (e *WorkerExecutionError) command() string {
	return strings.Join(append([]string{e.Program}, e.Args...), " ")
}
