// Package errors defines the sentinel error kinds used across docalign and
// maps them to process exit codes, mirroring the teacher platform's
// sentinel-error + AppError wrapper pattern (there adapted from HTTP status
// codes to process exit codes).
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage indicates a missing or invalid CLI argument (spec.md §7).
	ErrUsage = errors.New("usage error")
	// ErrIO indicates an input path could not be opened or read.
	ErrIO = errors.New("i/o error")
	// ErrInvariantViolation indicates a fatal internal invariant failed,
	// e.g. the document count changing between passes.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrChildProcess indicates a subprocess collaborator exited nonzero.
	ErrChildProcess = errors.New("child process failure")
)

// AppError pairs a sentinel error kind with a human-readable message and
// the exit code it should produce.
type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps sentinel with a message and exit code.
func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, ExitCode: exitCode}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), ExitCode: exitCode}
}

// ExitCode maps an error to the process exit code it should produce,
// per spec.md §7: 0 success, 1 usage, 2 I/O, 3 invariant violation,
// 4 child process failure, 1 for anything unrecognized (treated as usage).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	switch {
	case errors.Is(err, ErrUsage):
		return 1
	case errors.Is(err, ErrIO):
		return 2
	case errors.Is(err, ErrInvariantViolation):
		return 3
	case errors.Is(err, ErrChildProcess):
		return 4
	default:
		return 1
	}
}
