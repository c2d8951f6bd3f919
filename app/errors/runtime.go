package errors

import (
	"errors"
	"fmt"
	"log/slog"
)

// RuntimeError is an error that occurred while running a command. It
// optionally includes a hint for the user on how to resolve it.
type RuntimeError struct {
	msg   string
	cause error
	hint  string
}

// NewRuntimeError returns a new RuntimeError. cause and hint are optional.
func NewRuntimeError(msg string, cause error, hint string) *RuntimeError {
	return &RuntimeError{msg: msg, cause: cause, hint: hint}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap allows errors.Is and errors.As to work.
func (e *RuntimeError) Unwrap() error {
	return e.cause
}

// Hint returns the hint for resolving the error.
func (e *RuntimeError) Hint() string {
	return e.hint
}

// Errorf logs the error using the default slog logger, followed by its hint,
// if any. It's meant to be used at the top level of the application, before
// exiting.
func Errorf(err error) {
	Log(err)

	var rerr *RuntimeError
	if errors.As(err, &rerr) && rerr.hint != "" {
		slog.Info(rerr.hint)
	}
}
