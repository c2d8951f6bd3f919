package errors

import (
	"errors"
	"maps"
)

// StructuredError is an error with an optional cause and metadata, which are
// rendered as slog attributes by Log.
type StructuredError struct {
	err      error
	cause    error
	metadata map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return e.err.Error()
}

// Unwrap allows errors.Is and errors.As to match both the error and its cause.
func (e *StructuredError) Unwrap() []error {
	var errs []error
	if e.err != nil {
		errs = append(errs, e.err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the cause of the error, if any.
func (e *StructuredError) Cause() error {
	return e.cause
}

// Metadata returns a copy of the error metadata.
func (e *StructuredError) Metadata() map[string]any {
	return maps.Clone(e.metadata)
}

// NewWithCause creates a new StructuredError from a message, with a cause and
// optional metadata given as key-value pairs.
func NewWithCause(msg string, cause error, fields ...any) *StructuredError {
	return WithCause(errors.New(msg), cause, fields...)
}

// With adds metadata to err. If err is already a StructuredError, the new
// fields are merged into its metadata, overriding existing keys.
func With(err error, fields ...any) *StructuredError {
	return build(err, nil, fields)
}

// WithCause is like With, but also sets the cause of the error.
func WithCause(err, cause error, fields ...any) *StructuredError {
	return build(err, cause, fields)
}

func build(err, cause error, fields []any) *StructuredError {
	if len(fields)%2 != 0 {
		panic("an even number of fields is required")
	}

	se := &StructuredError{err: err, cause: cause, metadata: make(map[string]any, len(fields)/2)}
	if prev, ok := err.(*StructuredError); ok { //nolint:errorlint // Only direct values are merged.
		se.err = prev.err
		if cause == nil {
			se.cause = prev.cause
		}
		maps.Copy(se.metadata, prev.metadata)
	}

	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			panic("keys must be strings")
		}
		se.metadata[key] = fields[i+1]
	}

	return se
}
