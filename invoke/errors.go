package invoke

import (
	"fmt"
	"strings"
)

// UnsupportedOperationError is returned for requests of an unknown type.
type UnsupportedOperationError struct {
	Type string
}

// Error returns a string representation of the error.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation type: '%s'", e.Type)
}

// InvalidRequestError is returned when the request payload can't be decoded or
// doesn't match the request schema.
type InvalidRequestError struct {
	// Details lists the schema violations, if any.
	Details []string
	Err     error
}

// Error returns a string representation of the error.
func (e *InvalidRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request: %s", e.Err)
	}
	return fmt.Sprintf("invalid request: %s", strings.Join(e.Details, "; "))
}

// Unwrap returns the underlying error for error unwrapping.
func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}
