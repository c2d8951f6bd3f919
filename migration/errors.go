package migration

import (
	"fmt"
	"strings"
)

// DiscoveryError is returned when a migration definition can't be loaded.
// The definition is excluded from the registry.
type DiscoveryError struct {
	// Source identifies the definition, e.g. a file path.
	Source string
	Msg    string
	Err    error
}

// Error returns a string representation of the error.
func (e *DiscoveryError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Err)
		} else {
			msg = e.Err.Error()
		}
	}
	return fmt.Sprintf("failed loading migration %s: %s", e.Source, msg)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// UnknownTargetError is returned when the requested target migration doesn't
// exist in the registry.
type UnknownTargetError struct {
	Name string
}

// Error returns a string representation of the error.
func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("migration '%s' doesn't exist", e.Name)
}

// InconsistentStateError is returned when the applied migrations don't form a
// contiguous prefix of the registered migrations.
type InconsistentStateError struct {
	// Applied is the name of the offending applied record.
	Applied string
	// Expected is the registered migration at the same position, if any.
	Expected string
	// Missing is true if the applied migration isn't registered at all.
	Missing bool
}

// Error returns a string representation of the error.
func (e *InconsistentStateError) Error() string {
	var sb strings.Builder
	sb.WriteString("inconsistent migration state: ")
	switch {
	case e.Missing:
		fmt.Fprintf(&sb, "applied migration '%s' is not registered", e.Applied)
	default:
		fmt.Fprintf(&sb, "applied migration '%s' found where '%s' was expected", e.Applied, e.Expected)
	}

	return sb.String()
}

// StepExecutionError is returned when running a migration, or updating its
// applied record, fails.
type StepExecutionError struct {
	Name      string
	Direction Direction
	Err       error
}

// Error returns a string representation of the error.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("failed running migration '%s' %s: %s",
		e.Name, strings.ToLower(string(e.Direction)), e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
