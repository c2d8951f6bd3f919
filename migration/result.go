package migration

import (
	"database/sql"
	"encoding/json"
	"time"
)

// StepStatus is the outcome of a single step.
type StepStatus string

// Step outcomes.
const (
	StatusSuccess StepStatus = "Success"
	StatusError   StepStatus = "Error"
)

// StepResult is the outcome of running a single step.
type StepResult struct {
	Name      string
	Direction Direction
	Status    StepStatus
	Err       error
	Duration  time.Duration
}

// Result is the outcome of running a plan. Steps contains every attempted
// step in order, including the failed one, if any.
type Result struct {
	Err   error
	Steps []StepResult
}

// FirstError returns the overall error of the run, or the error of the first
// failed step if the overall error isn't set.
func (r *Result) FirstError() error {
	if r.Err != nil {
		return r.Err
	}
	for _, s := range r.Steps {
		if s.Status == StatusError {
			return s.Err
		}
	}
	return nil
}

// Completed returns the number of steps that succeeded.
func (r *Result) Completed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StatusSuccess {
			n++
		}
	}
	return n
}

type stepResultJSON struct {
	MigrationName string     `json:"migrationName"`
	Direction     Direction  `json:"direction"`
	Status        StepStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
}

type resultJSON struct {
	Error   string           `json:"error,omitempty"`
	Results []stepResultJSON `json:"results"`
}

// MarshalJSON implements custom JSON marshaling to render errors as messages.
func (r *Result) MarshalJSON() ([]byte, error) {
	w := resultJSON{Results: make([]stepResultJSON, 0, len(r.Steps))}
	if r.Err != nil {
		w.Error = r.Err.Error()
	}
	for _, s := range r.Steps {
		sw := stepResultJSON{MigrationName: s.Name, Direction: s.Direction, Status: s.Status}
		if s.Err != nil {
			sw.Error = s.Err.Error()
		}
		w.Results = append(w.Results, sw)
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// Status describes a registered migration and whether it's applied.
type Status struct {
	Name      string
	Applied   bool
	AppliedAt sql.Null[time.Time]
	Checksum  string
}

type statusJSON struct {
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
	Checksum  string     `json:"checksum,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to omit the applied time of
// migrations that aren't applied.
func (s Status) MarshalJSON() ([]byte, error) {
	w := statusJSON{Name: s.Name, Applied: s.Applied, Checksum: s.Checksum}
	if s.AppliedAt.Valid {
		w.AppliedAt = &s.AppliedAt.V
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}
