package migration

import (
	"fmt"
	"slices"
	"strings"
)

type targetKind int

const (
	targetLatest targetKind = iota
	targetName
	targetNone
)

// Target is the requested migration state.
type Target struct {
	kind targetKind
	name string
}

// Latest targets the state where every registered migration is applied.
func Latest() Target {
	return Target{kind: targetLatest}
}

// To targets the state where the named migration is the last applied one.
func To(name string) Target {
	return Target{kind: targetName, name: name}
}

// None targets the state where no migration is applied.
func None() Target {
	return Target{kind: targetNone}
}

// Name returns the name of the target migration, if any.
func (t Target) Name() string {
	return t.name
}

func (t Target) String() string {
	switch t.kind {
	case targetName:
		return fmt.Sprintf("'%s'", t.name)
	case targetNone:
		return "none"
	default:
		return "latest"
	}
}

// Step is a single migration run in one direction.
type Step struct {
	Migration *Migration
	Direction Direction
}

// Plan is the ordered sequence of steps that moves the applied state to the
// target.
type Plan struct {
	Target Target
	Steps  []Step
}

// Empty returns true if the applied state is already at the target.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// NewPlan computes the steps needed to move from the applied state to target.
// all must be sorted by name, as returned by List. It fails with an
// *InconsistentStateError if the applied migrations don't form a contiguous
// prefix of all, and with an *UnknownTargetError if the target migration isn't
// registered.
func NewPlan(applied []Record, all []*Migration, target Target) (*Plan, error) {
	current, err := position(applied, all)
	if err != nil {
		return nil, err
	}

	targetPos := len(all)
	switch target.kind {
	case targetNone:
		targetPos = 0
	case targetName:
		idx := slices.IndexFunc(all, func(m *Migration) bool { return m.Name == target.name })
		if idx < 0 {
			return nil, &UnknownTargetError{Name: target.name}
		}
		targetPos = idx + 1
	case targetLatest:
	}

	plan := &Plan{Target: target}
	switch {
	case targetPos > current:
		for _, m := range all[current:targetPos] {
			plan.Steps = append(plan.Steps, Step{Migration: m, Direction: Up})
		}
	case targetPos < current:
		for i := current - 1; i >= targetPos; i-- {
			plan.Steps = append(plan.Steps, Step{Migration: all[i], Direction: Down})
		}
	}

	return plan, nil
}

// position returns the number of applied migrations, after checking that they
// match the first registered migrations one for one.
func position(applied []Record, all []*Migration) (int, error) {
	names := make([]string, len(applied))
	for i, rec := range applied {
		names[i] = rec.Name
	}
	slices.SortFunc(names, strings.Compare)

	for i, name := range names {
		if i < len(all) && all[i].Name == name {
			continue
		}

		stateErr := &InconsistentStateError{Applied: name}
		if i < len(all) {
			stateErr.Expected = all[i].Name
		}
		if !slices.ContainsFunc(all, func(m *Migration) bool { return m.Name == name }) {
			stateErr.Missing = true
		}

		return 0, stateErr
	}

	return len(names), nil
}
