package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.hackfix.me/dbmigrate/db/types"
)

// Executor runs plans against the database, one step at a time.
type Executor struct {
	db      types.DB
	store   *Store
	logger  *slog.Logger
	timeNow func() time.Time
}

// NewExecutor returns a new Executor.
func NewExecutor(db types.DB, store *Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, store: store, logger: logger, timeNow: store.timeNow}
}

// Run executes the plan steps in order. Each step runs in its own
// transaction, together with the update of its applied record. Execution
// stops at the first failed step; steps that succeeded before it stay
// committed and are not rolled back.
func (e *Executor) Run(ctx context.Context, plan *Plan) *Result {
	res := &Result{Steps: make([]StepResult, 0, len(plan.Steps))}
	if plan.Empty() {
		return res
	}

	if !types.TransactionalDDL(e.db.Engine()) {
		e.logger.Warn("schema changes can't be rolled back on this engine; a failed step may be partially applied",
			"engine", e.db.Engine())
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("migration run interrupted: %w", err)
			return res
		}

		sr := e.runStep(ctx, step)
		res.Steps = append(res.Steps, sr)
		if sr.Status == StatusError {
			res.Err = sr.Err
			return res
		}
	}

	return res
}

func (e *Executor) runStep(ctx context.Context, step Step) StepResult {
	m := step.Migration
	logger := e.logger.With("migration", m.Name, "direction", step.Direction)
	logger.Debug("running migration")

	start := e.timeNow()
	sr := StepResult{Name: m.Name, Direction: step.Direction, Status: StatusSuccess}

	if err := e.inTx(ctx, func(tx types.Tx) error {
		if step.Direction == Up {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			return e.store.RecordApplied(ctx, tx, m.Name)
		}

		if m.Down != nil {
			if err := m.Down(ctx, tx); err != nil {
				return err
			}
		} else {
			logger.Warn("migration has no down operation; only removing its applied record")
		}
		return e.store.RecordReverted(ctx, tx, m.Name)
	}); err != nil {
		sr.Status = StatusError
		sr.Err = &StepExecutionError{Name: m.Name, Direction: step.Direction, Err: err}
		sr.Duration = e.timeNow().Sub(start)
		logger.Error("migration failed", "error", err)
		return sr
	}

	sr.Duration = e.timeNow().Sub(start)
	if step.Direction == Up {
		logger.Info("applied migration", "duration", sr.Duration)
	} else {
		logger.Info("reverted migration", "duration", sr.Duration)
	}

	return sr
}

// inTx runs fn in a new transaction, and commits it if fn succeeds.
func (e *Executor) inTx(ctx context.Context, fn func(tx types.Tx) error) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped by the DB implementation.
	}

	if err = fn(tx); err != nil {
		// Use a fresh context so that the rollback goes through even if ctx was
		// cancelled.
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	return tx.Commit(ctx) //nolint:wrapcheck // Already wrapped by the DB implementation.
}
