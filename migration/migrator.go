package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.hackfix.me/dbmigrate/db/types"
)

// Migrator reconciles the applied state of a database with the registered
// migrations.
type Migrator struct {
	db        types.DB
	providers []Provider
	table     string
	timeNow   func() time.Time
	logger    *slog.Logger
	store     *Store
	executor  *Executor
}

// New returns a new Migrator for the migrations of the given providers.
func New(db types.DB, providers []Provider, opts ...Option) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if len(providers) == 0 {
		return nil, errors.New("at least one migration provider is required")
	}

	m := &Migrator{db: db, providers: providers}

	opts = append(DefaultOptions(), opts...)
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	store, err := NewStore(m.table, m.timeNow)
	if err != nil {
		return nil, err
	}
	m.store = store
	m.executor = NewExecutor(db, store, m.logger)

	return m, nil
}

// Latest applies every migration that isn't applied yet.
func (m *Migrator) Latest(ctx context.Context) (*Result, error) {
	return m.Migrate(ctx, Latest())
}

// To migrates up or down to the named migration.
func (m *Migrator) To(ctx context.Context, name string) (*Result, error) {
	return m.Migrate(ctx, To(name))
}

// Reset rolls back every applied migration.
func (m *Migrator) Reset(ctx context.Context) (*Result, error) {
	return m.Migrate(ctx, None())
}

// Migrate plans and executes the steps needed to reach target. Discovery and
// planning errors are returned before anything is executed. Execution errors
// are reported in the returned Result.
func (m *Migrator) Migrate(ctx context.Context, target Target) (*Result, error) {
	plan, err := m.Plan(ctx, target)
	if err != nil {
		return nil, err
	}

	logger := m.logger.With("target", target.String())
	if plan.Empty() {
		logger.Info("database is already at target")
		return &Result{Steps: []StepResult{}}, nil
	}

	logger.Info("running migrations", "steps", len(plan.Steps))
	res := m.executor.Run(ctx, plan)
	if res.Err != nil {
		logger.Error("migration run failed", "completed_steps", res.Completed(), "error", res.Err)
	} else {
		logger.Info("migration run finished", "completed_steps", res.Completed())
	}

	return res, nil
}

// Plan returns the steps needed to reach target, without executing them. It
// fails if any migration definition couldn't be loaded, since planning with a
// partial registry could skip over the missing migration.
func (m *Migrator) Plan(ctx context.Context, target Target) (*Plan, error) {
	all, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := NewPlan(applied, all, target)
	if err != nil {
		return nil, fmt.Errorf("failed planning migrations to %s: %w", target, err)
	}

	return plan, nil
}

// List returns the status of every registered migration, in name order. If
// some definitions couldn't be loaded, the status of the remaining ones is
// returned along with the discovery error.
func (m *Migrator) List(ctx context.Context) ([]Status, error) {
	if err := m.store.Init(ctx, m.db); err != nil {
		return nil, err
	}

	all, discErr := List(ctx, m.providers...)
	applied, err := m.store.Applied(ctx, m.db)
	if err != nil {
		return nil, err
	}

	appliedAt := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		appliedAt[rec.Name] = rec.AppliedAt
	}

	statuses := make([]Status, 0, len(all))
	for _, mig := range all {
		st := Status{Name: mig.Name, Checksum: mig.Checksum}
		if at, ok := appliedAt[mig.Name]; ok {
			st.Applied = true
			st.AppliedAt.V = at
			st.AppliedAt.Valid = true
		}
		statuses = append(statuses, st)
	}

	if discErr != nil {
		return statuses, fmt.Errorf("failed discovering migrations: %w", discErr)
	}

	return statuses, nil
}

func (m *Migrator) state(ctx context.Context) ([]*Migration, []Record, error) {
	if err := m.store.Init(ctx, m.db); err != nil {
		return nil, nil, err
	}

	all, err := List(ctx, m.providers...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed discovering migrations: %w", err)
	}

	applied, err := m.store.Applied(ctx, m.db)
	if err != nil {
		return nil, nil, err
	}

	return all, applied, nil
}
