package migration_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/dbmigrate/migration"
	"go.hackfix.me/dbmigrate/migration/mock"
)

func newTestExecutor(t *testing.T) (*migration.Executor, *migration.Store, *mock.Recorder) {
	t.Helper()

	d := newTestDB(t)
	store := newTestStore(t, d)
	exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))

	return exec, store, mock.New()
}

func TestExecutorRun(t *testing.T) {
	t.Parallel()

	t.Run("ok/up_then_down", func(t *testing.T) {
		t.Parallel()

		d := newTestDB(t)
		store := newTestStore(t, d)
		exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))
		rec := mock.New()
		all := rec.Migrations("m1", "m2")

		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)
		res := exec.Run(t.Context(), plan)
		require.NoError(t, res.Err)
		assert.Equal(t, 2, res.Completed())
		assert.Equal(t, []string{"m1", "m2"}, appliedNames(t, store, d))
		assert.True(t, tableExists(t, d, mock.TableName("m1")))
		assert.True(t, tableExists(t, d, mock.TableName("m2")))

		applied, err := store.Applied(t.Context(), d)
		require.NoError(t, err)
		plan, err = migration.NewPlan(applied, all, migration.None())
		require.NoError(t, err)
		res = exec.Run(t.Context(), plan)
		require.NoError(t, res.Err)
		require.Len(t, res.Steps, 2)
		assert.Equal(t, "m2", res.Steps[0].Name)
		assert.Equal(t, migration.Down, res.Steps[0].Direction)
		assert.Equal(t, "m1", res.Steps[1].Name)
		assert.Empty(t, appliedNames(t, store, d))
		assert.False(t, tableExists(t, d, mock.TableName("m1")))
		assert.False(t, tableExists(t, d, mock.TableName("m2")))

		assert.Equal(t, []string{"m1:Up", "m2:Up", "m2:Down", "m1:Down"}, rec.Calls())
	})

	t.Run("ok/empty_plan", func(t *testing.T) {
		t.Parallel()

		exec, _, _ := newTestExecutor(t)
		res := exec.Run(t.Context(), &migration.Plan{Target: migration.Latest()})
		require.NoError(t, res.Err)
		assert.NotNil(t, res.Steps)
		assert.Empty(t, res.Steps)
	})

	t.Run("ok/nil_down", func(t *testing.T) {
		t.Parallel()

		d := newTestDB(t)
		store := newTestStore(t, d)
		exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))
		m := mock.New().Migration("m1")
		m.Down = nil
		all := []*migration.Migration{m}

		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)
		require.NoError(t, exec.Run(t.Context(), plan).Err)

		plan, err = migration.NewPlan(records("m1"), all, migration.None())
		require.NoError(t, err)
		res := exec.Run(t.Context(), plan)
		require.NoError(t, res.Err)
		require.Len(t, res.Steps, 1)
		assert.Equal(t, migration.StatusSuccess, res.Steps[0].Status)
		assert.Empty(t, appliedNames(t, store, d))
		// The schema change is left in place.
		assert.True(t, tableExists(t, d, mock.TableName("m1")))
	})

	t.Run("err/stops_at_first_failure", func(t *testing.T) {
		t.Parallel()

		d := newTestDB(t)
		store := newTestStore(t, d)
		exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))
		rec := mock.New()
		failErr := errors.New("boom")
		rec.FailOn("m2", migration.Up, failErr)
		all := rec.Migrations("m1", "m2", "m3")

		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)
		res := exec.Run(t.Context(), plan)

		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, failErr)
		var stepErr *migration.StepExecutionError
		require.ErrorAs(t, res.Err, &stepErr)
		assert.Equal(t, "m2", stepErr.Name)
		assert.Equal(t, migration.Up, stepErr.Direction)
		assert.EqualError(t, res.Err, "failed running migration 'm2' up: boom")

		require.Len(t, res.Steps, 2)
		assert.Equal(t, "m1", res.Steps[0].Name)
		assert.Equal(t, migration.StatusSuccess, res.Steps[0].Status)
		assert.NoError(t, res.Steps[0].Err)
		assert.Equal(t, "m2", res.Steps[1].Name)
		assert.Equal(t, migration.StatusError, res.Steps[1].Status)
		assert.ErrorIs(t, res.Steps[1].Err, failErr)
		assert.Equal(t, 1, res.Completed())
		assert.Equal(t, res.Err, res.FirstError())

		assert.Equal(t, []string{"m1:Up", "m2:Up"}, rec.Calls())
		assert.Equal(t, []string{"m1"}, appliedNames(t, store, d))
		assert.True(t, tableExists(t, d, mock.TableName("m1")))
		assert.False(t, tableExists(t, d, mock.TableName("m2")), "failed step must be rolled back")
		assert.False(t, tableExists(t, d, mock.TableName("m3")))
	})

	t.Run("err/down_failure", func(t *testing.T) {
		t.Parallel()

		d := newTestDB(t)
		store := newTestStore(t, d)
		exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))
		rec := mock.New()
		rec.FailOn("m2", migration.Down, errors.New("boom"))
		all := rec.Migrations("m1", "m2", "m3")

		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)
		require.NoError(t, exec.Run(t.Context(), plan).Err)

		plan, err = migration.NewPlan(records("m1", "m2", "m3"), all, migration.None())
		require.NoError(t, err)
		res := exec.Run(t.Context(), plan)
		assert.EqualError(t, res.Err, "failed running migration 'm2' down: boom")
		require.Len(t, res.Steps, 2)
		assert.Equal(t, []string{"m1", "m2"}, appliedNames(t, store, d))
		assert.True(t, tableExists(t, d, mock.TableName("m2")))
		assert.False(t, tableExists(t, d, mock.TableName("m3")))
	})

	t.Run("err/record_conflict", func(t *testing.T) {
		t.Parallel()

		d := newTestDB(t)
		store := newTestStore(t, d)
		exec := migration.NewExecutor(d, store, slog.New(slog.DiscardHandler))
		all := mock.New().Migrations("m1")
		// Simulate a concurrent run having applied it in the meantime.
		require.NoError(t, store.RecordApplied(t.Context(), d, "m1"))

		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)
		res := exec.Run(t.Context(), plan)
		require.Error(t, res.Err)
		assert.ErrorContains(t, res.Err, "already exists")
		assert.False(t, tableExists(t, d, mock.TableName("m1")))
	})

	t.Run("err/cancelled", func(t *testing.T) {
		t.Parallel()

		exec, _, rec := newTestExecutor(t)
		all := rec.Migrations("m1", "m2")
		plan, err := migration.NewPlan(nil, all, migration.Latest())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		res := exec.Run(ctx, plan)
		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Empty(t, res.Steps)
		assert.Empty(t, rec.Calls())
	})
}
