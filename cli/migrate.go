package cli

import (
	"errors"
	"fmt"
	"time"

	actx "go.hackfix.me/dbmigrate/app/context"
	aerrors "go.hackfix.me/dbmigrate/app/errors"
	"go.hackfix.me/dbmigrate/migration"
)

// Latest applies all pending migrations.
type Latest struct {
	DryRun bool `help:"Only print the migrations that would be applied."`
}

// Run the latest command.
func (c *Latest) Run(appCtx *actx.Context) error {
	return migrate(appCtx, migration.Latest(), c.DryRun)
}

// To migrates up or down to a specific migration.
type To struct {
	Name   string `arg:"" optional:"" help:"Name of the migration to migrate to. If omitted, all migrations are rolled back."`
	DryRun bool   `help:"Only print the migrations that would be run."`
}

// Run the to command.
func (c *To) Run(appCtx *actx.Context) error {
	target := migration.None()
	if c.Name != "" {
		target = migration.To(c.Name)
	}

	return migrate(appCtx, target, c.DryRun)
}

// List prints the status of all migrations.
type List struct{}

// Run the list command.
func (c *List) Run(appCtx *actx.Context) error {
	m, closeDB, err := newMigrator(appCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	statuses, err := m.List(appCtx.Ctx)
	if err != nil && len(statuses) == 0 {
		return aerrors.NewRuntimeError("failed listing migrations", err, "")
	}

	data := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		appliedAt := "-"
		if st.AppliedAt.Valid {
			appliedAt = st.AppliedAt.V.UTC().Format(time.DateTime)
		}
		checksum := st.Checksum
		if checksum == "" {
			checksum = "-"
		}
		data = append(data, []string{st.Name, appliedAt, checksum})
	}

	if terr := renderTable(appCtx.Stdout, []string{"Name", "Applied At", "Checksum"}, data); terr != nil {
		return aerrors.NewRuntimeError("failed rendering table", terr, "")
	}

	if err != nil {
		// Some definitions couldn't be loaded, but the rest are listed above.
		return aerrors.With(aerrors.NewRuntimeError("failed listing some migrations", err, ""),
			"listed", len(statuses))
	}

	return nil
}

func migrate(appCtx *actx.Context, target migration.Target, dryRun bool) error {
	m, closeDB, err := newMigrator(appCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	if dryRun {
		plan, err := m.Plan(appCtx.Ctx, target)
		if err != nil {
			return aerrors.With(aerrors.NewRuntimeError("failed planning migrations", err, ""),
				"target", target.String(), "dry_run", true)
		}
		return renderPlan(appCtx, plan)
	}

	res, err := m.Migrate(appCtx.Ctx, target)
	if err != nil {
		return aerrors.With(aerrors.NewRuntimeError("failed running migrations", err, ""),
			"target", target.String())
	}

	if rerr := renderResult(appCtx, res); rerr != nil {
		return rerr
	}

	if ferr := res.FirstError(); ferr != nil {
		serr := aerrors.NewWithCause(
			fmt.Sprintf("migration to %s failed", target), ferr,
			"target", target.String(), "completed_steps", res.Completed(),
		)
		var stepErr *migration.StepExecutionError
		if errors.As(ferr, &stepErr) {
			serr = aerrors.With(serr, "failed_migration", stepErr.Name,
				"direction", string(stepErr.Direction))
		}
		return serr
	}

	return nil
}

func newMigrator(appCtx *actx.Context) (*migration.Migrator, func(), error) {
	m, closeDB, err := appCtx.NewMigrator(appCtx.Ctx, "")
	if err != nil {
		cfg := appCtx.Config
		return nil, nil, aerrors.With(
			aerrors.NewRuntimeError("failed initializing migrator", err,
				"Check the database and migrations configuration."),
			"driver", cfg.Database.Driver, "source", cfg.Migrations.Source,
		)
	}

	return m, func() {
		if cerr := closeDB(); cerr != nil {
			appCtx.Logger.Warn("failed closing database", "error", cerr)
		}
	}, nil
}

func renderPlan(appCtx *actx.Context, plan *migration.Plan) error {
	if plan.Empty() {
		appCtx.Logger.Info("database is already at target", "target", plan.Target.String())
		return nil
	}

	data := make([][]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		data = append(data, []string{s.Migration.Name, string(s.Direction)})
	}
	if err := renderTable(appCtx.Stdout, []string{"Name", "Direction"}, data); err != nil {
		return aerrors.NewRuntimeError("failed rendering table", err, "")
	}

	return nil
}

func renderResult(appCtx *actx.Context, res *migration.Result) error {
	data := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		data = append(data, []string{s.Name, string(s.Direction), string(s.Status)})
	}
	if err := renderTable(appCtx.Stdout, []string{"Name", "Direction", "Status"}, data); err != nil {
		return aerrors.NewRuntimeError("failed rendering table", err, "")
	}

	return nil
}
