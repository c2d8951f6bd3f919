package context

import (
	"context"
	"errors"
	"fmt"

	"go.hackfix.me/dbmigrate/db"
	"go.hackfix.me/dbmigrate/invoke"
	"go.hackfix.me/dbmigrate/migration"
)

// NewMigrator connects to the configured database and returns a Migrator for
// the configured migration source. If database is not empty, it overrides the
// configured database name. The returned function closes the database handle.
func (c *Context) NewMigrator(
	ctx context.Context, database string,
) (*migration.Migrator, func() error, error) {
	if c.Config == nil {
		return nil, nil, errors.New("configuration is not loaded")
	}

	cfg := *c.Config
	if database != "" {
		cfg.Database.Name = database
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	provider, err := migration.NewProvider(
		migration.SourceMode(cfg.Migrations.Source), c.Bundle, c.FS, cfg.Migrations.Path)
	if err != nil {
		return nil, nil, err
	}

	connect := c.Connect
	if connect == nil {
		connect = db.Connect
	}
	d, err := connect(ctx, cfg.DBOptions())
	if err != nil {
		return nil, nil, err
	}

	opts := []migration.Option{
		migration.WithLogger(c.Logger),
		migration.WithTable(cfg.Migrations.Table),
	}
	if c.TimeSource != nil {
		opts = append(opts, migration.WithTimeNow(c.TimeSource.Now))
	}

	m, err := migration.New(d, []migration.Provider{provider}, opts...)
	if err != nil {
		_ = d.Close()
		return nil, nil, fmt.Errorf("failed initializing migrator: %w", err)
	}

	return m, d.Close, nil
}

// MigratorFactory returns the factory used by the invocation handler.
func (c *Context) MigratorFactory() invoke.MigratorFactory {
	return func(ctx context.Context, database string) (invoke.Runner, func() error, error) {
		m, closeDB, err := c.NewMigrator(ctx, database)
		if err != nil {
			return nil, nil, err
		}
		return m, closeDB, nil
	}
}
