package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/dbmigrate/app/config"
	actx "go.hackfix.me/dbmigrate/app/context"
	aerrors "go.hackfix.me/dbmigrate/app/errors"
	"go.hackfix.me/dbmigrate/cli"
	"go.hackfix.me/dbmigrate/db"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application. configFilePath is the default path of
// the configuration file, which can be changed with the --config-file flag.
func New(name, configFilePath string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	if app.ctx.Env == nil {
		return nil, errors.New("process environment is required")
	}
	if app.ctx.TimeSource == nil {
		return nil, errors.New("time source is required")
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version.String())
	app.cli, err = cli.New(configFilePath, ver, db.Drivers)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	cfg, err := app.loadConfig()
	if err != nil {
		return err
	}
	app.ctx.Config = cfg

	if err := app.cli.Execute(app.ctx); err != nil {
		return err
	}

	return nil
}

// loadConfig resolves the configuration from the configuration file, the .env
// file, the process environment and the CLI flags, in increasing order of
// priority.
func (app *App) loadConfig() (*config.Config, error) {
	cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
	if err := cfg.Load(); err != nil {
		return nil, aerrors.NewRuntimeError("failed loading configuration", err, "")
	}

	if app.cli.EnvFile != "" {
		vars, err := config.ParseEnvFile(app.ctx.FS, app.cli.EnvFile)
		if err != nil {
			return nil, aerrors.NewRuntimeError("failed loading env file", err, "")
		}
		// Variables already set in the process environment take precedence.
		for _, k := range slices.Sorted(maps.Keys(vars)) {
			if app.ctx.Env.Get(k) != "" {
				continue
			}
			if err = app.ctx.Env.Set(k, vars[k]); err != nil {
				return nil, aerrors.NewRuntimeError(
					fmt.Sprintf("failed setting environment variable %s", k), err, "")
			}
		}
	}

	cfg.ApplyEnv(app.ctx.Env.Get)
	app.cli.ApplyConfig(cfg)
	cfg.SetDefaults(app.ctx.Env.Get)

	app.ctx.Logger.Debug("resolved configuration",
		"driver", cfg.Database.Driver, "source", cfg.Migrations.Source,
		"path", cfg.Migrations.Path, "table", cfg.Migrations.Table)

	return cfg, nil
}
