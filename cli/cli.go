package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"go.hackfix.me/dbmigrate/app/config"
	actx "go.hackfix.me/dbmigrate/app/context"
)

// CLI is the command line interface of dbmigrate.
type CLI struct {
	Latest Latest `kong:"cmd,help='Apply all pending migrations.'"`
	To     To     `kong:"cmd,help='Migrate up or down to a specific migration.'"`
	List   List   `kong:"cmd,help='List all migrations and whether they are applied.',aliases='ls'"`
	Invoke Invoke `kong:"cmd,help='Handle a JSON invocation request, the same way the serverless function does.'"`
	Create Create `kong:"cmd,help='Create a new pair of SQL migration files. The up file must contain at least one statement before migrations can run.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: Configuration is resolved by the app package rather than with
	// kong.Configuration, since values also come from .env files and
	// environment variables not owned by the CLI.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the configuration file (TOML or YAML).'"`
	EnvFile    string           `kong:"help='Path to a .env file to load environment variables from.'"`
	Driver     string           `kong:"help='Database driver: ${drivers}.'"`
	DSN        string           `kong:"name='dsn',help='Connection string for the postgres, sqlite and libsql drivers.'"`
	Database   string           `kong:"help='Database name on the RDS cluster.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(configFilePath, version string, drivers []string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("dbmigrate"),
		kong.Description("Apply, roll back and list database schema migrations."),
		kong.UsageOnError(),
		kong.DefaultEnvars("DBMIGRATE"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
			"drivers":    strings.Join(drivers, ", "),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig overrides configuration values with the values of global flags,
// if they were set.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	if c.Driver != "" {
		cfg.Database.Driver = c.Driver
	}
	if c.DSN != "" {
		cfg.Database.DSN = c.DSN
	}
	if c.Database != "" {
		cfg.Database.Name = c.Database
	}
}
