package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"go.hackfix.me/dbmigrate/db"
	"go.hackfix.me/dbmigrate/migration"
)

// Config represents the application configuration. Values are resolved from,
// in increasing order of priority: defaults, the configuration file, a .env
// file, the process environment, and command-line flags.
type Config struct {
	Database   Database   `toml:"database" yaml:"database"`
	Migrations Migrations `toml:"migrations" yaml:"migrations"`

	fs   vfs.FileSystem
	path string
}

// Database defines how to reach the target database.
type Database struct {
	// Driver is one of db.Drivers. Default: data-api.
	Driver string `toml:"driver,omitempty" yaml:"driver,omitempty"`
	// DSN is the connection string used by database/sql drivers.
	DSN string `toml:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Name is the database name on the RDS cluster.
	Name string `toml:"name,omitempty" yaml:"name,omitempty"`
	// EngineMode is the SQL engine of the RDS cluster: postgres or mysql.
	EngineMode string `toml:"engine_mode,omitempty" yaml:"engine_mode,omitempty"`
	// ResourceARN is the ARN of the RDS cluster.
	ResourceARN string `toml:"resource_arn,omitempty" yaml:"resource_arn,omitempty"`
	// SecretARN is the ARN of the secret holding the database credentials.
	SecretARN string `toml:"secret_arn,omitempty" yaml:"secret_arn,omitempty"`
}

// Migrations defines where migrations are loaded from, and where their
// applied state is stored.
type Migrations struct {
	// Source is bundled or dynamic.
	Source string `toml:"source,omitempty" yaml:"source,omitempty"`
	// Path is the directory scanned in dynamic mode.
	Path string `toml:"path,omitempty" yaml:"path,omitempty"`
	// Table is the name of the table tracking applied migrations.
	Table string `toml:"table,omitempty" yaml:"table,omitempty"`
}

// Environment variables read by ApplyEnv and SetDefaults.
const (
	EnvDriver         = "DBMIGRATE_DRIVER"
	EnvDSN            = "DBMIGRATE_DSN"
	EnvEngineMode     = "RDS_ENGINE_MODE"
	EnvDatabase       = "RDS_DATABASE"
	EnvSecretARN      = "RDS_SECRET"
	EnvResourceARN    = "RDS_ARN"
	EnvMigrationsPath = "RDS_MIGRATIONS_PATH"
	EnvSource         = "DBMIGRATE_SOURCE"
	EnvTable          = "DBMIGRATE_TABLE"
	// EnvLambdaTaskRoot is set by the AWS Lambda runtime.
	EnvLambdaTaskRoot = "LAMBDA_TASK_ROOT"
)

// Default values.
const (
	DefaultEngineMode     = "postgres"
	DefaultMigrationsPath = "migrations"
)

var engineModes = []string{"postgres", "mysql"}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Path returns the filesystem path of the configuration file.
func (c *Config) Path() string {
	return c.path
}

// Load reads and parses the configuration file from the filesystem. The format
// is chosen by the file extension: .toml, or .yaml/.yml. If the file doesn't
// exist, the configuration is left empty.
func (c *Config) Load() error {
	if c.fs == nil || c.path == "" {
		return nil
	}

	data, err := vfs.ReadFile(c.fs, c.path)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(c.path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(c)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(c); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return fmt.Errorf("unsupported configuration file format: '%s'", ext)
	}
	if err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// ParseEnvFile reads the variables defined in a .env file.
func ParseEnvFile(fs vfs.FileSystem, path string) (map[string]string, error) {
	data, err := vfs.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed reading env file: %w", err)
	}

	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed parsing env file '%s': %w", path, err)
	}

	return vars, nil
}

// ApplyEnv overrides configuration values with the environment variables that
// are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Database.Driver, EnvDriver)
	set(&c.Database.DSN, EnvDSN)
	set(&c.Database.EngineMode, EnvEngineMode)
	set(&c.Database.Name, EnvDatabase)
	set(&c.Database.SecretARN, EnvSecretARN)
	set(&c.Database.ResourceARN, EnvResourceARN)
	set(&c.Migrations.Path, EnvMigrationsPath)
	set(&c.Migrations.Source, EnvSource)
	set(&c.Migrations.Table, EnvTable)
}

// SetDefaults sets default configuration values if they weren't set already.
// Migrations are bundled by default when running in AWS Lambda, where the
// deployment package is read-only and known at build time.
func (c *Config) SetDefaults(getenv func(string) string) {
	if c.Database.Driver == "" {
		c.Database.Driver = db.DriverDataAPI
	}
	if c.Database.EngineMode == "" {
		c.Database.EngineMode = DefaultEngineMode
	}
	if c.Migrations.Path == "" {
		c.Migrations.Path = DefaultMigrationsPath
	}
	if c.Migrations.Table == "" {
		c.Migrations.Table = migration.DefaultTable
	}
	if c.Migrations.Source == "" {
		c.Migrations.Source = string(migration.SourceDynamic)
		if getenv(EnvLambdaTaskRoot) != "" {
			c.Migrations.Source = string(migration.SourceBundled)
		}
	}
}

// Validate checks that the configuration can be used to run migrations.
// SetDefaults should be called before.
func (c *Config) Validate() error {
	var errs []error

	d := c.Database
	switch d.Driver {
	case db.DriverDataAPI:
		if d.ResourceARN == "" {
			errs = append(errs, fmt.Errorf("the RDS resource ARN is required; set %s", EnvResourceARN))
		}
		if d.SecretARN == "" {
			errs = append(errs, fmt.Errorf("the RDS secret ARN is required; set %s", EnvSecretARN))
		}
		if !slices.Contains(engineModes, d.EngineMode) {
			errs = append(errs, fmt.Errorf("unsupported RDS engine mode: '%s'", d.EngineMode))
		}
	case db.DriverPostgres, db.DriverSQLite, db.DriverLibSQL:
		if d.DSN == "" {
			errs = append(errs, fmt.Errorf("a DSN is required for the %s driver; set %s", d.Driver, EnvDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: '%s'", d.Driver))
	}

	m := c.Migrations
	switch migration.SourceMode(m.Source) {
	case migration.SourceBundled:
	case migration.SourceDynamic:
		if m.Path == "" {
			errs = append(errs, errors.New("the migrations path is required in dynamic mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported migration source: '%s'", m.Source))
	}
	if err := migration.ValidateTable(m.Table); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	return nil
}

// DBOptions returns the options used to connect to the database.
func (c *Config) DBOptions() db.Options {
	return db.Options{
		Driver:      c.Database.Driver,
		DSN:         c.Database.DSN,
		Database:    c.Database.Name,
		EngineMode:  c.Database.EngineMode,
		ResourceARN: c.Database.ResourceARN,
		SecretARN:   c.Database.SecretARN,
	}
}
