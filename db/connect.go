package db

import (
	"context"
	"errors"
	"fmt"

	"go.hackfix.me/dbmigrate/db/rdsdata"
	"go.hackfix.me/dbmigrate/db/types"
)

// Supported database drivers.
const (
	DriverDataAPI  = "data-api"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
)

// Drivers lists all supported driver names.
var Drivers = []string{DriverDataAPI, DriverPostgres, DriverSQLite, DriverLibSQL}

// Options describes how to reach the target database.
type Options struct {
	Driver string
	// DSN is the connection string for database/sql drivers.
	DSN string
	// Data API connection descriptor.
	Database    string
	EngineMode  string
	ResourceARN string
	SecretARN   string
}

// Connect returns a database handle for the configured driver.
//
//nolint:ireturn // Intentional, the backend is chosen at run time.
func Connect(ctx context.Context, opts Options) (types.DB, error) {
	switch opts.Driver {
	case DriverDataAPI, "":
		d, err := rdsdata.Open(ctx, rdsdata.Config{
			ResourceARN: opts.ResourceARN,
			SecretARN:   opts.SecretARN,
			Database:    opts.Database,
			EngineMode:  opts.EngineMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed connecting to the RDS Data API: %w", err)
		}
		return d, nil
	case DriverPostgres, DriverSQLite, DriverLibSQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("a DSN is required for the %s driver", opts.Driver)
		}
		d, err := OpenSQL(ctx, opts.Driver, opts.DSN)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errors.New("unsupported database driver: " + opts.Driver)
	}
}
