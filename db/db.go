package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"go.hackfix.me/dbmigrate/db/types"
)

// SQLDB wraps sql.DB for engines reachable through a database/sql driver.
type SQLDB struct {
	db     *sql.DB
	engine string
}

var _ types.DB = (*SQLDB)(nil)

// OpenSQL opens a database/sql connection pool with the given driver, and
// configures it for use by the migrator. Supported driver names are "sqlite",
// "postgres" and "libsql".
func OpenSQL(ctx context.Context, driverName, dsn string) (*SQLDB, error) {
	var engine string
	switch driverName {
	case "sqlite", "libsql":
		engine = "sqlite"
	case "postgres":
		engine = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database/sql driver: %s", driverName)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening %s database: %w", driverName, err)
	}
	d := &SQLDB{db: sqlDB, engine: engine}

	if driverName == "sqlite" {
		if strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:") {
			// Keep the in-memory database alive for the lifetime of the pool.
			// See https://github.com/mattn/go-sqlite3#faq
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetConnMaxLifetime(time.Duration(math.Inf(1)))
		}

		// Enable foreign key enforcement
		if _, err = sqlDB.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed enabling foreign key enforcement: %w", err)
		}
	}

	return d, nil
}

// Exec implements types.Executor.
func (d *SQLDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execSQL(ctx, d.db, query, args...)
}

// Query implements types.Executor.
func (d *SQLDB) Query(ctx context.Context, query string, args ...any) ([]types.Row, error) {
	return querySQL(ctx, d.db, query, args...)
}

// Placeholder implements types.Executor.
func (d *SQLDB) Placeholder(n int) string {
	return placeholder(d.engine, n)
}

// Begin starts a new transaction.
func (d *SQLDB) Begin(ctx context.Context) (types.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed starting transaction: %w", err)
	}

	return &sqlTx{tx: tx, engine: d.engine}, nil
}

// Engine implements types.Executor.
func (d *SQLDB) Engine() string {
	return d.engine
}

// Close closes the underlying connection pool.
func (d *SQLDB) Close() error {
	return d.db.Close() //nolint:wrapcheck // This is fine.
}

type sqlTx struct {
	tx     *sql.Tx
	engine string
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execSQL(ctx, t.tx, query, args...)
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) ([]types.Row, error) {
	return querySQL(ctx, t.tx, query, args...)
}

func (t *sqlTx) Placeholder(n int) string {
	return placeholder(t.engine, n)
}

func (t *sqlTx) Engine() string {
	return t.engine
}

func (t *sqlTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed rolling back transaction: %w", err)
	}
	return nil
}

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execSQL(ctx context.Context, r sqlRunner, query string, args ...any) (int64, error) {
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // Wrapped by the caller, which knows the statement's purpose.
	}

	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows for DDL statements.
		return 0, nil //nolint:nilerr // See above.
	}

	return n, nil
}

func querySQL(ctx context.Context, r sqlRunner, query string, args ...any) (rows []types.Row, rerr error) {
	sqlRows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // Wrapped by the caller.
	}
	defer func() {
		if err := sqlRows.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()

	cols, err := sqlRows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed reading result columns: %w", err)
	}

	for sqlRows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = sqlRows.Scan(ptrs...); err != nil {
			return nil, types.ScanError{ModelName: "row", Err: err}
		}
		row := make(types.Row, len(vals))
		for i, v := range vals {
			row[i] = normalize(v)
		}
		rows = append(rows, row)
	}

	if err = sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating result rows: %w", err)
	}

	return rows, nil
}

// normalize converts driver values to the set of types documented on
// types.Row.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case []byte:
		// Text columns are returned as raw bytes by some drivers.
		return string(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

func placeholder(engine string, n int) string {
	if engine == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
