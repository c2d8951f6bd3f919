package types

import "context"

// Row is a single result row, with column values in query order. Values are
// normalized to nil, string, int64, float64 or bool. Binary and timestamp
// values are returned as strings.
type Row []any

// Executor exposes only methods for running SQL statements. It is implemented
// by both database handles and transactions, so that migrations and the
// applied-state store can run inside a transaction without knowing it.
type Executor interface {
	// Exec runs a single statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a single statement and returns all result rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Placeholder returns the bind parameter marker for the n-th (1-based)
	// argument in the backend's syntax.
	Placeholder(n int) string
	// Engine returns the SQL engine behind the handle, e.g. "postgres",
	// "mysql" or "sqlite".
	Engine() string
}

// Tx is a database transaction.
type Tx interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB is a handle to the target database.
type DB interface {
	Executor
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// TransactionalDDL reports whether schema changes made on the engine can be
// rolled back as part of a transaction.
func TransactionalDDL(engine string) bool {
	return engine != "mysql"
}
