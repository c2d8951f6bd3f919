package migration

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.hackfix.me/dbmigrate/db/types"
)

// DefaultTable is the default name of the table tracking applied migrations.
const DefaultTable = "_migrations"

var tableNameRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Record is an applied migration.
type Record struct {
	Name      string
	AppliedAt time.Time
}

// Store persists the applied state in a table of the target database. All
// methods take the executor to run on, so that mutations can share the
// transaction of the schema change they accompany.
type Store struct {
	table   string
	timeNow func() time.Time
}

// ValidateTable returns an error if table can't be used as the name of the
// applied migrations table. Only unquoted identifiers are accepted, since the
// name is interpolated into statements.
func ValidateTable(table string) error {
	if !tableNameRx.MatchString(table) {
		return types.InvalidInputError{Msg: fmt.Sprintf("invalid migrations table name: '%s'", table)}
	}
	return nil
}

// NewStore returns a new Store using the given table.
func NewStore(table string, timeNow func() time.Time) (*Store, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if timeNow == nil {
		timeNow = time.Now
	}

	return &Store{table: table, timeNow: timeNow}, nil
}

// Table returns the name of the backing table.
func (s *Store) Table() string {
	return s.table
}

// Init creates the backing table if it doesn't exist.
func (s *Store) Init(ctx context.Context, ex types.Executor) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name VARCHAR(255) NOT NULL PRIMARY KEY,
		applied_at VARCHAR(64) NOT NULL
	)`, s.table)
	if _, err := ex.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed creating %s table: %w", s.table, err)
	}

	return nil
}

// Applied returns the applied migrations ordered by name.
func (s *Store) Applied(ctx context.Context, ex types.Executor) ([]Record, error) {
	query := fmt.Sprintf(`SELECT name, applied_at FROM %s ORDER BY name ASC`, s.table)
	rows, err := ex.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed querying applied migrations: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := scanRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// RecordApplied adds the applied record of the named migration.
func (s *Store) RecordApplied(ctx context.Context, ex types.Executor, name string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (name, applied_at) VALUES (%s, %s)`,
		s.table, ex.Placeholder(1), ex.Placeholder(2))
	appliedAt := s.timeNow().UTC().Format(time.RFC3339Nano)
	if _, err := ex.Exec(ctx, stmt, name, appliedAt); err != nil {
		err = types.Err("applied migration", fmt.Sprintf("name '%s'", name), err)
		return fmt.Errorf("failed recording migration '%s' as applied: %w", name, err)
	}

	return nil
}

// RecordReverted removes the applied record of the named migration. It
// returns an error if the record doesn't exist.
func (s *Store) RecordReverted(ctx context.Context, ex types.Executor, name string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, s.table, ex.Placeholder(1))
	n, err := ex.Exec(ctx, stmt, name)
	if err != nil {
		return fmt.Errorf("failed recording migration '%s' as reverted: %w", name, err)
	}
	if n != 1 {
		return types.IntegrityError{
			Msg: fmt.Sprintf("removed %d applied records for migration '%s', expected 1", n, name),
		}
	}

	return nil
}

func scanRecord(row types.Row) (Record, error) {
	if len(row) != 2 {
		return Record{}, types.ScanError{
			ModelName: "applied migration", Err: fmt.Errorf("expected 2 columns, got %d", len(row)),
		}
	}

	name, ok := row[0].(string)
	if !ok {
		return Record{}, types.ScanError{
			ModelName: "applied migration", Err: fmt.Errorf("invalid name value: %v", row[0]),
		}
	}
	appliedAtStr, ok := row[1].(string)
	if !ok {
		return Record{}, types.ScanError{
			ModelName: "applied migration", Err: fmt.Errorf("invalid applied_at value: %v", row[1]),
		}
	}
	appliedAt, err := time.Parse(time.RFC3339Nano, appliedAtStr)
	if err != nil {
		return Record{}, types.ScanError{ModelName: "applied migration", Err: err}
	}

	return Record{Name: name, AppliedAt: appliedAt}, nil
}
