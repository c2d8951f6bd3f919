package migration

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"go.hackfix.me/dbmigrate/db"
	"go.hackfix.me/dbmigrate/db/types"
)

// Func is a schema-changing operation run against the database. When run by
// the Executor, ex is the transaction of the current step.
type Func func(ctx context.Context, ex types.Executor) error

// Migration is a named, reversible schema change.
type Migration struct {
	Name string
	Up   Func
	// Down may be nil for irreversible migrations. Rolling back such a
	// migration only removes its applied record.
	Down Func
	// Checksum identifies the contents of SQL migrations. It's empty for
	// migrations defined in Go.
	Checksum string
}

// Direction is the direction a migration is run in.
type Direction string

// Migration directions.
const (
	Up   Direction = "Up"
	Down Direction = "Down"
)

// SQL returns a Func that runs each statement of script in order. The script
// is split with the quoting and comment rules of the executor's engine.
func SQL(script string) Func {
	return func(ctx context.Context, ex types.Executor) error {
		stmts := db.SplitStatementsFor(ex.Engine(), script)
		for i, stmt := range stmts {
			if _, err := ex.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d of %d failed: %w", i+1, len(stmts), err)
			}
		}
		return nil
	}
}

// NewSQL returns a migration that runs the given up and down SQL scripts. An
// empty down script makes the migration irreversible.
func NewSQL(name, up, down string) *Migration {
	m := &Migration{
		Name:     name,
		Up:       SQL(up),
		Checksum: checksum(up, down),
	}
	if len(db.SplitStatements(down)) > 0 {
		m.Down = SQL(down)
	}

	return m
}

func checksum(up, down string) string {
	h, _ := blake2b.New256(nil) //nolint:errcheck // Only fails with an oversized key.
	h.Write([]byte(up))
	h.Write([]byte{0})
	h.Write([]byte(down))
	sum := base58.Encode(h.Sum(nil))

	return sum[:11]
}
