package migration_test

import (
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/dbmigrate/db"
	"go.hackfix.me/dbmigrate/db/types"
	"go.hackfix.me/dbmigrate/migration"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

func newTestDB(t *testing.T) *db.SQLDB {
	t.Helper()

	// A unique name per test, to avoid clashing of in-memory SQLite DBs.
	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	require.NoError(t, err)

	// Not using just :memory: to avoid 'no such table' issue.
	// See https://github.com/mattn/go-sqlite3#faq
	d, err := db.OpenSQL(t.Context(), db.DriverSQLite,
		fmt.Sprintf("file:dbmigrate-%x?mode=memory&cache=shared", rndName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func newTestStore(t *testing.T, d types.Executor) *migration.Store {
	t.Helper()

	store, err := migration.NewStore(migration.DefaultTable, timeNowFn)
	require.NoError(t, err)
	require.NoError(t, store.Init(t.Context(), d))

	return store
}

func tableExists(t *testing.T, d types.Executor, name string) bool {
	t.Helper()

	rows, err := d.Query(t.Context(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	require.NoError(t, err)

	return len(rows) == 1
}

func appliedNames(t *testing.T, store *migration.Store, d types.Executor) []string {
	t.Helper()

	records, err := store.Applied(t.Context(), d)
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Name)
	}

	return names
}

func records(names ...string) []migration.Record {
	recs := make([]migration.Record, 0, len(names))
	for _, name := range names {
		recs = append(recs, migration.Record{Name: name, AppliedAt: timeNow})
	}
	return recs
}

func stepNames(plan *migration.Plan) []string {
	steps := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, fmt.Sprintf("%s:%s", s.Migration.Name, s.Direction))
	}
	return steps
}

func migrationNames(migs []*migration.Migration) []string {
	names := make([]string, 0, len(migs))
	for _, m := range migs {
		names = append(names, m.Name)
	}
	return names
}
