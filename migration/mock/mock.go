// Package mock provides migrations that record their execution and can be
// made to fail, for use in tests.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.hackfix.me/dbmigrate/db/types"
	"go.hackfix.me/dbmigrate/migration"
)

// Recorder creates migrations that each create a table named after the
// migration on the way up, and drop it on the way down. Every run is recorded.
type Recorder struct {
	mx    sync.Mutex
	calls []string
	fail  map[string]error
}

// New returns a new Recorder.
func New() *Recorder {
	return &Recorder{fail: map[string]error{}}
}

// Migration returns a new recording migration with the given name.
func (r *Recorder) Migration(name string) *migration.Migration {
	return &migration.Migration{
		Name: name,
		Up: func(ctx context.Context, ex types.Executor) error {
			return r.run(ctx, ex, name, migration.Up,
				fmt.Sprintf(`CREATE TABLE "%s" (id INTEGER PRIMARY KEY)`, TableName(name)))
		},
		Down: func(ctx context.Context, ex types.Executor) error {
			return r.run(ctx, ex, name, migration.Down,
				fmt.Sprintf(`DROP TABLE "%s"`, TableName(name)))
		},
	}
}

// Migrations returns a recording migration for each name.
func (r *Recorder) Migrations(names ...string) []*migration.Migration {
	migs := make([]*migration.Migration, 0, len(names))
	for _, name := range names {
		migs = append(migs, r.Migration(name))
	}
	return migs
}

// FailOn makes the migration fail with err when run in the given direction.
// The schema change is still made before failing, so that tests can verify it
// gets rolled back.
func (r *Recorder) FailOn(name string, dir migration.Direction, err error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.fail[key(name, dir)] = err
}

// Calls returns the runs recorded so far, as "name:direction" strings.
func (r *Recorder) Calls() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return slices.Clone(r.calls)
}

// TableName returns the name of the table created by the named migration.
func TableName(name string) string {
	return "t_" + name
}

func (r *Recorder) run(
	ctx context.Context, ex types.Executor, name string, dir migration.Direction, stmt string,
) error {
	r.mx.Lock()
	k := key(name, dir)
	r.calls = append(r.calls, k)
	failErr := r.fail[k]
	r.mx.Unlock()

	if _, err := ex.Exec(ctx, stmt); err != nil {
		return err //nolint:wrapcheck // This is fine.
	}

	return failErr
}

func key(name string, dir migration.Direction) string {
	return fmt.Sprintf("%s:%s", name, dir)
}
