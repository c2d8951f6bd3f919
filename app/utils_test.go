package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	actx "go.hackfix.me/dbmigrate/app/context"
	"go.hackfix.me/dbmigrate/db"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testApp struct {
	*App
	stdin          *safeBuffer
	stdout, stderr *safeBuffer
	env            *mockEnv
	db             *db.SQLDB
}

var testMigrations = map[string]string{
	"001_users.up.sql":      "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);",
	"001_users.down.sql":    "DROP TABLE users;",
	"002_posts.up.sql":      "CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users (id));",
	"002_posts.down.sql":    "DROP TABLE posts;",
	"003_comments.up.sql":   "CREATE TABLE comments (id INTEGER PRIMARY KEY, post_id INTEGER REFERENCES posts (id));",
	"003_comments.down.sql": "DROP TABLE comments;",
}

func newTestApp(t *testing.T, ctx context.Context, files map[string]string) (*testApp, error) {
	// A unique name per app, to avoid clashing of in-memory SQLite DBs.
	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	if err != nil {
		return nil, err
	}

	// Not using just :memory: to avoid 'no such table' issue.
	// See https://github.com/mattn/go-sqlite3#faq
	dsn := fmt.Sprintf("file:dbmigrate-%x?mode=memory&cache=shared", rndName)

	// This handle keeps the in-memory database alive between commands, which
	// open and close their own.
	d, err := db.OpenSQL(ctx, db.DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = d.Close() })

	fs := memoryfs.New()
	if err = fs.MkdirAll("/migrations", 0o755); err != nil {
		return nil, err
	}
	for name, data := range files {
		if err = vfs.WriteFile(fs, "/migrations/"+name, []byte(data), 0o644); err != nil {
			return nil, err
		}
	}

	var (
		stdin          = newSafeBuffer()
		stdout, stderr = newSafeBuffer(), newSafeBuffer()
	)

	env := &mockEnv{env: map[string]string{
		"DBMIGRATE_DRIVER":    "sqlite",
		"DBMIGRATE_DSN":       dsn,
		"RDS_MIGRATIONS_PATH": "/migrations",
	}}
	opts := []Option{
		WithTimeSource(mockTime{}),
		WithEnv(env),
		WithContext(ctx),
		WithFDs(stdin, stdout, stderr),
		WithFS(fs),
		WithLogger(false, false),
	}
	app, err := New("dbmigrate", "/config.toml", opts...)
	if err != nil {
		return nil, err
	}

	return &testApp{
		App: app, stdin: stdin, stdout: stdout, stderr: stderr, env: env, db: d,
	}, nil
}

// Run resets the output buffers and runs the command.
func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	ta.stderr.Reset()

	return ta.App.Run(args)
}

func (ta *testApp) tables(t *testing.T) []string {
	t.Helper()

	rows, err := ta.db.Query(t.Context(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		t.Fatal(err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row[0].(string)) //nolint:forcetypeassert // Always a string.
	}

	return names
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}

type mockTime struct{}

var _ actx.TimeSource = mockTime{}

func (mockTime) Now() time.Time {
	return timeNow
}

// newTestContext returns a context that times out after timeout, and an
// assertion handling function that cancels the context prematurely and fails
// the test if the assertion fails. This is done to avoid waiting for the
// context timeout to be reached.
func newTestContext(t *testing.T, timeout time.Duration) (
	ctx context.Context, cancelCtx func(), assertHandler func(bool),
) {
	ctx, cancelCtx = context.WithTimeout(t.Context(), timeout)
	assertHandler = func(success bool) {
		if !success {
			cancelCtx()
			t.FailNow()
		}
	}

	return
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

var _ io.ReadWriter = (*safeBuffer)(nil)

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Read(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Read(p)
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}
