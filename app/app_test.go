package app

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"

	aerrors "go.hackfix.me/dbmigrate/app/errors"
	"go.hackfix.me/dbmigrate/migration"
)

func TestAppMigrate(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(t, tctx, testMigrations)
	h(assert.NoError(t, err))

	err = app.Run("latest", "--dry-run")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `001_users\s+Up`, app.stdout.String()))
	h(assert.Regexp(t, `003_comments\s+Up`, app.stdout.String()))
	h(assert.Equal(t, []string{"_migrations"}, app.tables(t)))

	err = app.Run("to", "002_posts")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `001_users\s+Up\s+Success`, app.stdout.String()))
	h(assert.Regexp(t, `002_posts\s+Up\s+Success`, app.stdout.String()))
	h(assert.NotContains(t, app.stdout.String(), "003_comments"))
	h(assert.Contains(t, app.stderr.String(), "applied migration"))
	h(assert.Equal(t, []string{"_migrations", "posts", "users"}, app.tables(t)))

	err = app.Run("list")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `001_users\s+2025-01-01 00:00:00\s+\S{11}`, app.stdout.String()))
	h(assert.Regexp(t, `003_comments\s+-\s+\S{11}`, app.stdout.String()))

	err = app.Run("latest")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `003_comments\s+Up\s+Success`, app.stdout.String()))
	h(assert.NotContains(t, app.stdout.String(), "001_users"))
	h(assert.Equal(t, []string{"_migrations", "comments", "posts", "users"}, app.tables(t)))

	err = app.Run("latest")
	h(assert.NoError(t, err))
	h(assert.Empty(t, app.stdout.String()))
	h(assert.Contains(t, app.stderr.String(), "database is already at target"))

	err = app.Run("to", "001_users", "--dry-run")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `(?s)003_comments\s+Down.*002_posts\s+Down`, app.stdout.String()))
	h(assert.Equal(t, []string{"_migrations", "comments", "posts", "users"}, app.tables(t)))

	err = app.Run("to")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `(?s)003_comments\s+Down\s+Success.*001_users\s+Down\s+Success`, app.stdout.String()))
	h(assert.Equal(t, []string{"_migrations"}, app.tables(t)))
}

func TestAppMigrateErrors(t *testing.T) {
	t.Parallel()

	t.Run("err/step_failure", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, map[string]string{
			"001_users.up.sql": "CREATE TABLE users (id INTEGER PRIMARY KEY);",
			"002_broken.up.sql": "CREATE TABLE broken (id INTEGER);\nINSERT INTO missing VALUES (1);",
			"003_posts.up.sql":  "CREATE TABLE posts (id INTEGER PRIMARY KEY);",
		})
		h(assert.NoError(t, err))

		err = app.Run("latest")
		h(assert.EqualError(t, err, "migration to latest failed"))
		var stepErr *migration.StepExecutionError
		h(assert.ErrorAs(t, err, &stepErr))
		h(assert.Equal(t, "002_broken", stepErr.Name))
		var serr *aerrors.StructuredError
		h(assert.ErrorAs(t, err, &serr))
		h(assert.Equal(t, map[string]any{
			"target": "latest", "completed_steps": 1,
			"failed_migration": "002_broken", "direction": "Up",
		}, serr.Metadata()))
		h(assert.Regexp(t, `001_users\s+Up\s+Success`, app.stdout.String()))
		h(assert.Regexp(t, `002_broken\s+Up\s+Error`, app.stdout.String()))
		h(assert.NotContains(t, app.stdout.String(), "003_posts"))
		h(assert.Equal(t, []string{"_migrations", "users"}, app.tables(t)))
	})

	t.Run("err/unknown_target", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = app.Run("to", "004_nope")
		h(assert.ErrorContains(t, err, "migration '004_nope' doesn't exist"))
		var targetErr *migration.UnknownTargetError
		h(assert.ErrorAs(t, err, &targetErr))
		var serr *aerrors.StructuredError
		h(assert.ErrorAs(t, err, &serr))
		h(assert.Equal(t, map[string]any{"target": "'004_nope'"}, serr.Metadata()))
		h(assert.Empty(t, app.stdout.String()))
	})

	t.Run("err/invalid_config", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = app.Run("--driver", "data-api", "latest")
		h(assert.ErrorContains(t, err, "failed initializing migrator"))
		h(assert.ErrorContains(t, err, "the RDS resource ARN is required"))
		var serr *aerrors.StructuredError
		h(assert.ErrorAs(t, err, &serr))
		h(assert.Equal(t, "data-api", serr.Metadata()["driver"]))
	})

	t.Run("err/list_partial", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, map[string]string{
			"001_users.up.sql":    "CREATE TABLE users (id INTEGER PRIMARY KEY);",
			"002_orphan.down.sql": "DROP TABLE orphan;",
		})
		h(assert.NoError(t, err))

		err = app.Run("list")
		h(assert.ErrorContains(t, err, "down migration has no matching up migration"))
		h(assert.Contains(t, app.stdout.String(), "001_users"))

		err = app.Run("latest")
		h(assert.ErrorContains(t, err, "failed discovering migrations"))
		h(assert.Equal(t, []string{"_migrations"}, app.tables(t)))
	})
}

func TestAppInvoke(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(t, tctx, testMigrations)
	h(assert.NoError(t, err))

	_, err = app.stdin.Write([]byte(`{"type": "to", "data": {"name": "001_users"}}`))
	h(assert.NoError(t, err))
	err = app.Run("invoke")
	h(assert.NoError(t, err))
	h(assert.JSONEq(t, `{"results": [
		{"migrationName": "001_users", "direction": "Up", "status": "Success"}
	]}`, app.stdout.String()))

	err = vfs.WriteFile(app.ctx.FS, "/event.json", []byte(`{"type": "list"}`), 0o644)
	h(assert.NoError(t, err))
	err = app.Run("invoke", "--event", "/event.json")
	h(assert.NoError(t, err))
	var statuses []map[string]any
	h(assert.NoError(t, json.Unmarshal([]byte(app.stdout.String()), &statuses)))
	h(assert.Len(t, statuses, 3))
	h(assert.Equal(t, "001_users", statuses[0]["name"]))
	h(assert.Equal(t, true, statuses[0]["applied"]))
	h(assert.Equal(t, false, statuses[1]["applied"]))

	_, err = app.stdin.Write([]byte(`{"type": "drop"}`))
	h(assert.NoError(t, err))
	err = app.Run("invoke")
	h(assert.EqualError(t, err, "invocation failed: unsupported operation type: 'drop'"))
	h(assert.Empty(t, app.stdout.String()))
	h(assert.Regexp(t, regexp.MustCompile(`rejected invocation.*invocation_id=\w+`), app.stderr.String()))
}

func TestAppCreate(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(t, tctx, nil)
	h(assert.NoError(t, err))

	err = app.Run("create", "add_users")
	h(assert.NoError(t, err))
	h(assert.Equal(t, ""+
		"/migrations/20250101000000_add_users.up.sql\n"+
		"/migrations/20250101000000_add_users.down.sql\n",
		app.stdout.String()))

	up, err := vfs.ReadFile(app.ctx.FS, "/migrations/20250101000000_add_users.up.sql")
	h(assert.NoError(t, err))
	h(assert.Equal(t, "-- Migration 20250101000000_add_users: up\n", string(up)))
	h(assert.Contains(t, app.stderr.String(), "add at least one statement to the up file"))

	err = app.Run("latest")
	h(assert.ErrorContains(t, err, "up migration has no statements"))

	err = vfs.WriteFile(app.ctx.FS, "/migrations/20250101000000_add_users.up.sql",
		[]byte("CREATE TABLE users (id INTEGER PRIMARY KEY);\n"), 0o644)
	h(assert.NoError(t, err))
	err = app.Run("latest")
	h(assert.NoError(t, err))
	h(assert.Regexp(t, `20250101000000_add_users\s+Up\s+Success`, app.stdout.String()))

	err = app.Run("create", "add_users")
	h(assert.ErrorContains(t, err, "already exists"))

	err = app.Run("create", "Add Users")
	h(assert.ErrorContains(t, err, "must contain only lowercase letters, digits and underscores"))
}

func TestAppConfig(t *testing.T) {
	t.Parallel()

	t.Run("ok/file_and_env_file", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = vfs.WriteFile(app.ctx.FS, "/config.toml", []byte(`
[database]
driver = "postgres"

[migrations]
table = "schema_versions"
`), 0o644)
		h(assert.NoError(t, err))
		err = vfs.WriteFile(app.ctx.FS, "/.env", []byte(
			"DBMIGRATE_DRIVER=data-api\nDBMIGRATE_SOURCE=dynamic\n"), 0o644)
		h(assert.NoError(t, err))

		// The driver from the process environment wins over the config file and
		// the .env file.
		err = app.Run("--env-file", "/.env", "latest")
		h(assert.NoError(t, err))
		h(assert.Equal(t, "sqlite", app.ctx.Config.Database.Driver))
		h(assert.Equal(t, "dynamic", app.ctx.Config.Migrations.Source))
		h(assert.Equal(t, "dynamic", app.env.Get("DBMIGRATE_SOURCE")))
		h(assert.Equal(t, []string{"comments", "posts", "schema_versions", "users"}, app.tables(t)))
	})

	t.Run("ok/yaml_file", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = vfs.WriteFile(app.ctx.FS, "/dbmigrate.yaml", []byte("migrations:\n  table: versions\n"), 0o644)
		h(assert.NoError(t, err))

		err = app.Run("--config-file", "/dbmigrate.yaml", "to", "001_users")
		h(assert.NoError(t, err))
		h(assert.Equal(t, []string{"users", "versions"}, app.tables(t)))
	})

	t.Run("err/invalid_file", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = vfs.WriteFile(app.ctx.FS, "/config.toml", []byte("[database\n"), 0o644)
		h(assert.NoError(t, err))

		err = app.Run("list")
		h(assert.ErrorContains(t, err, "failed loading configuration"))
	})

	t.Run("err/missing_env_file", func(t *testing.T) {
		t.Parallel()

		tctx, cancel, h := newTestContext(t, 5*time.Second)
		defer cancel()

		app, err := newTestApp(t, tctx, testMigrations)
		h(assert.NoError(t, err))

		err = app.Run("--env-file", "/nope.env", "list")
		h(assert.ErrorContains(t, err, "failed loading env file"))
	})
}
