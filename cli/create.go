package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/mandelsoft/vfs/pkg/vfs"

	actx "go.hackfix.me/dbmigrate/app/context"
	aerrors "go.hackfix.me/dbmigrate/app/errors"
)

// Create writes a new pair of empty up and down SQL migration files to the
// migrations directory.
type Create struct {
	Name migrationName `arg:"" help:"Descriptive name of the migration, e.g. add_users_email."`
}

// Run the create command.
func (c *Create) Run(appCtx *actx.Context) error {
	dir := appCtx.Config.Migrations.Path
	name := fmt.Sprintf("%s_%s", appCtx.TimeSource.Now().UTC().Format("20060102150405"), c.Name)

	if err := appCtx.FS.MkdirAll(dir, 0o755); err != nil {
		return aerrors.NewRuntimeError("failed creating migrations directory", err, "")
	}

	files := []struct {
		path, content string
	}{
		{filepath.Join(dir, name+".up.sql"), fmt.Sprintf("-- Migration %s: up\n", name)},
		{filepath.Join(dir, name+".down.sql"), fmt.Sprintf("-- Migration %s: down\n", name)},
	}
	for _, f := range files {
		if _, err := appCtx.FS.Stat(f.path); err == nil {
			return aerrors.NewRuntimeError(fmt.Sprintf("migration file '%s' already exists", f.path), nil, "")
		}
	}

	for _, f := range files {
		if err := vfs.WriteFile(appCtx.FS, f.path, []byte(f.content), 0o644); err != nil {
			return aerrors.NewRuntimeError("failed writing migration file", err, "")
		}
		if _, err := fmt.Fprintln(appCtx.Stdout, f.path); err != nil {
			return aerrors.NewRuntimeError("failed writing to stdout", err, "")
		}
	}

	appCtx.Logger.Info("created migration", "name", name, "dir", dir)
	// Up files without statements fail discovery.
	appCtx.Logger.Warn("add at least one statement to the up file before running migrations",
		"file", files[0].path)

	return nil
}

var migrationNameRx = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

type migrationName string

func (n migrationName) Validate() error {
	if !migrationNameRx.MatchString(string(n)) {
		return errors.New("must contain only lowercase letters, digits and underscores")
	}
	return nil
}
