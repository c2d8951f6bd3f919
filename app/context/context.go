package context

import (
	"context"
	"io"
	"io/fs"
	"log/slog"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/dbmigrate/app/config"
	"go.hackfix.me/dbmigrate/db"
	"go.hackfix.me/dbmigrate/db/types"
)

// Context contains common objects used by the application. It is passed around
// the application to avoid direct dependencies on external systems, and make
// testing easier.
type Context struct {
	Ctx        context.Context // global context
	FS         vfs.FileSystem  // filesystem
	Env        Environment     // process environment
	Logger     *slog.Logger    // global logger
	TimeSource TimeSource
	Config     *config.Config

	// Bundle holds the migrations compiled into the binary.
	Bundle fs.FS
	// Connect opens the target database. It defaults to db.Connect.
	Connect func(ctx context.Context, opts db.Options) (types.DB, error)

	// Standard streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Metadata
	Version *VersionInfo
}
