package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/dbmigrate/db"
)

// Provider is a source of migration definitions. Definitions that can't be
// loaded are reported as *DiscoveryError values joined in the returned error,
// alongside the definitions that could be loaded.
type Provider interface {
	Migrations(ctx context.Context) ([]*Migration, error)
}

// SourceMode selects the strategy used to load SQL migrations.
type SourceMode string

// Supported source modes.
const (
	// SourceBundled loads migrations embedded in the binary at build time.
	SourceBundled SourceMode = "bundled"
	// SourceDynamic scans a directory at run time, on every call.
	SourceDynamic SourceMode = "dynamic"
)

// NewProvider returns the provider for the given source mode. bundle is used
// in bundled mode; fsys and path in dynamic mode.
//
//nolint:ireturn // Intentional, the strategy is chosen at run time.
func NewProvider(mode SourceMode, bundle fs.FS, fsys vfs.FileSystem, path string) (Provider, error) {
	switch mode {
	case SourceBundled:
		if bundle == nil {
			return nil, errors.New("no migrations were bundled with this build")
		}
		return Bundle(bundle), nil
	case SourceDynamic:
		if fsys == nil || path == "" {
			return nil, errors.New("a filesystem and migrations path are required in dynamic mode")
		}
		return Dir(fsys, path), nil
	default:
		return nil, fmt.Errorf("unsupported migration source mode: %s", mode)
	}
}

type staticProvider []*Migration

// Static returns a provider of migrations defined in Go code.
//
//nolint:ireturn // The concrete type has no other use.
func Static(migs ...*Migration) Provider {
	return staticProvider(migs)
}

func (p staticProvider) Migrations(_ context.Context) ([]*Migration, error) {
	return slices.Clone(p), nil
}

// BundleProvider loads SQL migrations from a filesystem that is part of the
// binary, usually an embed.FS.
type BundleProvider struct {
	fsys fs.FS
}

// Bundle returns a provider of the SQL migrations in the root of fsys.
func Bundle(fsys fs.FS) *BundleProvider {
	return &BundleProvider{fsys: fsys}
}

// Migrations implements the Provider interface.
func (p *BundleProvider) Migrations(ctx context.Context) ([]*Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // This is fine.
	}

	entries, err := fs.ReadDir(p.fsys, ".")
	if err != nil {
		return nil, &DiscoveryError{Source: "bundle", Msg: "failed reading bundled migrations", Err: err}
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}

	return loadSQLFiles(files, func(name string) ([]byte, error) {
		return fs.ReadFile(p.fsys, name)
	})
}

// DirProvider loads SQL migrations from a directory at run time. The directory
// is scanned again on every call, so new migration files are picked up without
// restarting the process.
type DirProvider struct {
	fs   vfs.FileSystem
	path string
}

// Dir returns a provider of the SQL migrations in the given directory.
func Dir(fsys vfs.FileSystem, path string) *DirProvider {
	return &DirProvider{fs: fsys, path: path}
}

// Path returns the scanned directory.
func (p *DirProvider) Path() string {
	return p.path
}

// Migrations implements the Provider interface.
func (p *DirProvider) Migrations(ctx context.Context) ([]*Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // This is fine.
	}

	infos, err := vfs.ReadDir(p.fs, p.path)
	if err != nil {
		return nil, &DiscoveryError{Source: p.path, Msg: "failed reading migrations directory", Err: err}
	}

	files := make([]string, 0, len(infos))
	for _, fi := range infos {
		if !fi.IsDir() {
			files = append(files, fi.Name())
		}
	}

	return loadSQLFiles(files, func(name string) ([]byte, error) {
		return vfs.ReadFile(p.fs, filepath.Join(p.path, name))
	})
}

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// loadSQLFiles pairs up and down SQL files by name, and returns the resulting
// migrations in name order. Unrelated files are ignored.
func loadSQLFiles(files []string, readFile func(string) ([]byte, error)) ([]*Migration, error) {
	ups := map[string]string{}
	downs := map[string]string{}
	for _, f := range files {
		if strings.HasPrefix(f, ".") {
			continue
		}
		switch {
		case strings.HasSuffix(f, upSuffix):
			ups[strings.TrimSuffix(f, upSuffix)] = f
		case strings.HasSuffix(f, downSuffix):
			downs[strings.TrimSuffix(f, downSuffix)] = f
		}
	}

	names := make([]string, 0, len(ups))
	for name := range ups {
		names = append(names, name)
	}
	for name := range downs {
		if _, ok := ups[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var (
		migs []*Migration
		errs []error
	)
	for _, name := range names {
		upFile, ok := ups[name]
		if !ok {
			errs = append(errs, &DiscoveryError{
				Source: downs[name], Msg: "down migration has no matching up migration",
			})
			continue
		}

		up, err := readFile(upFile)
		if err != nil {
			errs = append(errs, &DiscoveryError{Source: upFile, Err: err})
			continue
		}
		if len(db.SplitStatements(string(up))) == 0 {
			errs = append(errs, &DiscoveryError{Source: upFile, Msg: "up migration has no statements"})
			continue
		}

		var down []byte
		if downFile, ok := downs[name]; ok {
			down, err = readFile(downFile)
			if err != nil {
				errs = append(errs, &DiscoveryError{Source: downFile, Err: err})
				continue
			}
		}

		migs = append(migs, NewSQL(name, string(up), string(down)))
	}

	return migs, errors.Join(errs...)
}
