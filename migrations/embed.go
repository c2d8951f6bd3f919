// Package migrations holds the SQL migrations bundled with the binary. They
// are used when the migration source is "bundled", which is the default when
// running as a serverless function.
//
// Each migration is a pair of files named <name>.up.sql and <name>.down.sql.
// Migrations are applied in ascending name order, so names should start with
// a sortable timestamp, as produced by the "create" command.
package migrations

import "embed"

// FS contains the bundled migration files.
//
//go:embed *.sql
var FS embed.FS
