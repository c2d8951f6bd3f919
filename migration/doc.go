// Package migration manages versioned database schema migrations.
//
// Features:
// - Supports both forward (`up`) and rollback (`down`) migrations
// - Discovers migrations from Go code, SQL files embedded at build time, or a
// directory scanned at run time (`{name}.up.sql` and `{name}.down.sql`)
// - Tracks applied migrations in a dedicated table of the target database,
// updated in the same transaction as each schema change
// - Plans the steps needed to reach the latest migration, a named migration,
// or the empty state, refusing to plan around gaps in the applied history
// - Executes plans one step at a time, stopping at the first failure
package migration
