// Package invoke maps invocation requests onto migration operations. It is the
// boundary between an event source, such as a serverless function runtime or
// the command line, and the migration engine.
//
// A request is a JSON document of the form:
//
//	{"type": "to", "data": {"name": "20250102000000_add_email"}, "database": "app"}
//
// Supported types are "latest" (the default), "to" and "list". A "to" request
// without a name rolls back every applied migration.
package invoke
