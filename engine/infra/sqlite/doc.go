// Package sqlite provides the modernc.org/sqlite backed conversation store.
//
// The package mirrors the postgres driver layout while supplying SQLite specific
// connection management, migrations, and the conversation repository.
package sqlite
