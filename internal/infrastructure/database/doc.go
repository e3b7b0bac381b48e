// Package database provides the SQLite persistence layer for the relay core.
//
// It wraps database/sql with connection configuration suited to SQLite
// (single writer, WAL mode, busy timeout) and a small embedded-migrations
// runner. Migration files live in the top-level migrations package and are
// compiled into the binary, so a deployment never needs loose SQL files.
//
// The repositories in internal/device, internal/automation and
// internal/account build on the *sql.DB this package opens; it knows nothing
// about their schemas beyond the schema_migrations bookkeeping table.
package database
