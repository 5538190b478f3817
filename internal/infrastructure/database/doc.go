// Package database provides the SQLite connection and embedded migration
// runner backing the mediafleet module store.
//
// SQLite is used in WAL mode with a single-writer connection pool. Migrations
// are embedded into the binary via the migrations package and applied in
// version order, each in its own transaction.
package database
