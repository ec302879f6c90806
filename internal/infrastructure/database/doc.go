// Package database provides the SQLite connection for the address
// inventory store.
//
// SQLite fits the workload: a single writer (the recorder), occasional
// readers (the CLI), a small schema, and zero operational overhead.
// WAL mode keeps reads concurrent with the write path.
package database
