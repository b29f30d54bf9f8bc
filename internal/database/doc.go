// Package database provides SQLite-based storage for owlpair.
//
// RunDB keeps:
//   - dialogue runs with their answer, token usage and status
//   - the transcript of every run, one row per round
//   - composite documents produced by the extraction pipeline
//
// The database is a single file opened through modernc.org/sqlite, so no
// cgo toolchain is needed. WAL mode is enabled by default.
package database
