// Package storage persists the history of signal fires.
//
// Two drivers are available:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, WAL mode)
package storage
