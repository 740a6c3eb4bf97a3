// Package storage is the schedule store: a durable keyed collection of jobs.
//
// Drivers:
//   - "file": one JSON snapshot, rewritten (tmp + rename) on every mutation
//   - "sqlite": one row per job in a SQLite database (modernc, no cgo)
//
// Both drivers serialize writes, persist before reporting success and
// back-fill incomplete records on load instead of rejecting them.
package storage
