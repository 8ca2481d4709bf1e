// Package queue persists job history in SQLite.
//
// One row per job records the source, the caller's options, the current
// pipeline state and, once the job ends, its outcome: failed stage, error
// kind, output path and the per-stage report. The daemon creates the row on
// submission, updates the state at every stage boundary, and completes it on
// the terminal transition. CLI commands read the same database.
//
// The schema is embedded and versioned with PRAGMA user_version. A database
// written by a different version is rejected rather than migrated; delete it
// to start over. Writes retry briefly on SQLITE_BUSY because the CLI and the
// daemon may touch the file at the same time.
package queue
