// Package logs reads the JSON log file the daemon and CLI write under
// paths.log_dir.
//
// Records are parsed into Entry values and filtered by job, stage and level,
// so `narrator logs --job <id>` can show the history of a single job. Last
// keeps bounded memory by holding only the newest matches; Follow polls from
// a byte offset until its context ends.
package logs
