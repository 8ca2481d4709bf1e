// Package api defines the wire-format types and services shared by the HTTP
// daemon and the CLI. It translates queue records and live workflow jobs into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// JobItem: one narration job with its stage reports, failure classification
// and deliverable path.
//
// HealthResponse: daemon readiness, stage health and external binaries.
//
// # Services
//
// JobService merges live jobs from the workflow manager with persisted
// history. Live jobs win so a running job reports its current state even
// before its first store write.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Durations are reported in milliseconds.
package api
