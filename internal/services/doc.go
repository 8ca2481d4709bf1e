// Package services defines shared utilities consumed by pipeline stages and
// external integrations.
//
// It holds the failure markers and their caller-facing Kind names, the Wrap
// helper that adds stage and operation context to an error, and context
// helpers that stamp job IDs, stage names, and request identifiers for
// logging.
package services
