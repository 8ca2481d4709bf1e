// Package notifications pushes job outcomes to ntfy.
//
// The daemon and the run command emit one notification per terminal job
// state. When no topic is configured a no-op service is returned so callers
// never branch on whether notifications are enabled.
package notifications
