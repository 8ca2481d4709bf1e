// Package acquisition retrieves one playable media file for a job.
//
// Remote sources are probed for metadata before any media byte is
// transferred, so oversized or over-long videos are rejected cheaply. A
// download that fails with an authentication-class error triggers exactly one
// cookie provisioning run and one cookie-assisted retry. Local sources are
// size checked, copied into the job's working directory and inspected.
//
// Every failure carries one of the services markers (ErrInvalidSource,
// ErrDurationExceeded, ErrSizeExceeded, ErrAuthenticationRequired,
// ErrDownloadTimeout, ErrNoMediaFound) so the orchestrator can report a stable
// kind without string matching.
package acquisition
