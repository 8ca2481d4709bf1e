// Package daemon hosts the long-running narrator service: a single-instance
// lock, the HTTP job API, and the janitor that sweeps stale working
// directories, expired history and unretained deliverables.
package daemon
