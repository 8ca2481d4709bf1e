// Package main hosts the narrator CLI entrypoint and command graph.
//
// The Cobra command tree runs single jobs in the foreground, serves the job
// API as a daemon, inspects and cancels jobs, and scaffolds configuration.
// Pipeline wiring lives in internal/workflow; commands here only resolve
// configuration, build the collaborators and render results.
package main
