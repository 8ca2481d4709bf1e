// Package workflow runs narration jobs through the pipeline.
//
// A job moves strictly forward through
//
//	created → acquiring → analyzing → scripting → synthesizing → compositing → done
//
// and may instead end in failed or cancelled from any non-terminal state.
// There is no re-entry: a stage that fails with a transient error is retried
// in place by stageexec before the job is failed.
//
// Orchestrator.Run executes one job in the calling goroutine. It owns the
// job working directory (staging.Acquire), applies the job and stage
// timeouts, validates each stage's output before the next stage sees it,
// and on every terminal path moves the deliverable out, purges the working
// directory, records the outcome and sends a notification. It always returns
// a PipelineResult; errors never cross the job boundary unclassified.
//
// Manager runs many jobs concurrently under a weighted semaphore and exposes
// submit, cancel and wait to the daemon.
package workflow
