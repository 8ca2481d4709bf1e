// Package stage defines the contract between the orchestrator and the
// pipeline stages, and the artifact set the stages hand to each other.
package stage

import (
	"context"
	"log/slog"

	"narrator/internal/acquisition"
	"narrator/internal/analysis"
	"narrator/internal/commentary"
	"narrator/internal/compositor"
	"narrator/internal/cookies"
	"narrator/internal/source"
	"narrator/internal/speech"
)

// Stage names, also used as the stage field in logs and job records.
const (
	Acquiring    = "acquiring"
	Analyzing    = "analyzing"
	Scripting    = "scripting"
	Synthesizing = "synthesizing"
	Compositing  = "compositing"
)

// Handler is one pipeline step. Run reads its validated inputs from the
// artifact set and stores its outputs there. A failed Run leaves earlier
// outputs untouched so the same Run may be retried in place.
type Handler interface {
	Name() string
	Run(ctx context.Context, art *Artifacts) error
	HealthCheck(ctx context.Context) Health
}

// LoggerAware handlers receive the per-job stage logger before running.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Options are the caller's choices for a job.
type Options struct {
	Style    commentary.Style    `json:"style"`
	Language commentary.Language `json:"language"`
	Vertical bool                `json:"vertical"`
	// Provider and Model override the configured script model when set.
	Provider commentary.Provider `json:"provider,omitempty"`
	Model    string              `json:"model,omitempty"`
}

// Artifacts is everything a job has produced so far. Outputs are also
// persisted under WorkDir.
type Artifacts struct {
	JobID   string
	Source  source.Reference
	Options Options
	WorkDir string

	// Jar survives a failed acquisition attempt so a retry does not start
	// another browser session.
	Jar    *cookies.Jar
	Asset  *acquisition.VideoAsset
	Report *analysis.Report
	Script *commentary.Script
	Clips  []speech.AudioClip
	Output *compositor.Result

	notes []string
}

// Note records a human-readable remark for the current stage report.
func (a *Artifacts) Note(note string) {
	a.notes = append(a.notes, note)
}

// TakeNotes returns and clears the pending notes.
func (a *Artifacts) TakeNotes() []string {
	notes := a.notes
	a.notes = nil
	return notes
}

// Health is a stage's readiness as reported by the daemon health endpoint.
// Detail explains what is missing when Ready is false.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
