package api

import (
	"time"

	"narrator/internal/deps"
	"narrator/internal/queue"
	"narrator/internal/stage"
	"narrator/internal/workflow"
)

// FromRecord converts a persisted job to its API representation.
func FromRecord(job *queue.Job) JobItem {
	if job == nil {
		return JobItem{}
	}
	dto := JobItem{
		ID:           job.ID,
		Source:       job.Source,
		Style:        job.Style,
		Language:     job.Language,
		Vertical:     job.Vertical,
		Provider:     job.Provider,
		Model:        job.Model,
		Status:       string(job.Status),
		State:        job.State,
		FailedStage:  job.FailedStage,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		OutputPath:   job.OutputPath,
		Truncated:    job.Truncated,
		DurationMS:   job.Duration.Milliseconds(),
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	for _, s := range job.Stages {
		dto.Stages = append(dto.Stages, StageReport{
			Stage:      s.Stage,
			Status:     s.Status,
			Attempts:   s.Attempts,
			StartedAt:  formatTime(s.StartedAt),
			DurationMS: s.DurationMS,
			ErrorKind:  s.ErrorKind,
			Message:    s.Message,
			Notes:      s.Notes,
		})
	}
	return dto
}

// FromRecords converts a list of persisted jobs.
func FromRecords(jobs []queue.Job) []JobItem {
	out := make([]JobItem, 0, len(jobs))
	for i := range jobs {
		out = append(out, FromRecord(&jobs[i]))
	}
	return out
}

// FromLive converts a job the workflow manager is still tracking.
func FromLive(job *workflow.Job) JobItem {
	if job == nil {
		return JobItem{}
	}
	state, status := job.State()
	return JobItem{
		ID:        job.ID,
		Source:    job.Source.String(),
		Style:     string(job.Options.Style),
		Language:  string(job.Options.Language),
		Vertical:  job.Options.Vertical,
		Provider:  string(job.Options.Provider),
		Model:     job.Options.Model,
		Status:    string(status),
		State:     string(state),
		CreatedAt: formatTime(job.CreatedAt),
	}
}

// FromResult converts a finished pipeline run.
func FromResult(job *workflow.Job, result workflow.PipelineResult) JobItem {
	dto := FromLive(job)
	dto.Status = string(result.Status)
	dto.State = string(result.State)
	dto.FailedStage = result.FailedStage
	dto.ErrorKind = string(result.ErrorKind)
	dto.ErrorMessage = result.Message
	dto.OutputPath = result.OutputPath
	dto.Truncated = result.Truncated
	dto.DurationMS = result.Duration.Milliseconds()
	for _, s := range result.Stages {
		dto.Stages = append(dto.Stages, StageReport{
			Stage:      s.Stage,
			Status:     string(s.Status),
			Attempts:   s.Attempts,
			StartedAt:  formatTime(s.StartedAt),
			DurationMS: s.Duration.Milliseconds(),
			ErrorKind:  string(s.ErrorKind),
			Message:    s.Message,
			Notes:      s.Notes,
		})
	}
	return dto
}

// FromHealth converts stage health in pipeline order.
func FromHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDependencies converts binary availability reports.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
