package workflow

import (
	"time"

	"narrator/internal/queue"
	"narrator/internal/services"
)

// StageReport records how one stage went.
type StageReport struct {
	Stage     string        `json:"stage"`
	Status    queue.Status  `json:"status"`
	Attempts  int           `json:"attempts"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	ErrorKind services.Kind `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Notes     []string      `json:"notes,omitempty"`
}

// PipelineResult is the structured outcome handed back to the caller.
type PipelineResult struct {
	JobID       string        `json:"job_id"`
	Status      queue.Status  `json:"status"`
	State       State         `json:"state"`
	OutputPath  string        `json:"output_path,omitempty"`
	FailedStage string        `json:"failed_stage,omitempty"`
	ErrorKind   services.Kind `json:"error_kind,omitempty"`
	Message     string        `json:"message,omitempty"`
	Stages      []StageReport `json:"stages"`
	Truncated   []int         `json:"truncated,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Succeeded reports whether the job produced its deliverable.
func (r PipelineResult) Succeeded() bool { return r.Status == queue.StatusSucceeded }

func (r PipelineResult) record(job *Job) *queue.Job {
	rec := job.record()
	rec.Status = r.Status
	rec.State = string(r.State)
	rec.FailedStage = r.FailedStage
	rec.ErrorKind = string(r.ErrorKind)
	rec.ErrorMessage = r.Message
	rec.OutputPath = r.OutputPath
	rec.Truncated = r.Truncated
	rec.Duration = r.Duration
	rec.Stages = make([]queue.StageRecord, 0, len(r.Stages))
	for _, s := range r.Stages {
		rec.Stages = append(rec.Stages, queue.StageRecord{
			Stage:      s.Stage,
			Status:     string(s.Status),
			Attempts:   s.Attempts,
			StartedAt:  s.StartedAt,
			DurationMS: s.Duration.Milliseconds(),
			ErrorKind:  string(s.ErrorKind),
			Message:    s.Message,
			Notes:      s.Notes,
		})
	}
	return rec
}
