package queue

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// Status is the coarse lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the job has finished.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(value); s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return s, true
	}
	return "", false
}

// StageRecord is the persisted report of one stage.
type StageRecord struct {
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	Notes      []string  `json:"notes,omitempty"`
}

// Job is one row of job history.
type Job struct {
	ID           string
	Source       string
	Style        string
	Language     string
	Vertical     bool
	Provider     string
	Model        string
	Status       Status
	State        string
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	OutputPath   string
	Stages       []StageRecord
	Truncated    []int
	Duration     time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Filter narrows List results. The zero value matches every job.
type Filter struct {
	Statuses []Status
}
