package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a job in a transport-friendly format.
type JobItem struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Style        string        `json:"style"`
	Language     string        `json:"language"`
	Vertical     bool          `json:"vertical"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Status       string        `json:"status"`
	State        string        `json:"state"`
	FailedStage  string        `json:"failedStage,omitempty"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	OutputPath   string        `json:"outputPath,omitempty"`
	Truncated    []int         `json:"truncatedSegments,omitempty"`
	DurationMS   int64         `json:"durationMs,omitempty"`
	Stages       []StageReport `json:"stages,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
}

// StageReport is the outcome of one stage of a job.
type StageReport struct {
	Stage      string   `json:"stage"`
	Status     string   `json:"status"`
	Attempts   int      `json:"attempts"`
	StartedAt  string   `json:"startedAt,omitempty"`
	DurationMS int64    `json:"durationMs"`
	ErrorKind  string   `json:"errorKind,omitempty"`
	Message    string   `json:"message,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	Source   string `json:"source"`
	Style    string `json:"style,omitempty"`
	Language string `json:"language,omitempty"`
	Vertical *bool  `json:"vertical,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Items []JobItem `json:"items"`
}

// JobItemResponse wraps a single job.
type JobItemResponse struct {
	Item JobItem `json:"item"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// HealthResponse aggregates daemon runtime information.
type HealthResponse struct {
	Status       string             `json:"status"`
	PID          int                `json:"pid"`
	StorePath    string             `json:"storePath"`
	ActiveJobs   int                `json:"activeJobs"`
	Stages       []StageHealth      `json:"stages"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
