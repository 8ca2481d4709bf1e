package workflow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"narrator/internal/commentary"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/source"
	"narrator/internal/stage"
)

// Request is what a caller submits.
type Request struct {
	Source   string `json:"source"`
	Style    string `json:"style"`
	Language string `json:"language"`
	Vertical bool   `json:"vertical"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Job is one narration run.
type Job struct {
	ID        string
	Source    source.Reference
	Options   stage.Options
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	status  queue.Status
	workDir string
}

// NewJob validates req and returns a job in the created state. Invalid input
// is reported as ErrInvalidSource or ErrValidation before any work starts.
func NewJob(req Request) (*Job, error) {
	ref, err := source.Classify(req.Source)
	if err != nil {
		return nil, err
	}
	style, err := commentary.ParseStyle(req.Style)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "style", "", err)
	}
	lang, err := commentary.ParseLanguage(req.Language)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "language", "", err)
	}
	provider, err := commentary.ParseProvider(req.Provider)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "provider", "", err)
	}
	if provider != "" && !provider.Supports(lang) {
		return nil, services.Wrap(services.ErrValidation, "", "language",
			fmt.Sprintf("%s narration requires the %s provider, not %s", lang.Name(), commentary.OpenAI, provider), nil)
	}
	return &Job{
		ID:     uuid.NewString(),
		Source: ref,
		Options: stage.Options{
			Style:    style,
			Language: lang,
			Vertical: req.Vertical,
			Provider: provider,
			Model:    strings.TrimSpace(req.Model),
		},
		CreatedAt: time.Now().UTC(),
		state:     StateCreated,
		status:    queue.StatusPending,
	}, nil
}

// State returns the current pipeline state and status.
func (j *Job) State() (State, queue.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.status
}

// WorkDir returns the job working directory while the job runs.
func (j *Job) WorkDir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.workDir
}

// advance moves the job to next when the transition is legal.
func (j *Job) advance(next State, status queue.Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == "" {
		j.state = StateCreated
	}
	if !CanTransition(j.state, next) {
		return false
	}
	j.state = next
	j.status = status
	return true
}

func (j *Job) setWorkDir(dir string) {
	j.mu.Lock()
	j.workDir = dir
	j.mu.Unlock()
}

func (j *Job) record() *queue.Job {
	state, status := j.State()
	return &queue.Job{
		ID:        j.ID,
		Source:    j.Source.String(),
		Style:     string(j.Options.Style),
		Language:  string(j.Options.Language),
		Vertical:  j.Options.Vertical,
		Provider:  string(j.Options.Provider),
		Model:     j.Options.Model,
		Status:    status,
		State:     string(state),
		CreatedAt: j.CreatedAt,
	}
}

func trimMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	const limit = 500
	if len(msg) > limit {
		return msg[:limit] + "…"
	}
	return msg
}
