package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/workflow"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when the job is in the wrong state for the request.
	ErrConflict = errors.New("job state conflict")
	// ErrUnavailable is returned when no workflow manager is attached.
	ErrUnavailable = errors.New("job execution unavailable")
)

// JobReader abstracts the history queries the service needs.
type JobReader interface {
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, filter queue.Filter, limit int) ([]queue.Job, error)
}

// JobRunner abstracts the live job operations the service needs.
type JobRunner interface {
	Submit(job *workflow.Job) error
	Cancel(id string) error
	Get(id string) (*workflow.Job, bool)
	Active() []*workflow.Job
}

// Defaults fill in omitted submission fields. CheckModel, when set, rejects
// a provider and model the daemon has no credentials for.
type Defaults struct {
	Style      string
	Language   string
	Vertical   bool
	Provider   string
	CheckModel func(provider, model string) error
}

// JobService exposes job operations returning API DTOs.
type JobService struct {
	store    JobReader
	runner   JobRunner
	defaults Defaults
}

// NewJobService constructs a service. runner may be nil for read-only use.
func NewJobService(store JobReader, runner JobRunner, defaults Defaults) *JobService {
	return &JobService{store: store, runner: runner, defaults: defaults}
}

// Submit validates req and hands the job to the runner.
func (s *JobService) Submit(req SubmitRequest) (JobItem, error) {
	if s.runner == nil {
		return JobItem{}, ErrUnavailable
	}
	vertical := s.defaults.Vertical
	if req.Vertical != nil {
		vertical = *req.Vertical
	}
	job, err := workflow.NewJob(workflow.Request{
		Source:   req.Source,
		Style:    firstNonEmpty(req.Style, s.defaults.Style),
		Language: firstNonEmpty(req.Language, s.defaults.Language),
		Vertical: vertical,
		Provider: firstNonEmpty(req.Provider, s.defaults.Provider),
		Model:    req.Model,
	})
	if err != nil {
		return JobItem{}, err
	}
	if s.defaults.CheckModel != nil {
		if err := s.defaults.CheckModel(string(job.Options.Provider), job.Options.Model); err != nil {
			return JobItem{}, services.Wrap(services.ErrValidation, "", "provider", "", err)
		}
	}
	if err := s.runner.Submit(job); err != nil {
		return JobItem{}, err
	}
	return FromLive(job), nil
}

// List returns live jobs first, then history newest first. limit applies to
// history only; zero means no limit.
func (s *JobService) List(ctx context.Context, statuses []queue.Status, limit int) ([]JobItem, error) {
	seen := make(map[string]bool)
	var out []JobItem
	if s.runner != nil {
		for _, job := range s.runner.Active() {
			item := FromLive(job)
			if matches(statuses, queue.Status(item.Status)) {
				out = append(out, item)
			}
			seen[job.ID] = true
		}
	}
	if s.store == nil {
		return out, nil
	}
	records, err := s.store.List(ctx, queue.Filter{Statuses: statuses}, limit)
	if err != nil {
		return nil, err
	}
	for _, item := range FromRecords(records) {
		if !seen[item.ID] {
			out = append(out, item)
		}
	}
	return out, nil
}

// Describe returns one job. Live jobs take precedence over history.
func (s *JobService) Describe(ctx context.Context, id string) (JobItem, error) {
	id = strings.TrimSpace(id)
	if s.runner != nil {
		if job, ok := s.runner.Get(id); ok {
			if _, status := job.State(); !status.IsTerminal() {
				return FromLive(job), nil
			}
		}
	}
	if s.store == nil {
		return JobItem{}, ErrNotFound
	}
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return JobItem{}, ErrNotFound
	}
	if err != nil {
		return JobItem{}, err
	}
	return FromRecord(rec), nil
}

// Cancel requests cancellation of a live job.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	if s.runner == nil {
		return ErrUnavailable
	}
	err := s.runner.Cancel(id)
	if errors.Is(err, workflow.ErrUnknownJob) {
		if _, describeErr := s.Describe(ctx, id); describeErr == nil {
			return fmt.Errorf("%w: job %s already finished", ErrConflict, id)
		}
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return nil
}

// OutputPath returns the deliverable of a succeeded job.
func (s *JobService) OutputPath(ctx context.Context, id string) (string, error) {
	item, err := s.Describe(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Status != string(queue.StatusSucceeded) || item.OutputPath == "" {
		return "", fmt.Errorf("%w: job %s has no output (status %s)", ErrConflict, id, item.Status)
	}
	if _, err := os.Stat(item.OutputPath); err != nil {
		return "", fmt.Errorf("%w: output of job %s is no longer available", ErrNotFound, id)
	}
	return item.OutputPath, nil
}

func matches(statuses []queue.Status, status queue.Status) bool {
	return len(statuses) == 0 || slices.Contains(statuses, status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
