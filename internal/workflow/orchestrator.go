package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/stage"
	"narrator/internal/stageexec"
	"narrator/internal/staging"
)

// finalizeTimeout bounds the bookkeeping done after a job ends, which runs
// even when the job context is already cancelled.
const finalizeTimeout = 15 * time.Second

// JobStore persists job history.
type JobStore interface {
	Create(ctx context.Context, job *queue.Job) error
	UpdateState(ctx context.Context, id, state string, status queue.Status) error
	Complete(ctx context.Context, job *queue.Job) error
}

// Settings configure the orchestrator.
type Settings struct {
	WorkRoot      string
	OutputDir     string
	JobTimeout    time.Duration
	StageTimeouts map[string]time.Duration
	Policy        stageexec.Policy
	// LogLevels raises the log floor per stage name.
	LogLevels map[string]string
}

// Orchestrator runs jobs through an ordered list of stages.
type Orchestrator struct {
	stages   []stage.Handler
	settings Settings
	store    JobStore
	notifier notifications.Service
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithStore records job history in store.
func WithStore(store JobStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithNotifier sends terminal notifications through n.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRetrySleep replaces the wait between stage attempts.
func WithRetrySleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// NewOrchestrator constructs an orchestrator. Stages run in the given order
// and must each map to a pipeline state.
func NewOrchestrator(stages []stage.Handler, settings Settings, opts ...Option) (*Orchestrator, error) {
	for _, h := range stages {
		if _, ok := StateForStage(h.Name()); !ok {
			return nil, fmt.Errorf("stage %q has no pipeline state", h.Name())
		}
	}
	if settings.WorkRoot == "" {
		return nil, fmt.Errorf("work root required")
	}
	o := &Orchestrator{
		stages:   stages,
		settings: settings,
		notifier: notifications.NewNoop(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "workflow")
	return o, nil
}

// HealthCheck reports the readiness of every stage.
func (o *Orchestrator) HealthCheck(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(o.stages))
	for _, h := range o.stages {
		out = append(out, h.HealthCheck(ctx))
	}
	return out
}

// Run executes job to a terminal state. The returned result is also what is
// persisted and notified.
func (o *Orchestrator) Run(ctx context.Context, job *Job) PipelineResult {
	started := time.Now()
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, o.logger)
	result := PipelineResult{JobID: job.ID, StartedAt: started.UTC()}

	o.persist(ctx, logger, func(c context.Context) error { return o.store.Create(c, job.record()) })
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source", job.Source.String()),
		logging.String("platform", job.Source.Platform),
		logging.String("style", string(job.Options.Style)),
		logging.String("language", string(job.Options.Language)),
	)

	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.settings.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, o.settings.JobTimeout)
	}
	defer cancel()

	dir, err := staging.Acquire(o.settings.WorkRoot, job.ID)
	if err != nil {
		o.fail(&result, job, "", services.Wrap(services.ErrConfiguration, "", "acquire work dir", "", err))
		return o.finish(ctx, logger, job, nil, result, started)
	}
	defer func() {
		if err := dir.Release(); err != nil {
			logging.WarnWithContext(logger, "failed to purge job working directory", "workdir_purge_failed",
				logging.String("path", dir.Path),
				logging.String(logging.FieldErrorHint, "the janitor removes it after the grace period"),
				logging.Error(err),
			)
		}
	}()
	job.setWorkDir(dir.Path)

	art := &stage.Artifacts{
		JobID:   job.ID,
		Source:  job.Source,
		Options: job.Options,
		WorkDir: dir.Path,
	}
	for _, h := range o.stages {
		name := h.Name()
		state, _ := StateForStage(name)
		if err := services.FromContext(jobCtx); err != nil {
			o.fail(&result, job, name, err)
			break
		}
		if job.advance(state, queue.StatusRunning) {
			result.State = state
			o.persist(ctx, logger, func(c context.Context) error {
				return o.store.UpdateState(c, job.ID, string(state), queue.StatusRunning)
			})
		}

		out := stageexec.Run(jobCtx, stageexec.Options{
			Logger:    logging.OverrideLevel(o.logger, name, o.settings.LogLevels),
			Handler:   h,
			Artifacts: art,
			Timeout:   o.settings.StageTimeouts[name],
			Policy:    o.settings.Policy,
			Sleep:     o.sleep,
		})
		report := StageReport{
			Stage:     name,
			Status:    queue.StatusSucceeded,
			Attempts:  out.Attempts,
			StartedAt: out.StartedAt.UTC(),
			Duration:  out.Duration,
			Notes:     art.TakeNotes(),
		}
		if out.Err != nil {
			kind := o.fail(&result, job, name, out.Err)
			report.Status = result.Status
			report.ErrorKind = kind
			report.Message = result.Message
			result.Stages = append(result.Stages, report)
			break
		}
		result.Stages = append(result.Stages, report)
	}

	if result.Status == "" {
		o.deliver(&result, job, art, dir)
	}
	return o.finish(ctx, logger, job, art, result, started)
}

// deliver moves the deliverable out of the working directory and marks the
// job done.
func (o *Orchestrator) deliver(result *PipelineResult, job *Job, art *stage.Artifacts, dir *staging.Dir) {
	if art.Output == nil || art.Output.Path == "" {
		o.fail(result, job, "", services.Wrap(services.ErrComposition, "", "deliver", "pipeline produced no output", nil))
		return
	}
	dst := filepath.Join(o.settings.OutputDir, job.ID, filepath.Base(art.Output.Path))
	if err := dir.Keep(art.Output.Path, dst); err != nil {
		o.fail(result, job, "", services.Wrap(services.ErrComposition, "", "deliver", "move output", err))
		return
	}
	job.advance(StateDone, queue.StatusSucceeded)
	result.State = StateDone
	result.Status = queue.StatusSucceeded
	result.OutputPath = dst
	result.Truncated = art.Output.Plan.Truncated()
}

// fail classifies err, moves the job to its terminal state and fills the
// failure fields of result. It returns the kind.
func (o *Orchestrator) fail(result *PipelineResult, job *Job, stageName string, err error) services.Kind {
	kind := classify(stageName, err)
	state, status := StateFailed, queue.StatusFailed
	if kind == services.KindCancelled {
		state, status = StateCancelled, queue.StatusCancelled
	}
	job.advance(state, status)
	result.State = state
	result.Status = status
	result.FailedStage = stageName
	result.ErrorKind = kind
	result.Message = trimMessage(err.Error())
	return kind
}

// classify returns err's kind, falling back to the failing stage's service
// kind so no failure leaves the job unclassified.
func classify(stageName string, err error) services.Kind {
	if kind := services.KindOf(err); kind != services.KindNone {
		return kind
	}
	switch stageName {
	case stage.Acquiring:
		return services.KindNoMediaFound
	case stage.Analyzing:
		return services.KindAnalysisService
	case stage.Scripting:
		return services.KindGenerationService
	case stage.Synthesizing:
		return services.KindSynthesisService
	case stage.Compositing:
		return services.KindComposition
	}
	return services.KindConfiguration
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, job *Job, art *stage.Artifacts, result PipelineResult, started time.Time) PipelineResult {
	result.Duration = time.Since(started)
	bookkeeping, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	o.persist(bookkeeping, logger, func(c context.Context) error { return o.store.Complete(c, result.record(job)) })

	outcome := notifications.Outcome{
		JobID:      job.ID,
		Source:     job.Source.String(),
		Style:      string(job.Options.Style),
		Status:     string(result.Status),
		Stage:      result.FailedStage,
		ErrorKind:  string(result.ErrorKind),
		Message:    result.Message,
		OutputPath: result.OutputPath,
		Truncated:  len(result.Truncated),
		Duration:   result.Duration,
	}
	var notifyErr error
	switch result.Status {
	case queue.StatusSucceeded:
		notifyErr = o.notifier.NotifyJobSucceeded(bookkeeping, outcome)
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.String("output", result.OutputPath),
			logging.Int("truncated_segments", len(result.Truncated)),
			logging.Duration("elapsed", result.Duration),
		)
	case queue.StatusCancelled:
		notifyErr = o.notifier.NotifyJobCancelled(bookkeeping, outcome)
		logger.Info("job cancelled",
			logging.String(logging.FieldEventType, "job_cancelled"),
			logging.String(logging.FieldStage, result.FailedStage),
		)
	default:
		notifyErr = o.notifier.NotifyJobFailed(bookkeeping, outcome)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String("failed_stage", result.FailedStage),
			logging.String(logging.FieldErrorKind, string(result.ErrorKind)),
			logging.String("error_message", result.Message),
			logging.Duration("elapsed", result.Duration),
		)
	}
	if notifyErr != nil {
		logger.Debug("job notification failed", logging.Error(notifyErr))
	}
	return result
}

func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, op func(context.Context) error) {
	if o.store == nil {
		return
	}
	if err := op(ctx); err != nil {
		logging.WarnWithContext(logger, "failed to persist job history", "job_store_failed",
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions and disk space"),
			logging.String(logging.FieldImpact, "job history may be incomplete"),
			logging.Error(err),
		)
	}
}
