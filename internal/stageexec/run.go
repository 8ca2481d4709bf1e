// Package stageexec runs a single pipeline stage with a per-attempt timeout
// and bounded in-place retry.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/stage"
)

// Policy bounds in-place retries of a stage.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// Backoff is the wait after the given 1-based failed attempt:
// Initial × 2^(attempt-1), capped at Max.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// Options describe one stage run.
type Options struct {
	Logger    *slog.Logger
	Handler   stage.Handler
	Artifacts *stage.Artifacts
	// Timeout applies to each attempt separately. Zero means no limit.
	Timeout time.Duration
	Policy  Policy
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome is the result of a stage run.
type Outcome struct {
	Stage     string
	Attempts  int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Run executes the stage until it succeeds, fails with a non-retryable
// error, exhausts its attempts, or the parent context ends.
func Run(ctx context.Context, opts Options) Outcome {
	name := opts.Handler.Name()
	out := Outcome{Stage: name, StartedAt: time.Now()}
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = wait
	}
	attempts := max(opts.Policy.MaxAttempts, 1)

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Duration("timeout", opts.Timeout),
		logging.Int("max_attempts", attempts),
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		err := runAttempt(ctx, opts, name)
		if err == nil {
			out.Duration = time.Since(out.StartedAt)
			logger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("elapsed", out.Duration),
			)
			return out
		}
		out.Err = err
		if ctx.Err() != nil || !services.Retryable(err) || attempt == attempts {
			break
		}
		delay := opts.Policy.Backoff(attempt)
		logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.String(logging.FieldErrorHint, "transient service failure; retrying automatically"),
			logging.String(logging.FieldImpact, "stage takes longer"),
			logging.Error(err),
		)
		if serr := sleep(ctx, delay); serr != nil {
			break
		}
	}

	if ctxErr := services.FromContext(ctx); ctxErr != nil && !errors.Is(out.Err, services.ErrCancelled) && !errors.Is(out.Err, services.ErrTimeout) {
		out.Err = fmt.Errorf("%w: %w", ctxErr, out.Err)
	}
	out.Duration = time.Since(out.StartedAt)
	logging.ErrorWithContext(logger, "stage failed", "stage_failed",
		logging.Int(logging.FieldAttempt, out.Attempts),
		logging.String(logging.FieldErrorKind, string(services.KindOf(out.Err))),
		logging.String(logging.FieldErrorHint, hintFor(services.KindOf(out.Err))),
		logging.Duration("elapsed", out.Duration),
		logging.Error(out.Err),
	)
	return out
}

func runAttempt(ctx context.Context, opts Options, name string) error {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	err := opts.Handler.Run(attemptCtx, opts.Artifacts)
	if err == nil {
		return nil
	}
	// The attempt's own deadline, not the caller's, makes this a stage timeout.
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrDownloadTimeout) {
		if errors.Is(err, services.ErrTimeout) {
			return err
		}
		return services.Wrap(services.ErrTimeout, name, "run", fmt.Sprintf("stage exceeded %s", opts.Timeout), err)
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindInvalidSource:
		return "check the source URL or file path"
	case services.KindDurationExceeded:
		return "submit a shorter clip or raise limits.max_duration_seconds"
	case services.KindSizeExceeded:
		return "submit a smaller file or raise limits.max_upload_bytes"
	case services.KindAuthenticationRequired:
		return "enable the browser provisioner or check the platform still serves the video"
	case services.KindDownloadTimeout, services.KindTimeout:
		return "raise the stage timeout or retry later"
	case services.KindAnalysisService, services.KindGenerationService, services.KindSynthesisService:
		return "check the service credentials, quota and base_url"
	case services.KindComposition:
		return "check ffmpeg output in the logs"
	case services.KindConfiguration:
		return "run narrator config validate"
	case services.KindCancelled:
		return "job was cancelled"
	}
	return "check logs for details"
}
