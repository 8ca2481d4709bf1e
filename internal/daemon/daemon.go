package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"narrator/internal/api"
	"narrator/internal/config"
	"narrator/internal/deps"
	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another narrator daemon instance is already running")

// Daemon serves the job API and runs the janitor until its context ends.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	manager *workflow.Manager
	orch    *workflow.Orchestrator
	jobs    *api.JobService
	lock    *flock.Flock
	deps    []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, orch *workflow.Orchestrator, manager *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, orchestrator and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "daemon"),
		store:   store,
		manager: manager,
		orch:    orch,
		jobs: api.NewJobService(store, manager, api.Defaults{
			Style:    cfg.Workflow.DefaultStyle,
			Language: cfg.Workflow.DefaultLanguage,
			Vertical: cfg.Compositor.Vertical,
			Provider: cfg.LLM.Provider,
			CheckModel: func(provider, model string) error {
				_, err := cfg.LLMServiceFor(provider, model)
				return err
			},
		}),
		lock: flock.New(cfg.LockPath()),
	}, nil
}

// Run blocks until ctx ends or the server fails. Running jobs are cancelled
// and recorded before it returns.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if n, err := d.store.MarkInterrupted(ctx, "daemon restarted while the job was running"); err != nil {
		logging.WarnWithContext(d.logger, "failed to mark interrupted jobs", "mark_interrupted_failed", logging.Error(err))
	} else if n > 0 {
		d.logger.Info("marked interrupted jobs failed", logging.Int64("jobs", n))
	}
	d.deps = deps.CheckBinaries(ctx, deps.Requirements(d.cfg))
	for _, missing := range deps.Missing(d.deps) {
		logging.WarnWithContext(d.logger, "required binary unavailable", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String(logging.FieldErrorHint, missing.Detail),
			logging.String(logging.FieldImpact, "jobs needing it will fail"),
		)
	}

	listener, err := net.Listen("tcp", d.cfg.API.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	srv := &http.Server{
		Handler: newHandler(d.jobs, serverOptions{
			Token:       d.cfg.API.Token,
			CORSOrigins: d.cfg.API.CORSOrigins,
			Logger:      d.logger,
			Health:      d.Health,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	jan := &janitor{
		workRoot:     d.cfg.Paths.WorkDir,
		outputDir:    d.cfg.Paths.OutputDir,
		grace:        time.Duration(d.cfg.Workflow.JanitorGraceSeconds) * time.Second,
		retention:    time.Duration(d.cfg.Workflow.HistoryRetentionDays) * 24 * time.Hour,
		retainOutput: d.cfg.Workflow.RetainOutput,
		history:      d.store,
		logger:       logging.NewComponentLogger(d.logger, "janitor"),
		now:          time.Now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.logger.Info("narrator daemon listening",
			logging.String(logging.FieldEventType, "daemon_start"),
			logging.String("address", listener.Addr().String()),
			logging.String("lock", d.cfg.LockPath()),
		)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return jan.run(gctx, time.Duration(d.cfg.Workflow.JanitorIntervalSeconds)*time.Second)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api server shutdown incomplete", logging.Error(err))
		}
		if err := d.manager.Shutdown(shutdownCtx); err != nil {
			logging.WarnWithContext(d.logger, "jobs still running at shutdown", "shutdown_timeout",
				logging.String(logging.FieldImpact, "their history rows are marked interrupted on next start"),
				logging.Error(err),
			)
		}
		return nil
	})
	err = g.Wait()
	d.logger.Info("narrator daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	return err
}

// Health reports stage readiness and binary availability.
func (d *Daemon) Health(ctx context.Context) api.HealthResponse {
	stages := d.orch.HealthCheck(ctx)
	status := "ok"
	for _, h := range stages {
		if !h.Ready {
			status = "degraded"
		}
	}
	if len(deps.Missing(d.deps)) > 0 {
		status = "degraded"
	}
	return api.HealthResponse{
		Status:       status,
		PID:          os.Getpid(),
		StorePath:    d.store.Path(),
		ActiveJobs:   len(d.manager.Active()),
		Stages:       api.FromHealth(stages),
		Dependencies: api.FromDependencies(d.deps),
	}
}
