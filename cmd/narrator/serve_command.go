package main

import (
	"errors"

	"github.com/spf13/cobra"

	"narrator/internal/daemon"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/queue"
	"narrator/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job API daemon",
		Long: `Serve the HTTP job API on api.bind until interrupted.

Jobs run concurrently up to limits.max_concurrent_jobs. On shutdown running
jobs are cancelled and recorded before the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				logging.WarnWithContext(logger, "service credentials incomplete", "credentials_missing",
					logging.String(logging.FieldImpact, "affected stages report unhealthy and their jobs fail"),
					logging.Error(err),
				)
			}
			return ctx.withStore(func(store *queue.Store) error {
				orch, err := workflow.NewOrchestrator(
					workflow.NewComponents(cfg, logger).Stages(),
					workflow.SettingsFromConfig(cfg),
					workflow.WithStore(store),
					workflow.WithNotifier(notifications.NewService(cfg)),
					workflow.WithLogger(logger),
				)
				if err != nil {
					return err
				}
				manager := workflow.NewManager(orch, workflow.ManagerOptions{
					MaxConcurrent: cfg.Limits.MaxConcurrentJobs,
					MinFreeDiskMB: cfg.Limits.MinFreeDiskMB,
					Logger:        logger,
				})
				d, err := daemon.New(cfg, store, orch, manager, logger)
				if err != nil {
					return err
				}
				err = d.Run(cmd.Context())
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return errors.New("narrator daemon already running (lock " + cfg.LockPath() + ")")
				}
				return err
			})
		},
	}
}
