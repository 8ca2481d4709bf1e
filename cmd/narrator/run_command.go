package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/config"
	"narrator/internal/notifications"
	"narrator/internal/queue"
	"narrator/internal/workflow"
)

const cancelGrace = 30 * time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	var style string
	var language string
	var vertical bool
	var provider string
	var model string

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Narrate one video in the foreground",
		Long: `Run the full pipeline for one video URL or local file and wait for it.

The finished video is moved under paths.output_dir. Interrupting the command
cancels the job and records it as cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("vertical") {
				vertical = cfg.Compositor.Vertical
			}
			job, err := workflow.NewJob(workflow.Request{
				Source:   args[0],
				Style:    firstNonEmpty(style, cfg.Workflow.DefaultStyle),
				Language: firstNonEmpty(language, cfg.Workflow.DefaultLanguage),
				Vertical: vertical,
				Provider: firstNonEmpty(provider, cfg.LLM.Provider),
				Model:    model,
			})
			if err != nil {
				return err
			}
			if _, err := cfg.LLMServiceFor(string(job.Options.Provider), job.Options.Model); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				result, err := runJob(cmd.Context(), cfg, store, logger, job)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, result); err != nil {
						return err
					}
				} else {
					printResult(cmd, result)
				}
				if !result.Succeeded() {
					return &jobFailedError{kind: result.ErrorKind, msg: fmt.Sprintf("job %s %s", result.JobID, result.Status)}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", "", "Commentary style (default workflow.default_style)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Narration language: en or ur (default workflow.default_language)")
	cmd.Flags().BoolVar(&vertical, "vertical", false, "Render a 9:16 output (default compositor.vertical)")
	cmd.Flags().StringVar(&provider, "provider", "", "Script model provider: openai or deepseek (default llm.provider)")
	cmd.Flags().StringVar(&model, "model", "", "Script model name (default the provider's model)")
	return cmd
}

// runJob executes job through a single-slot manager so disk checks and
// cancellation behave as they do under the daemon.
func runJob(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger, job *workflow.Job) (workflow.PipelineResult, error) {
	orch, err := workflow.NewOrchestrator(
		workflow.NewComponents(cfg, logger).Stages(),
		workflow.SettingsFromConfig(cfg),
		workflow.WithStore(store),
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return workflow.PipelineResult{}, err
	}
	manager := workflow.NewManager(orch, workflow.ManagerOptions{
		MaxConcurrent: 1,
		MinFreeDiskMB: cfg.Limits.MinFreeDiskMB,
		Logger:        logger,
	})
	if err := manager.Submit(job); err != nil {
		return workflow.PipelineResult{}, err
	}

	result, err := manager.Wait(ctx, job.ID)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return workflow.PipelineResult{}, err
	}
	graceCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
	defer cancel()
	if err := manager.Shutdown(graceCtx); err != nil {
		return workflow.PipelineResult{}, fmt.Errorf("job %s did not stop within %s: %w", job.ID, cancelGrace, err)
	}
	return manager.Wait(graceCtx, job.ID)
}

func printResult(cmd *cobra.Command, result workflow.PipelineResult) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(result.Stages))
	for _, st := range result.Stages {
		rows = append(rows, []string{
			st.Stage,
			string(st.Status),
			fmt.Sprintf("%d", st.Attempts),
			formatElapsed(st.Duration),
			valueOrDash(strings.Join(st.Notes, "; ")),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Stage", "Status", "Attempts", "Time", "Notes"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	fmt.Fprintf(out, "Job:      %s\n", result.JobID)
	fmt.Fprintf(out, "Status:   %s\n", result.Status)
	fmt.Fprintf(out, "Duration: %s\n", formatElapsed(result.Duration))
	if result.OutputPath != "" {
		fmt.Fprintf(out, "Output:   %s\n", result.OutputPath)
	}
	if len(result.Truncated) > 0 {
		fmt.Fprintf(out, "Truncated segments: %v\n", result.Truncated)
	}
	if !result.Succeeded() {
		fmt.Fprintf(out, "Failed at %s (%s): %s\n", valueOrDash(result.FailedStage), valueOrDash(string(result.ErrorKind)), result.Message)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
