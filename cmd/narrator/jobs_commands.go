package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				records, err := store.List(cmd.Context(), queue.Filter{Statuses: statuses}, limit)
				if err != nil {
					return err
				}
				items := api.FromRecords(records)
				if ctx.JSONMode() {
					if items == nil {
						items = []api.JobItem{}
					}
					return writeJSON(cmd, api.JobListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "State", "Style", "Age", "Time", "Source"},
					jobRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (pending, running, succeeded, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	return cmd
}

func jobRows(records []queue.Job) [][]string {
	rows := make([][]string, 0, len(records))
	now := time.Now()
	for _, rec := range records {
		rows = append(rows, []string{
			shortID(rec.ID),
			string(rec.Status),
			rec.State,
			rec.Style,
			formatAge(now.Sub(rec.CreatedAt)),
			formatElapsed(rec.Duration),
			rec.Source,
		})
	}
	return rows
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(strings.ToLower(strings.TrimSpace(value)))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		out = append(out, status)
	}
	return out, nil
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job with its stage reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				rec, err := findJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				item := api.FromRecord(rec)
				if ctx.JSONMode() {
					return writeJSON(cmd, api.JobItemResponse{Item: item})
				}
				printJob(cmd, item)
				return nil
			})
		},
	}
}

// findJob resolves a full id or a unique id prefix.
func findJob(ctx context.Context, store *queue.Store, id string) (*queue.Job, error) {
	id = strings.TrimSpace(id)
	rec, err := store.Get(ctx, id)
	if err == nil || !errors.Is(err, queue.ErrNotFound) {
		return rec, err
	}
	all, err := store.List(ctx, queue.Filter{}, 0)
	if err != nil {
		return nil, err
	}
	var match *queue.Job
	for i := range all {
		if !strings.HasPrefix(all[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("job id prefix %q is ambiguous", id)
		}
		match = &all[i]
	}
	if match == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return match, nil
}

func printJob(cmd *cobra.Command, item api.JobItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", item.ID)
	fmt.Fprintf(out, "Source:   %s\n", item.Source)
	fmt.Fprintf(out, "Style:    %s (%s)\n", item.Style, item.Language)
	fmt.Fprintf(out, "Vertical: %t\n", item.Vertical)
	if item.Provider != "" || item.Model != "" {
		fmt.Fprintf(out, "Model:    %s %s\n", valueOrDash(item.Provider), item.Model)
	}
	fmt.Fprintf(out, "Status:   %s / %s\n", item.Status, item.State)
	fmt.Fprintf(out, "Created:  %s\n", valueOrDash(item.CreatedAt))
	if item.DurationMS > 0 {
		fmt.Fprintf(out, "Duration: %s\n", formatElapsed(time.Duration(item.DurationMS)*time.Millisecond))
	}
	if item.OutputPath != "" {
		fmt.Fprintf(out, "Output:   %s\n", item.OutputPath)
	}
	if len(item.Truncated) > 0 {
		fmt.Fprintf(out, "Truncated segments: %v\n", item.Truncated)
	}
	if item.FailedStage != "" || item.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s at %s: %s\n", valueOrDash(item.ErrorKind), valueOrDash(item.FailedStage), item.ErrorMessage)
	}
	if len(item.Stages) == 0 {
		return
	}
	rows := make([][]string, 0, len(item.Stages))
	for _, st := range item.Stages {
		detail := strings.Join(st.Notes, "; ")
		if st.Message != "" {
			detail = st.Message
		}
		rows = append(rows, []string{
			st.Stage,
			st.Status,
			fmt.Sprintf("%d", st.Attempts),
			formatElapsed(time.Duration(st.DurationMS) * time.Millisecond),
			valueOrDash(detail),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Status", "Attempts", "Time", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var style string
	var language string
	var vertical bool
	var provider string
	var model string

	cmd := &cobra.Command{
		Use:   "submit <source>",
		Short: "Submit a job to the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req := api.SubmitRequest{Source: args[0], Style: style, Language: language, Provider: provider, Model: model}
			if cmd.Flags().Changed("vertical") {
				req.Vertical = &vertical
			}
			item, err := newDaemonClient(cfg).Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, api.JobItemResponse{Item: item})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s, %s)\n", item.ID, item.Style, item.Language)
			return nil
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", "", "Commentary style (daemon default when omitted)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Narration language: en or ur")
	cmd.Flags().BoolVar(&vertical, "vertical", false, "Render a 9:16 output")
	cmd.Flags().StringVar(&provider, "provider", "", "Script model provider: openai or deepseek")
	cmd.Flags().StringVar(&model, "model", "", "Script model name")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job running in the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := newDaemonClient(cfg).Cancel(cmd.Context(), id); err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]string{"id": id, "status": "cancelling"})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", id)
			return nil
		},
	}
}
