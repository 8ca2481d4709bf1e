package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/queue"
	"narrator/internal/staging"
	"narrator/internal/textutil"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var historyDays int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale working directories and old job history",
		Long: `Remove working directories left behind by crashed or interrupted jobs and
purge finished job records older than the retention period.

Directories still locked by a running job are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = time.Duration(cfg.Workflow.JanitorGraceSeconds) * time.Second
			}
			if !cmd.Flags().Changed("history-days") {
				historyDays = cfg.Workflow.HistoryRetentionDays
			}
			if dryRun {
				return listWorkDirs(cmd, ctx, cfg.Paths.WorkDir, olderThan)
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			cleaned := staging.CleanStale(cmd.Context(), cfg.Paths.WorkDir, olderThan, logger)
			var purged int64
			if historyDays > 0 {
				err := ctx.withStore(func(store *queue.Store) error {
					var err error
					purged, err = store.PurgeOlderThan(cmd.Context(), time.Duration(historyDays)*24*time.Hour)
					return err
				})
				if err != nil {
					return err
				}
			}

			if ctx.JSONMode() {
				errs := make([]string, 0, len(cleaned.Errors))
				for _, e := range cleaned.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				return writeJSON(cmd, map[string]any{
					"removed":        len(cleaned.Removed),
					"skipped":        len(cleaned.Skipped),
					"history_purged": purged,
					"removal_errors": errs,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d working directories (%d still in use)\n", len(cleaned.Removed), len(cleaned.Skipped))
			for _, e := range cleaned.Errors {
				fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
			}
			fmt.Fprintf(out, "Purged %d job records\n", purged)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of working directories to remove (default workflow.janitor_grace_seconds)")
	cmd.Flags().IntVar(&historyDays, "history-days", 0, "Purge finished jobs older than this many days, 0 keeps all (default workflow.history_retention_days)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List working directories without removing anything")
	return cmd
}

func listWorkDirs(cmd *cobra.Command, ctx *commandContext, root string, olderThan time.Duration) error {
	dirs, err := staging.ListDirectories(root)
	if err != nil {
		return fmt.Errorf("list working directories: %w", err)
	}
	if ctx.JSONMode() {
		if dirs == nil {
			dirs = []staging.DirInfo{}
		}
		return writeJSON(cmd, map[string]any{"work_dir": root, "directories": dirs})
	}
	if len(dirs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No working directories found")
		return nil
	}
	now := time.Now()
	rows := make([][]string, 0, len(dirs))
	var total int64
	for _, dir := range dirs {
		age := now.Sub(dir.ModTime)
		action := "keep"
		switch {
		case dir.Locked:
			action = "in use"
		case age >= olderThan:
			action = "remove"
		}
		total += dir.Size
		rows = append(rows, []string{shortID(dir.Name), formatAge(age), textutil.FormatBytes(dir.Size), action})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Working directory: %s\n", root)
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Age", "Size", "Action"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Total: %d directories, %s\n", len(dirs), textutil.FormatBytes(total))
	return nil
}
