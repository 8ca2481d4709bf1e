package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/logging"
	"narrator/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var filter logs.Filter
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the narrator log, optionally for one job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			entries, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(e logs.Entry) { printEntry(out, e, ctx.JSONMode()) }
			for _, e := range entries {
				emit(e)
			}
			if !follow {
				if len(entries) == 0 && !ctx.JSONMode() {
					fmt.Fprintf(out, "No log entries in %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, filter, 500*time.Millisecond, emit)
		},
	}

	cmd.Flags().StringVarP(&filter.JobID, "job", "j", "", "Only entries for this job id or id prefix")
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "Only entries for this stage")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level: debug, info, warn or error")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of past entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries until interrupted")
	return cmd
}

func printEntry(w io.Writer, e logs.Entry, asJSON bool) {
	if asJSON {
		encoded, err := json.Marshal(e)
		if err == nil {
			fmt.Fprintln(w, string(encoded))
		}
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", e.Time, strings.ToUpper(e.Level))
	if e.JobID != "" {
		fmt.Fprintf(&b, " [%s", shortID(e.JobID))
		if e.Stage != "" {
			b.WriteString("/" + e.Stage)
		}
		b.WriteString("]")
	} else if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" " + e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	fmt.Fprintln(w, b.String())
}
