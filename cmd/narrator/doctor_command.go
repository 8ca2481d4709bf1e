package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"narrator/internal/deps"
	"narrator/internal/preflight"
)

type doctorReport struct {
	Dependencies []deps.Status      `json:"dependencies"`
	Checks       []preflight.Result `json:"checks"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories and service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := doctorReport{
				Dependencies: deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg)),
				Checks:       preflight.RunAll(cmd.Context(), cfg, preflight.Options{Network: !offline}),
			}
			failures := len(deps.Missing(report.Dependencies)) + len(preflight.Failed(report.Checks))

			if ctx.JSONMode() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printDoctor(cmd, report)
			}
			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that call the model endpoints")
	return cmd
}

func printDoctor(cmd *cobra.Command, report doctorReport) {
	out := cmd.OutOrStdout()
	depRows := make([][]string, 0, len(report.Dependencies))
	for _, st := range report.Dependencies {
		state := "ok"
		switch {
		case !st.Available && st.Optional:
			state = "missing (optional)"
		case !st.Available:
			state = "missing"
		}
		detail := st.Version
		if !st.Available {
			detail = st.Detail
		}
		depRows = append(depRows, []string{st.Name, st.Command, state, valueOrDash(detail)})
	}
	fmt.Fprintln(out, renderTable([]string{"Binary", "Command", "Status", "Detail"}, depRows, nil))

	checkRows := make([][]string, 0, len(report.Checks))
	for _, r := range report.Checks {
		state := "ok"
		if !r.Passed {
			state = "FAIL"
		}
		checkRows = append(checkRows, []string{r.Name, state, valueOrDash(r.Detail)})
	}
	fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, checkRows, nil))
}
