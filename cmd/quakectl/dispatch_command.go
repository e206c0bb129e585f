package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/adapter/httpadapter"
	"github.com/couchcryptid/quake-notifier/internal/dispatch"
)

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one fetch-match-deliver cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			report, err := a.Dispatcher.RunCycle(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.wantJSON() {
				return writeJSON(cmd, httpadapter.NewReportView(report))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Outcome: %s\n", report.Outcome)
			if report.Err != nil {
				fmt.Fprintf(out, "Error: %v\n", report.Err)
			}
			fmt.Fprintf(out, "Events: %d fetched, %d new\n", report.FetchedEvents, len(report.NewEvents))
			fmt.Fprintf(out, "Watermark: %s (advanced: %t)\n", report.Watermark.Format("2006-01-02 15:04:05Z07:00"), report.WatermarkAdvanced)
			if len(report.Users) > 0 {
				printTable(cmd,
					[]string{"User", "Outcome", "Matched", "Delivered", "Failed", "Bundle"},
					userResultRows(report.Users),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
			}
			return nil
		},
	}
}

func userResultRows(results []dispatch.UserResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.UserID,
			r.Outcome,
			strconv.Itoa(r.Matched),
			strconv.Itoa(r.Delivered),
			strconv.Itoa(r.Failed),
			r.BundleID,
		})
	}
	return rows
}
