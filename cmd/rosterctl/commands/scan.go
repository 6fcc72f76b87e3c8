package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ScanCmd runs one deadline alert scan. Meant for cron when the server's
// in-process scheduler is disabled.
func ScanCmd(app *AppContext) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the deadline alert scan once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := app.dateArg(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}

			report, scanErr := app.App.Alerts.Scan(app.Ctx, today)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scan for %s: %d open period(s) in range [%s]\n",
				report.Today, len(report.Checked), strings.Join(report.Checked, ", "))
			for _, f := range report.Fired {
				fmt.Fprintf(out, "  ✓ %s milestone %d (%d days): %d pending, %d approved\n",
					f.PeriodCode, f.Milestone, f.DaysUntil, f.Counts.Pending, f.Counts.Approved)
			}
			for _, f := range report.Failed {
				fmt.Fprintf(out, "  ✗ %s milestone %d: %s %s\n", f.PeriodCode, f.Milestone, f.Outcome, f.Detail)
			}
			if scanErr != nil {
				return scanErr
			}
			if len(report.Failed) > 0 {
				return errors.New("one or more reminders failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Scan date (YYYY-MM-DD, default today)")
	return cmd
}
