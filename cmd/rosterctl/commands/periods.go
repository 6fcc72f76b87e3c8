package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/crew-roster/generic"
)

// PeriodCmd resolves a date or a period code to its roster period.
func PeriodCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "period [date|code]",
		Short: "Show the roster period for a date (default today) or a code like RP01/2026",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := app.App.Service
			var (
				p   generic.RosterPeriod
				err error
			)
			switch {
			case len(args) == 1 && strings.HasPrefix(strings.ToUpper(args[0]), "RP"):
				p, err = svc.PeriodByCode(app.Ctx, strings.ToUpper(args[0]))
			default:
				var d generic.TimePoint
				if len(args) == 1 {
					d, err = generic.ParseDate(args[0])
				} else {
					d = app.today()
				}
				if err != nil {
					return fmt.Errorf("invalid date: %w", err)
				}
				p, err = svc.Period(app.Ctx, d)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Period:   %s\n", p.Code)
			fmt.Fprintf(out, "Dates:    %s .. %s\n", p.Start, p.End)
			fmt.Fprintf(out, "Deadline: %s (%d days)\n", p.Deadline, p.DaysUntilDeadline(app.today()))
			fmt.Fprintf(out, "Status:   %s\n", p.Status)
			return nil
		},
	}
}

// PeriodsCmd lists periods starting within a date range.
func PeriodsCmd(app *AppContext) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List roster periods between two dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := app.dateArg(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end := start.AddDays(168)
			if to != "" {
				if end, err = generic.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			periods, err := app.App.Service.ListPeriods(app.Ctx, start, end)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-10s %-10s %-10s %s\n", "CODE", "START", "END", "DEADLINE", "STATUS")
			for _, p := range periods {
				fmt.Fprintf(out, "%-10s %-10s %-10s %-10s %s\n", p.Code, p.Start, p.End, p.Deadline, p.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD, default from + 168 days)")
	return cmd
}

// StatusCmd moves a period through OPEN, LOCKED, PUBLISHED, ARCHIVED.
func StatusCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <code> <status>",
		Short: "Set the status of a roster period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			next := generic.PeriodStatus(strings.ToUpper(args[1]))
			if !next.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			p, err := app.App.Service.SetPeriodStatus(app.Ctx, strings.ToUpper(args[0]), next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", p.Code, p.Status)
			return nil
		},
	}
}
