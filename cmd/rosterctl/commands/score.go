package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/warp/crew-roster/priority"
)

// ScoreCmd prints the priority score for a seniority and approved-days pair.
func ScoreCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "score <seniority> <approved_days>",
		Short: "Compute a priority score with the configured weights",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seniority, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("seniority must be a number: %w", err)
			}
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("approved_days must be a number: %w", err)
			}

			scorer, err := priority.NewScorer(app.App.Config.Priority)
			if err != nil {
				return err
			}
			w := scorer.Weights()
			fmt.Fprintf(cmd.OutOrStdout(), "Score: %d\n", scorer.Score(seniority, days))
			fmt.Fprintf(cmd.OutOrStdout(), "Weights: K=%d D=%d seniority=%d days=%d\n", w.K, w.D, w.Seniority, w.Days)
			return nil
		},
	}
}
