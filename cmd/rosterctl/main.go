// rosterctl is the operator CLI: period lookups, score checks, status
// changes and one-shot alert scans against the configured store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/app"
	"github.com/warp/crew-roster/cmd/rosterctl/commands"
	"github.com/warp/crew-roster/config"
	"github.com/warp/crew-roster/logging"
)

var configPath string

func main() {
	os.Exit(run())
}

// run owns cleanup: cobra skips PersistentPostRun when a command fails,
// so the app and logger are released by defers here.
func run() int {
	appCtx := &commands.AppContext{Ctx: context.Background()}
	var logger *zap.Logger
	defer func() {
		if appCtx.App != nil {
			appCtx.App.Close()
		}
		if logger != nil {
			logger.Sync()
		}
	}()

	rootCmd := &cobra.Command{
		Use:          "rosterctl",
		Short:        "Crew roster operator CLI",
		Long:         `Inspect roster periods, check priority scores, change period status and run deadline alert scans.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := commands.RequirePersistentStore(cfg); err != nil {
				return err
			}
			// Only command output belongs on stdout.
			cfg.Logging.Level = "warn"
			logger, err = logging.NewWithWriter(cfg.Logging, os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			appCtx.Ctx = cmd.Context()
			appCtx.App, err = app.New(appCtx.Ctx, cfg, logger)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "crew-roster.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(commands.PeriodCmd(appCtx))
	rootCmd.AddCommand(commands.PeriodsCmd(appCtx))
	rootCmd.AddCommand(commands.StatusCmd(appCtx))
	rootCmd.AddCommand(commands.ScoreCmd(appCtx))
	rootCmd.AddCommand(commands.ScanCmd(appCtx))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}
