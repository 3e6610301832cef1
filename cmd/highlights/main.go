package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"FeedHighlights/internal/app"
	"FeedHighlights/internal/collector"
	"FeedHighlights/internal/config"
	"FeedHighlights/internal/logging"
)

const (
	exitOK                 = 0
	exitFailure            = 1
	exitSourceInaccessible = 2
)

var (
	configPath string
	rawPreview bool
)

var rootCmd = &cobra.Command{
	Use:           "highlights",
	Short:         "Weekly highlights digest for a subreddit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv("HIGHLIGHTS_CONFIG", configPath)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, build and publish one digest (honours DRY_RUN)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), app.Options{RawPreview: rawPreview, Out: cmd.OutOrStdout()})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Build the digest and print it without publishing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), app.Options{ForceDryRun: true, RawPreview: rawPreview, Out: cmd.OutOrStdout()})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run on the configured cron expression and serve the status endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

		application, err := app.New(cmd.Context(), cfg, logger, app.Options{RawPreview: rawPreview, Out: cmd.OutOrStdout()})
		if err != nil {
			return err
		}
		defer application.Close()

		return application.Schedule(cmd.Context())
	},
}

func runOnce(ctx context.Context, opts app.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("run finished", "run_id", report.RunID, "status", report.Status, "selected", report.Selected)
	return nil
}

// exitCode separates "the source could not be read" from other failures so
// schedulers can alert on them differently.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, collector.ErrSourceInaccessible):
		return exitSourceInaccessible
	default:
		return exitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set HIGHLIGHTS_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&rawPreview, "raw", false, "Print dry-run previews as plain Markdown")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "highlights:", err)
	}
	os.Exit(exitCode(err))
}
