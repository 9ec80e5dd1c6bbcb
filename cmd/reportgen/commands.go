package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"CompetitorReports/internal/app"
	"CompetitorReports/internal/config"
	"CompetitorReports/internal/logging"
)

var (
	configPath string
	dsn        string

	template      string
	priority      string
	allowPartial  bool
	requireFresh  bool
	force         bool
	initialReport bool
	timeout       time.Duration

	rootCmd = &cobra.Command{
		Use:          "reportgen",
		Short:        "Generate comparative competitor reports",
		SilenceUsage: true,
	}

	generateCmd = &cobra.Command{
		Use:   "generate [project-id]",
		Short: "Generate a report for a project, falling back to an emergency report on failure",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [project-id]",
		Short: "Check whether a project has the data generation needs",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	checkCmd = &cobra.Command{
		Use:   "check [report-id]",
		Short: "Check a stored report for integrity problems",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run one integrity pass over recently created reports",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}

	zombiesCmd = &cobra.Command{
		Use:   "zombies",
		Short: "List completed reports that have no content version",
		Args:  cobra.NoArgs,
		RunE:  runZombies,
	}

	importCmd = &cobra.Command{
		Use:   "import [project.yaml]",
		Short: "Create a project with its product and competitors from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic integrity sweep and serve metrics",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "database DSN (overrides config)")

	generateCmd.Flags().StringVar(&template, "template", "comprehensive", "report template: comprehensive, executive, technical, strategic")
	generateCmd.Flags().StringVar(&priority, "priority", "normal", "generation priority: high, normal, low")
	generateCmd.Flags().BoolVar(&allowPartial, "partial", false, "accept a partial report when data is incomplete")
	generateCmd.Flags().BoolVar(&requireFresh, "fresh", false, "require freshly captured snapshots")
	generateCmd.Flags().BoolVar(&force, "force", false, "skip duplicate suppression")
	generateCmd.Flags().BoolVar(&initialReport, "initial", false, "mark as the first report after project creation")
	generateCmd.Flags().DurationVar(&timeout, "timeout", 0, "overall generation timeout (0 uses generation.overallTimeout)")

	rootCmd.AddCommand(generateCmd, validateCmd, checkCmd, sweepCmd, zombiesCmd, importCmd, watchCmd)
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("REPORTGEN_CONFIG", configPath); err != nil {
			return config.Config{}, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg := config.Load()
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.Application, logger *slog.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return fn(ctx, application, logger)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
