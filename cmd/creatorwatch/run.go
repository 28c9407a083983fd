package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/creatorwatch"
	"github.com/jpalmerr/creatorwatch/config"
	"github.com/spf13/cobra"
)

// runCmd performs a single pass over every configured creator.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every creator once",
	Long: `Check every configured creator once and exit.

Configuration is layered: the YAML file (optional), then the BILI_*
environment variables, then command-line flags.

  BILI_UP_IDS       comma-separated creator ids
  BILI_STATE_FILE   state file path
  BILI_PROXY        http(s) proxy for platform requests
  BILI_WEBHOOK_URL  adds a webhook notification sink

Exit codes:
  0 - Pass completed (individual creators may have failed; see the log)
  1 - Invalid configuration, or the state could not be saved

Example:
  creatorwatch run -c creatorwatch.yaml
  BILI_UP_IDS=123,456 creatorwatch run --state /var/lib/creatorwatch/state.json`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file")
	runCmd.Flags().String("creators", "", "comma-separated creator ids (overrides config and BILI_UP_IDS)")
	runCmd.Flags().String("state", "", "state file or database path (overrides config and BILI_STATE_FILE)")
}

// loadConfig reads the file at path, or the defaults when path is empty,
// then overlays the environment.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), verbose)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("creators") {
		raw, _ := cmd.Flags().GetString("creators")
		cfg.Creators = config.CreatorList(creatorwatch.ParseCreatorIDs(raw))
	}
	if cmd.Flags().Changed("state") {
		cfg.State.Path, _ = cmd.Flags().GetString("state")
	}

	logger.Info("config loaded",
		"creators", len(cfg.Creators),
		"state_backend", cfg.State.Backend,
		"notify_sinks", len(cfg.Notify),
	)

	// nothing to check: open no backend and no sink
	if len(cfg.Creators) == 0 {
		logger.Warn("no creators configured, nothing to do")
		return nil
	}

	// cancel on SIGINT/SIGTERM; an interrupted pass still saves what it saw
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, release, err := config.BuildOptions(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to build watcher: %w", err)
	}

	w, err := creatorwatch.New(opts...)
	if err != nil {
		if cerr := release(); cerr != nil {
			logger.Warn("close failed", "error", cerr)
		}
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	report, err := w.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	logger.Info("pass complete",
		"run_id", report.RunID,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
		"updated", report.Count(creatorwatch.OutcomeUpdated),
		"first_seen", report.Count(creatorwatch.OutcomeFirstSeen),
		"unchanged", report.Count(creatorwatch.OutcomeUnchanged),
		"failed", report.Count(creatorwatch.OutcomeFailed),
	)
	if ctx.Err() != nil {
		logger.Warn("pass interrupted", "error", ctx.Err())
	}
	return nil
}
