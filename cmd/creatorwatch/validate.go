package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting the platform.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a creatorwatch configuration file without running a pass.

This command parses the YAML, expands environment variables, applies the
BILI_* overrides and validates all fields. It's useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  creatorwatch validate -c config.yaml
  creatorwatch validate --config /etc/creatorwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sinks := make([]string, 0, len(cfg.Notify))
	for _, n := range cfg.Notify {
		sinks = append(sinks, n.Type)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Creators:      %d\n", len(cfg.Creators))
	fmt.Fprintf(out, "  State:         %s %s\n", cfg.State.Backend, cfg.State.Path)
	fmt.Fprintf(out, "  HTTP timeout:  %s\n", cfg.HTTP.Timeout.Duration())
	fmt.Fprintf(out, "  Retry:         %d attempts, %s backoff\n", cfg.Retry.Attempts, cfg.Retry.Backoff.Duration())
	fmt.Fprintf(out, "  Concurrency:   %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Notify:        %v\n", sinks)
	if len(cfg.Creators) == 0 {
		fmt.Fprintf(out, "  Warning:       no creators configured, runs will do nothing\n")
	}

	return nil
}
