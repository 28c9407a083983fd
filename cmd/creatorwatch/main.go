// Package main is the entry point for the creatorwatch CLI.
//
// creatorwatch can be used as a library (SDK) or as a standalone binary
// driven by a YAML file and BILI_* environment variables. This CLI provides
// the standalone binary approach. It runs one pass and exits; schedule it
// with cron or a systemd timer.
//
// Usage:
//
//	creatorwatch run -c config.yaml          # One pass over all creators
//	creatorwatch run --creators 123,456      # No config file needed
//	creatorwatch validate -c config.yaml     # Validate configuration
//	creatorwatch sign --img-key K --sub-key K foo=1
//	creatorwatch version                     # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "creatorwatch",
	Short: "Notify once per new upload from a set of creators",
	Long: `creatorwatch checks a fixed set of video creators for new uploads.

Each run signs its requests with the platform's rotating WBI keys, looks up
every creator's newest item and compares it with the last item recorded
for that creator. A creator seen for the first time is recorded silently;
a new item is notified once and recorded.

Quick start:
  1. export BILI_UP_IDS=123,456
  2. Run: creatorwatch run       (records the current items)
  3. Run it again from cron      (notifies only what is new)

Example config:
  creators: ["123", "456"]
  state:
    backend: file
    path: bili_latest_video.json
  notify:
    - type: stdout
    - type: webhook
      url: ${BILI_WEBHOOK_URL}`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this creatorwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "creatorwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}
