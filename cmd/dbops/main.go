package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/cmd/dbops/commands"
	"github.com/systmms/dbops/internal/config"
	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/logging"
	"github.com/systmms/dbops/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile      string
		noColor         bool
		debug           bool
		nonInteractive  bool
		metricsTextfile string
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "dbops",
		Short: "Database operations - backups, health probes and credential rotation",
		Long: `dbops dumps a containerised database to a timestamped SQL file, probes an
application health endpoint, and rotates database credentials.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Required = cmd.Flags().Changed("config")
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
			cfg.MetricsTextfile = metricsTextfile
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cfg.Logger != nil {
				_ = cfg.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt for input")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write run metrics to this file in Prometheus textfile format")

	rootCmd.AddCommand(
		commands.NewBackupCommand(cfg),
		commands.NewProbeCommand(cfg),
		commands.NewRotateCommand(cfg),
		commands.NewConfigCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
