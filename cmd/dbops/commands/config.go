package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/internal/config"
)

// NewConfigCommand creates the config command group
func NewConfigCommand(cfg *config.Config) *cobra.Command {
	return newConfigCommand(cfg, deps{})
}

func newConfigCommand(cfg *config.Config, d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the dbops configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate dbops.yaml and print the effective configuration",
		Long: `Validate loads dbops.yaml, applies environment overrides, checks the result
against the configuration schema and prints the effective configuration with
secrets redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := d.withDefaults()

			if err := loadConfig(cfg); err != nil {
				return err
			}

			out, err := cfg.Definition.Redacted()
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}

			cfg.Logger.Info("Configuration is valid")
			_, err = d.stdout.Write(out)
			return err
		},
	})

	return cmd
}
