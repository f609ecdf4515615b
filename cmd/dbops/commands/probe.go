package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/internal/config"
	"github.com/systmms/dbops/internal/metrics"
	"github.com/systmms/dbops/internal/probe"
)

// NewProbeCommand creates the probe command
func NewProbeCommand(cfg *config.Config) *cobra.Command {
	return newProbeCommand(cfg, deps{}, nil)
}

func newProbeCommand(cfg *config.Config, d deps, client probe.HTTPClient) *cobra.Command {
	var (
		url      string
		timeout  time.Duration
		fail     bool
		textfile string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the application health endpoint returns 200",
		Long: `Probe sends one GET request to the health endpoint and prints whether the
application is healthy. Only the configured status codes (200 by default)
count as healthy.

By default the verdict is only printed. Use --fail to exit non-zero when the
application is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := d.withDefaults()

			if err := loadConfig(cfg); err != nil {
				return err
			}
			def := cfg.Definition

			if url != "" {
				def.Probe.URL = url
			}

			pc := probe.DefaultConfig()
			pc.ExpectedStatusCodes = def.Probe.ExpectedStatus
			pc.Timeout = time.Duration(def.Probe.TimeoutMs) * time.Millisecond
			if cmd.Flags().Changed("timeout") {
				pc.Timeout = timeout
			}

			checker := probe.NewChecker(pc, cfg.Logger)
			if client != nil {
				checker.SetClient(client)
			}

			result := checker.Check(commandContext(cmd), def.Probe.URL)
			probe.Report(d.stdout, result)
			cfg.Logger.Debug("%s: %s", result.URL, result.Message)

			if textfile == "" {
				textfile = cfg.MetricsTextfile
			}
			rec := metrics.NewRecorder()
			rec.RecordProbe(result.URL, result.Healthy, result.StatusCode, result.Duration)
			writeMetrics(cfg, rec, textfile)

			if fail && !result.Healthy {
				return fmt.Errorf("health check failed: %s", result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Health endpoint (overrides probe.url and HEALTHCHECK_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout, 0 for none")
	cmd.Flags().BoolVar(&fail, "fail", false, "Exit non-zero when the application is unhealthy")
	cmd.Flags().StringVar(&textfile, "textfile", "", "Write the result in Prometheus textfile format")

	return cmd
}
