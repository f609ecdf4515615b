package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/internal/config"
	"github.com/systmms/dbops/internal/metrics"
	"github.com/systmms/dbops/pkg/exec"
)

// deps are the collaborators commands reach outside the process with.
// Tests replace them; production uses the zero value.
type deps struct {
	executor exec.CommandExecutor
	stdout   io.Writer
	stdin    io.Reader
	openDB   func(driver, dsn string) (*sql.DB, error)
}

func (d deps) withDefaults() deps {
	if d.executor == nil {
		d.executor = exec.DefaultExecutor()
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stdin == nil {
		d.stdin = os.Stdin
	}
	return d
}

// loadConfig loads dbops.yaml unless a definition is already present
func loadConfig(cfg *config.Config) error {
	if cfg.Definition != nil {
		return nil
	}
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// writeMetrics flushes rec to path, logging rather than failing the command
func writeMetrics(cfg *config.Config, rec *metrics.Recorder, path string) {
	if path == "" {
		return
	}
	if err := rec.WriteTextfile(path); err != nil {
		cfg.Logger.Warn("Failed to write metrics to %s: %v", path, err)
		return
	}
	cfg.Logger.Debug("Metrics written to %s", path)
}
