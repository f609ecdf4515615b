package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/internal/config"
	"github.com/systmms/dbops/internal/metrics"
	"github.com/systmms/dbops/internal/rotate"
	"github.com/systmms/dbops/internal/secure"
	"golang.org/x/term"
)

// Test seams for the admin password prompt
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// NewRotateCommand creates the rotate command
func NewRotateCommand(cfg *config.Config) *cobra.Command {
	return newRotateCommand(cfg, deps{})
}

func newRotateCommand(cfg *config.Config, d deps) *cobra.Command {
	var (
		dryRun        bool
		noRestart     bool
		sinkType      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Create a new privileged database user and restart the container",
		Long: `Rotate generates a new username (user_ + 6 random characters) and a
12 character password, creates the user with full privileges in a single
transaction, delivers the credentials to the configured sink and restarts the
database container.

The container is only restarted when the user was created successfully.

Sinks:
  stdout              print the credentials (default)
  keyring             store the password in the OS keyring
  aws-secretsmanager  write {"username","password"} to rotate.sink.secret_id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := d.withDefaults()

			if err := loadConfig(cfg); err != nil {
				return err
			}
			def := cfg.Definition

			if sinkType != "" {
				def.Rotate.Sink.Type = sinkType
				if err := def.Validate(); err != nil {
					return err
				}
			}

			adminPassword, err := resolveAdminPassword(cfg, d.stdin, passwordStdin)
			if err != nil {
				return err
			}
			defer adminPassword.Destroy()

			ctx := commandContext(cmd)

			var sink rotate.Sink
			if !dryRun {
				sink, err = rotate.NewSink(ctx, def.Rotate.Sink, d.stdout)
				if err != nil {
					return err
				}
			}

			rotator := rotate.NewRotator(rotate.Options{
				DatabaseType:  def.DatabaseType(),
				Database:      def.Database,
				Rotate:        def.Rotate,
				AdminPassword: adminPassword,
				Restart:       def.RestartEnabled() && !noRestart,
				DryRun:        dryRun,
			}, sink, d.executor, cfg.Logger)
			if d.openDB != nil {
				rotator.SetOpener(d.openDB)
			}

			rec := metrics.NewRecorder()
			defer writeMetrics(cfg, rec, cfg.MetricsTextfile)

			result, err := rotator.Rotate(ctx)
			switch {
			case err != nil:
				rec.RecordRotation(def.Database.Name, "failed")
				return err
			case result.DryRun:
				rec.RecordRotation(def.Database.Name, "dry_run")
			default:
				rec.RecordRotation(def.Database.Name, "success")
			}

			cfg.Logger.Debug("Rotation %s finished in %v", result.RunID, result.Duration)
			if result.Sink != "" && result.Sink != "stdout" {
				cfg.Logger.Info("Credentials for %s stored in %s", result.Username, result.Sink)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL with the password redacted and change nothing")
	cmd.Flags().BoolVar(&noRestart, "no-restart", false, "Do not restart the database container")
	cmd.Flags().StringVar(&sinkType, "sink", "", "Credential sink: stdout, keyring or aws-secretsmanager")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the admin password from stdin")

	return cmd
}

// resolveAdminPassword seals the admin password. --password-stdin wins over
// the configured value; an empty value is prompted for on a terminal.
func resolveAdminPassword(cfg *config.Config, stdin io.Reader, fromStdin bool) (*secure.SecureBuffer, error) {
	if fromStdin {
		pw, err := readLine(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return secure.FromString(pw), nil
	}

	if pw := cfg.Definition.Database.Password; pw != "" {
		return secure.FromString(pw), nil
	}

	f, ok := stdin.(*os.File)
	if cfg.NonInteractive || !ok || !isTerminal(int(f.Fd())) {
		return secure.NewSecureBuffer(nil), nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Definition.Database.User, cfg.Definition.Database.Host)
	pw, err := readPassword(int(f.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return secure.NewSecureBuffer(pw), nil
}

// readLine returns the first line of r without its line ending
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
