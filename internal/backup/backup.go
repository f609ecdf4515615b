// Package backup dumps a containerised database to a timestamped SQL file.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/logging"
	"github.com/systmms/dbops/internal/secure"
	"github.com/systmms/dbops/pkg/exec"
)

// timestampLayout renders as YYYYMMDDHHMMSS
const timestampLayout = "20060102150405"

// Filename returns the dump file name for db taken at t.
func Filename(db string, t time.Time) string {
	return fmt.Sprintf("%s_backup_%s.sql", db, t.Format(timestampLayout))
}

// Options describes what to dump and where.
type Options struct {
	// DatabaseType is "mysql" or "postgres"
	DatabaseType string
	Container    string
	Database     string
	User         string
	Password     *secure.SecureBuffer
	Dir          string
}

// Result describes a finished dump.
type Result struct {
	Path     string
	Size     int64
	Started  time.Time
	Duration time.Duration
}

// Dumper runs the dump tool inside the database container.
type Dumper struct {
	opts     Options
	executor exec.CommandExecutor
	logger   *logging.Logger
	now      func() time.Time
}

// NewDumper creates a Dumper. A nil executor means the real docker CLI.
func NewDumper(opts Options, executor exec.CommandExecutor, logger *logging.Logger) *Dumper {
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	return &Dumper{
		opts:     opts,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Backup writes one dump file. Each call creates a new file.
func (d *Dumper) Backup(ctx context.Context) (*Result, error) {
	started := d.now()

	if err := os.MkdirAll(d.opts.Dir, 0o750); err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to create backup directory",
			Details:    err.Error(),
			Suggestion: "Check permissions on " + d.opts.Dir + " or set BACKUP_DIR",
			Err:        err,
		}
	}

	path := filepath.Join(d.opts.Dir, Filename(d.opts.Database, started))

	var password string
	if d.opts.Password != nil {
		if err := d.opts.Password.With(func(b []byte) error {
			password = string(b)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	args, tool, err := d.dumpArgs(password)
	if err != nil {
		return nil, err
	}

	d.logDebug("Running %s", logging.Redact(exec.CommandLine("docker", args...), []string{password}))

	// #nosec G304 -- path is built from the configured backup dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return nil, dserrors.UserError{
			Message:    "A dump with this timestamp already exists",
			Details:    path,
			Suggestion: "Dump names have one-second resolution; wait a second and run the backup again",
			Err:        err,
		}
	}
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to create backup file",
			Details:    err.Error(),
			Suggestion: "Check permissions on " + d.opts.Dir,
			Err:        err,
		}
	}

	stderr, runErr := d.executor.Stream(ctx, f, "docker", args...)
	closeErr := f.Close()

	if runErr != nil {
		_ = os.Remove(path)
		return nil, d.commandError(tool, runErr, stderr, password)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write %s: %w", path, closeErr)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return &Result{
		Path:     path,
		Size:     info.Size(),
		Started:  started,
		Duration: d.now().Sub(started),
	}, nil
}

// dumpArgs builds the docker exec arguments. The password travels in the
// container environment, never on the dump tool's command line.
func (d *Dumper) dumpArgs(password string) ([]string, string, error) {
	args := []string{"exec"}

	switch d.opts.DatabaseType {
	case "mysql":
		if password != "" {
			args = append(args, "-e", "MYSQL_PWD="+password)
		}
		args = append(args, d.opts.Container, "mysqldump", "-u", d.opts.User, d.opts.Database)
		return args, "mysqldump", nil
	case "postgres":
		if password != "" {
			args = append(args, "-e", "PGPASSWORD="+password)
		}
		args = append(args, d.opts.Container, "pg_dump", "-U", d.opts.User, d.opts.Database)
		return args, "pg_dump", nil
	default:
		return nil, "", dserrors.ConfigError{
			Field:      "database.type",
			Value:      d.opts.DatabaseType,
			Message:    "no dump tool for this database type",
			Suggestion: "Use mysql, mariadb or postgres",
		}
	}
}

func (d *Dumper) commandError(tool string, err error, stderr []byte, password string) error {
	if exec.IsNotFound(err) {
		return dserrors.WrapCommandNotFound("docker", err)
	}

	msg := strings.TrimSpace(logging.Redact(string(stderr), []string{password}))
	if msg == "" {
		msg = err.Error()
	}

	cmdErr := dserrors.CommandError{
		Command:  "docker exec " + d.opts.Container + " " + tool,
		ExitCode: exec.ExitCode(err),
		Message:  msg,
		Err:      err,
	}
	if strings.Contains(msg, "No such container") || strings.Contains(msg, "is not running") {
		cmdErr.Suggestion = "Check the container name with 'docker ps' and set DB_CONTAINER"
	}
	return cmdErr
}

func (d *Dumper) logDebug(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(format, args...)
	}
}
