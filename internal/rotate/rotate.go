// Package rotate creates a new privileged database login, delivers it to a
// credential sink and restarts the database container.
package rotate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/systmms/dbops/internal/config"
	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/logging"
	"github.com/systmms/dbops/internal/secure"
	"github.com/systmms/dbops/pkg/exec"
)

// Options configures a Rotator.
type Options struct {
	// DatabaseType is "mysql" or "postgres"
	DatabaseType string
	Database     config.DatabaseConfig
	Rotate       config.RotateConfig
	// AdminPassword authenticates Database.User
	AdminPassword *secure.SecureBuffer
	Restart       bool
	DryRun        bool
}

// Result describes one rotation run.
type Result struct {
	RunID    string
	Username string
	// Statements are the executed (or planned) SQL with the password masked
	Statements []string
	Sink       string
	Restarted  bool
	DryRun     bool
	Duration   time.Duration
}

// Rotator runs a credential rotation.
type Rotator struct {
	opts     Options
	sink     Sink
	executor exec.CommandExecutor
	logger   *logging.Logger

	open     func(driver, dsn string) (*sql.DB, error)
	generate func(prefix string, userLen, passLen int) (*Credentials, error)
}

// NewRotator creates a Rotator. A nil executor means the real docker CLI.
func NewRotator(opts Options, sink Sink, executor exec.CommandExecutor, logger *logging.Logger) *Rotator {
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	if logger == nil {
		logger = logging.NewWithWriter(io.Discard, false, true)
	}
	return &Rotator{
		opts:     opts,
		sink:     sink,
		executor: executor,
		logger:   logger,
		open:     sql.Open,
		generate: NewCredentials,
	}
}

// SetOpener replaces sql.Open, for tests.
func (r *Rotator) SetOpener(open func(driver, dsn string) (*sql.DB, error)) {
	r.open = open
}

// Rotate creates the new login, hands it to the sink and restarts the
// container. The restart only runs once the SQL has committed.
func (r *Rotator) Rotate(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{
		RunID:  uuid.NewString(),
		DryRun: r.opts.DryRun,
	}
	if r.sink != nil {
		result.Sink = r.sink.Name()
	}

	creds, err := r.generate(r.opts.Rotate.UserPrefix, r.opts.Rotate.UserLength, r.opts.Rotate.PasswordLength)
	if err != nil {
		return nil, err
	}
	defer creds.Destroy()
	result.Username = creds.Username

	r.logger.Debug("Rotation %s: generated user %s", result.RunID, creds.Username)

	err = creds.Password.With(func(password []byte) error {
		stmts, err := Statements(r.opts.DatabaseType, creds.Username, string(password), r.opts.Rotate.GrantHost, r.opts.Database.Name)
		if err != nil {
			return dserrors.ConfigError{
				Field:   "database.type",
				Value:   r.opts.DatabaseType,
				Message: err.Error(),
			}
		}
		result.Statements = redactAll(stmts, string(password))

		if r.opts.DryRun {
			return nil
		}

		if err := r.apply(ctx, stmts); err != nil {
			return err
		}

		if r.sink != nil {
			if err := r.sink.Deliver(ctx, creds.Username, password); err != nil {
				return fmt.Errorf("user %s was created but could not be delivered: %w", creds.Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.opts.DryRun {
		for _, stmt := range result.Statements {
			r.logger.Info("[dry-run] %s", stmt)
		}
		if r.opts.Restart {
			r.logger.Info("[dry-run] docker restart %s", r.opts.Database.Container)
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	r.logger.Info("Created database user %s", creds.Username)

	if r.opts.Restart {
		if err := r.restart(ctx); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Restarted = true
		r.logger.Info("Docker container %s restarted successfully", r.opts.Database.Container)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// apply runs stmts in one transaction over the admin connection
func (r *Rotator) apply(ctx context.Context, stmts []string) error {
	var adminPassword string
	if r.opts.AdminPassword != nil {
		if err := r.opts.AdminPassword.With(func(b []byte) error {
			adminPassword = string(b)
			return nil
		}); err != nil {
			return err
		}
	}

	driver, dsn, err := DSN(r.opts.DatabaseType, r.opts.Database, adminPassword)
	if err != nil {
		return err
	}

	db, err := r.open(driver, dsn)
	if err != nil {
		return dserrors.ServiceError(driver, "connect", err)
	}
	defer db.Close()

	r.logger.Debug("Connecting to %s as %s", r.opts.Database.Host, r.opts.Database.User)
	if err := db.PingContext(ctx); err != nil {
		return dserrors.ServiceError(driver, "connect", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return dserrors.ServiceError(driver, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return dserrors.ServiceError(driver, "user creation", redactError(err, stmts))
		}
	}

	if err := tx.Commit(); err != nil {
		return dserrors.ServiceError(driver, "commit", err)
	}
	return nil
}

func (r *Rotator) restart(ctx context.Context) error {
	container := r.opts.Database.Container
	_, stderr, err := r.executor.Execute(ctx, "docker", "restart", container)
	if err == nil {
		return nil
	}
	if exec.IsNotFound(err) {
		return dserrors.WrapCommandNotFound("docker", err)
	}

	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	return dserrors.CommandError{
		Command:    "docker restart " + container,
		ExitCode:   exec.ExitCode(err),
		Message:    msg,
		Suggestion: "The new user exists; restart the container manually with 'docker restart " + container + "'",
		Err:        err,
	}
}

func redactAll(stmts []string, password string) []string {
	out := make([]string, len(stmts))
	for i, stmt := range stmts {
		out[i] = logging.Redact(stmt, []string{password})
	}
	return out
}

// redactError keeps driver errors that echo the statement from leaking the password
func redactError(err error, stmts []string) error {
	msg := err.Error()
	for _, stmt := range stmts {
		if strings.Contains(msg, stmt) {
			return fmt.Errorf("%s", strings.ReplaceAll(msg, stmt, "<statement>"))
		}
	}
	return err
}
