package commands

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/dbops/internal/config"
	"github.com/systmms/dbops/tests/testutil"
	"github.com/zalando/go-keyring"
)

// testConfig returns a Config with the built-in defaults already loaded,
// so tests never read dbops.yaml or the environment.
func testConfig(t *testing.T) (*config.Config, *testutil.TestLogger) {
	t.Helper()

	tl := testutil.NewTestLoggerWithDebug(t, true)
	def := config.Defaults()
	def.Backup.Dir = filepath.Join(t.TempDir(), "backups")
	return &config.Config{Logger: tl.Logger, Definition: &def}, tl
}

func TestBackupCommand(t *testing.T) {
	t.Parallel()

	cfg, tl := testConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "dbops.prom")

	docker := testutil.NewMockCommandExecutor()
	docker.AddResponse("docker exec", testutil.DockerMockResponses{}.Dump("CREATE TABLE t (id INT);\n"))
	var stdout bytes.Buffer

	cmd := newBackupCommand(cfg, deps{executor: docker, stdout: &stdout})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Regexp(t, `^Backup created: .*nodejs_api_backup_\d{14}\.sql\n$`, stdout.String())
	path := strings.TrimSpace(strings.TrimPrefix(stdout.String(), "Backup created: "))
	testutil.AssertFileContents(t, path, "CREATE TABLE t (id INT);\n")

	prom, err := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `dbops_backup_total{database="nodejs_api",status="success"} 1`)

	tl.AssertNotContains(t, "Root@123")
}

func TestBackupCommand_DirFlag(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	dir := filepath.Join(t.TempDir(), "elsewhere")

	docker := testutil.NewMockCommandExecutor()
	var stdout bytes.Buffer
	cmd := newBackupCommand(cfg, deps{executor: docker, stdout: &stdout})
	cmd.SetArgs([]string{"--dir", dir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), dir)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBackupCommand_Failure(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "dbops.prom")

	docker := testutil.NewMockCommandExecutor()
	docker.AddResponse("docker exec", testutil.DockerMockResponses{}.NoSuchContainer("mysql"))
	var stdout bytes.Buffer

	cmd := newBackupCommand(cfg, deps{executor: docker, stdout: &stdout})
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)

	assert.Contains(t, err.Error(), "error backing up database")
	assert.Contains(t, err.Error(), "No such container")
	assert.Empty(t, stdout.String())

	prom, readErr := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, readErr)
	assert.Contains(t, string(prom), `status="failed"`)
}

func TestProbeCommand(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			_, _ = w.Write([]byte("up 1\n"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	// Subtests are parallel and outlive this function body
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"healthy", []string{"--url", srv.URL + "/metrics"}, "Application is healthy.\n", false},
		{"unhealthy_print_only", []string{"--url", srv.URL + "/broken"}, "Application is not healthy.\n", false},
		{"unhealthy_fail", []string{"--url", srv.URL + "/broken", "--fail"}, "Application is not healthy.\n", true},
		{"healthy_fail", []string{"--url", srv.URL + "/metrics", "--fail"}, "Application is healthy.\n", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, _ := testConfig(t)
			var stdout bytes.Buffer
			cmd := newProbeCommand(cfg, deps{stdout: &stdout}, nil)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unexpected status code 500")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, stdout.String())
		})
	}
}

func TestProbeCommand_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, _ := testConfig(t)
	cfg.Definition.Probe.URL = url
	var stdout bytes.Buffer
	cmd := newProbeCommand(cfg, deps{stdout: &stdout}, nil)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(stdout.String(), "Error performing health check: "), stdout.String())
}

func TestProbeCommand_Textfile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg, _ := testConfig(t)
	textfile := filepath.Join(t.TempDir(), "probe.prom")
	cmd := newProbeCommand(cfg, deps{stdout: &bytes.Buffer{}}, nil)
	cmd.SetArgs([]string{"--url", srv.URL, "--textfile", textfile, "--timeout", "2s"})
	require.NoError(t, cmd.Execute())

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "dbops_probe_up")
	assert.Contains(t, string(prom), `dbops_probe_status_code{url="`+srv.URL+`"} 200`)
}

func newSQLMock(t *testing.T) (func(driver, dsn string) (*sql.DB, error), sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return func(driver, dsn string) (*sql.DB, error) { return db, nil }, mock
}

func expectUserCreation(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE USER 'user_[A-Za-z0-9]{6}'@'%' IDENTIFIED BY '[A-Za-z0-9]{12}'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`GRANT ALL PRIVILEGES ON \*\.\* TO 'user_[A-Za-z0-9]{6}'@'%' WITH GRANT OPTION`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`FLUSH PRIVILEGES`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
}

func TestRotateCommand(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	open, mock := newSQLMock(t)
	expectUserCreation(mock)

	docker := testutil.NewMockCommandExecutor()
	docker.AddResponse("docker restart", testutil.DockerMockResponses{}.Restarted("mysql"))
	var stdout bytes.Buffer

	cmd := newRotateCommand(cfg, deps{executor: docker, stdout: &stdout, openDB: open})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Regexp(t, `^New credentials: User='user_[A-Za-z0-9]{6}', Password='[A-Za-z0-9]{12}'\n$`, stdout.String())
	calls := docker.GetCalls("docker")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"restart", "mysql"}, calls[0].Args)
}

func TestRotateCommand_NoRestart(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	open, mock := newSQLMock(t)
	expectUserCreation(mock)

	docker := testutil.NewMockCommandExecutor()
	cmd := newRotateCommand(cfg, deps{executor: docker, stdout: &bytes.Buffer{}, openDB: open})
	cmd.SetArgs([]string{"--no-restart"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 0, docker.CallCount())
}

func TestRotateCommand_DryRun(t *testing.T) {
	t.Parallel()

	cfg, tl := testConfig(t)
	docker := testutil.NewMockCommandExecutor()
	var stdout bytes.Buffer

	cmd := newRotateCommand(cfg, deps{executor: docker, stdout: &stdout})
	cmd.SetArgs([]string{"--dry-run"})
	require.NoError(t, cmd.Execute())

	assert.Empty(t, stdout.String())
	assert.Equal(t, 0, docker.CallCount())
	tl.AssertContains(t, "[dry-run] CREATE USER")
	tl.AssertContains(t, "IDENTIFIED BY '[REDACTED]'")
}

func TestRotateCommand_KeyringSink(t *testing.T) {
	keyring.MockInit()

	cfg, tl := testConfig(t)
	open, mock := newSQLMock(t)
	expectUserCreation(mock)
	var stdout bytes.Buffer

	cmd := newRotateCommand(cfg, deps{executor: testutil.NewMockCommandExecutor(), stdout: &stdout, openDB: open})
	cmd.SetArgs([]string{"--sink", "keyring", "--no-restart"})
	require.NoError(t, cmd.Execute())

	assert.Empty(t, stdout.String(), "keyring sink must not print the password")
	tl.AssertContains(t, "stored in keyring")
}

func TestRotateCommand_InvalidSink(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	cmd := newRotateCommand(cfg, deps{executor: testutil.NewMockCommandExecutor(), stdout: &bytes.Buffer{}})
	cmd.SetArgs([]string{"--sink", "vault"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown credential sink")
}

func TestRotateCommand_SQLFailure(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "rotate.prom")
	open, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE USER`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	docker := testutil.NewMockCommandExecutor()
	var stdout bytes.Buffer
	cmd := newRotateCommand(cfg, deps{executor: docker, stdout: &stdout, openDB: open})
	cmd.SetArgs([]string{})

	require.Error(t, cmd.Execute())
	assert.Empty(t, stdout.String())
	assert.Equal(t, 0, docker.CallCount(), "container must not restart after a failed update")

	prom, err := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `dbops_rotation_total{database="nodejs_api",status="failed"} 1`)
}

func TestResolveAdminPassword(t *testing.T) {
	cfg, _ := testConfig(t)

	t.Run("configured", func(t *testing.T) {
		buf, err := resolveAdminPassword(cfg, strings.NewReader(""), false)
		require.NoError(t, err)
		assert.Equal(t, len("Root@123"), buf.Len())
	})

	t.Run("stdin_flag", func(t *testing.T) {
		buf, err := resolveAdminPassword(cfg, strings.NewReader("from-pipe\n"), true)
		require.NoError(t, err)
		require.NoError(t, buf.With(func(b []byte) error {
			assert.Equal(t, "from-pipe", string(b))
			return nil
		}))
	})

	t.Run("empty_not_terminal", func(t *testing.T) {
		empty, _ := testConfig(t)
		empty.Definition.Database.Password = ""
		buf, err := resolveAdminPassword(empty, strings.NewReader(""), false)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Len())
	})

	t.Run("empty_terminal_prompts", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		defer w.Close()

		origRead, origTerm := readPassword, isTerminal
		t.Cleanup(func() { readPassword, isTerminal = origRead, origTerm })
		isTerminal = func(int) bool { return true }
		readPassword = func(int) ([]byte, error) { return []byte("typed-secret"), nil }

		empty, _ := testConfig(t)
		empty.Definition.Database.Password = ""
		buf, err := resolveAdminPassword(empty, r, false)
		require.NoError(t, err)
		assert.Equal(t, len("typed-secret"), buf.Len())
	})

	t.Run("non_interactive_never_prompts", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		defer w.Close()

		origTerm := isTerminal
		t.Cleanup(func() { isTerminal = origTerm })
		isTerminal = func(int) bool { return true }

		empty, _ := testConfig(t)
		empty.Definition.Database.Password = ""
		empty.NonInteractive = true
		buf, err := resolveAdminPassword(empty, r, false)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Len())
	})
}

func TestConfigValidateCommand(t *testing.T) {
	testutil.IsolateEnv(t)
	testutil.SetupTestEnv(t, map[string]string{"DB_PASSWORD": "env-admin-secret"})

	path := testutil.WriteTestConfig(t, `
version: 0
database:
  name: shop
  container: shop-db
probe:
  url: http://shop:8080/metrics
`)

	tl := testutil.NewTestLogger(t)
	cfg := &config.Config{Logger: tl.Logger, Path: path, Required: true}
	var stdout bytes.Buffer

	cmd := newConfigCommand(cfg, deps{stdout: &stdout})
	cmd.SetArgs([]string{"validate"})
	require.NoError(t, cmd.Execute())

	out := stdout.String()
	assert.Contains(t, out, "name: shop")
	assert.Contains(t, out, "container: shop-db")
	assert.Contains(t, out, "http://shop:8080/metrics")
	testutil.AssertSecretRedacted(t, out, "env-admin-secret")
	tl.AssertContains(t, "Configuration is valid")
}

func TestConfigValidateCommand_Invalid(t *testing.T) {
	testutil.IsolateEnv(t)

	path := testutil.WriteTestConfig(t, "database:\n  type: oracle\n")
	cfg := &config.Config{Logger: testutil.NewTestLogger(t).Logger, Path: path, Required: true}

	cmd := newConfigCommand(cfg, deps{stdout: &bytes.Buffer{}})
	cmd.SetArgs([]string{"validate"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Contains(t, err.Error(), "database.type")
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		root := &cobra.Command{Use: "dbops"}
		comp := NewCompletionCommand(&config.Config{})
		root.AddCommand(comp)

		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"completion", shell})
		require.NoError(t, root.Execute(), shell)
		assert.NotEmpty(t, out.String(), shell)
	}

	comp := NewCompletionCommand(&config.Config{})
	comp.SetArgs([]string{"tcsh"})
	comp.SilenceUsage = true
	comp.SilenceErrors = true
	assert.Error(t, comp.Execute())
}
