package backup

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/secure"
	"github.com/systmms/dbops/tests/testutil"
)

const dumpSQL = "-- MySQL dump 10.13\nCREATE TABLE users (id INT);\n"

func newTestDumper(t *testing.T, dbType string, mock *testutil.MockCommandExecutor) (*Dumper, *testutil.TestLogger) {
	t.Helper()

	tl := testutil.NewTestLoggerWithDebug(t, true)
	d := NewDumper(Options{
		DatabaseType: dbType,
		Container:    "mysql",
		Database:     "nodejs_api",
		User:         "root",
		Password:     secure.FromString("Root@123"),
		Dir:          filepath.Join(t.TempDir(), "backups"),
	}, mock, tl.Logger)
	d.now = func() time.Time { return time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local) }
	return d, tl
}

func TestFilename(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 12, 31, 23, 59, 58, 0, time.Local)
	assert.Equal(t, "nodejs_api_backup_20231231235958.sql", Filename("nodejs_api", ts))

	pattern := regexp.MustCompile(`^nodejs_api_backup_\d{14}\.sql$`)
	assert.Regexp(t, pattern, Filename("nodejs_api", time.Now()))
}

func TestBackup_MySQL(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.StrictMode = true
	mock.AddResponse("docker exec", testutil.DockerMockResponses{}.Dump(dumpSQL))

	d, tl := newTestDumper(t, "mysql", mock)
	result, err := d.Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(d.opts.Dir, "nodejs_api_backup_20240309070501.sql"), result.Path)
	assert.Equal(t, int64(len(dumpSQL)), result.Size)
	testutil.AssertFileContents(t, result.Path, dumpSQL)

	calls := mock.GetCalls("docker")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"exec", "-e", "MYSQL_PWD=Root@123", "mysql", "mysqldump", "-u", "root", "nodejs_api",
	}, calls[0].Args)
	assert.NotContains(t, calls[0].Args, "-pRoot@123")

	tl.AssertContains(t, "mysqldump")
	tl.AssertRedacted(t, "Root@123")
}

func TestBackup_Postgres(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("docker exec", testutil.DockerMockResponses{}.Dump("-- PostgreSQL database dump\n"))

	d, _ := newTestDumper(t, "postgres", mock)
	_, err := d.Backup(context.Background())
	require.NoError(t, err)

	calls := mock.GetCalls("docker")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"exec", "-e", "PGPASSWORD=Root@123", "mysql", "pg_dump", "-U", "root", "nodejs_api",
	}, calls[0].Args)
}

func TestBackup_EmptyPasswordOmitsEnv(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	d, _ := newTestDumper(t, "mysql", mock)
	d.opts.Password = nil

	_, err := d.Backup(context.Background())
	require.NoError(t, err)

	calls := mock.GetCalls("docker")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"exec", "mysql", "mysqldump", "-u", "root", "nodejs_api"}, calls[0].Args)
}

func TestBackup_TwoRunsTwoFiles(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("docker exec", testutil.DockerMockResponses{}.Dump(dumpSQL))

	d, _ := newTestDumper(t, "mysql", mock)
	tick := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	d.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	first, err := d.Backup(context.Background())
	require.NoError(t, err)
	second, err := d.Backup(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	entries, err := os.ReadDir(d.opts.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBackup_SameSecondCollision(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("docker exec", testutil.DockerMockResponses{}.Dump(dumpSQL))

	d, _ := newTestDumper(t, "mysql", mock)

	first, err := d.Backup(context.Background())
	require.NoError(t, err)

	_, err = d.Backup(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))
	assert.Contains(t, err.Error(), "already exists")
	assert.NotContains(t, err.Error(), "Check permissions")
	assert.Equal(t, 1, mock.CallCount(), "the dump must not run again")

	testutil.AssertFileContents(t, first.Path, dumpSQL)
}

func TestBackup_CommandFailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("docker exec", testutil.DockerMockResponses{}.NoSuchContainer("mysql"))

	d, _ := newTestDumper(t, "mysql", mock)
	result, err := d.Backup(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var cmdErr dserrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Message, "No such container: mysql")
	assert.Contains(t, cmdErr.Suggestion, "docker ps")

	testutil.AssertNoFiles(t, d.opts.Dir)
}

func TestBackup_StderrIsRedacted(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddErrorResponse("docker exec", "mysqldump: Got error: 1045: Access denied for user 'root' (using password: Root@123)", 2)

	d, _ := newTestDumper(t, "mysql", mock)
	_, err := d.Backup(context.Background())
	require.Error(t, err)

	assert.Contains(t, err.Error(), "exit code: 2")
	assert.Contains(t, err.Error(), "Access denied")
	assert.NotContains(t, err.Error(), "Root@123")
}

func TestBackup_DockerMissing(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("docker", testutil.MockResponse{
		Err: &exec.Error{Name: "docker", Err: exec.ErrNotFound},
	})

	d, _ := newTestDumper(t, "mysql", mock)
	_, err := d.Backup(context.Background())
	require.Error(t, err)

	var cmdErr dserrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "docker", cmdErr.Command)
	assert.Contains(t, cmdErr.Suggestion, "Install Docker")
}

func TestBackup_UnsupportedType(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockCommandExecutor()
	d, _ := newTestDumper(t, "sqlite", mock)

	_, err := d.Backup(context.Background())
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 0, mock.CallCount())
	testutil.AssertNoFiles(t, d.opts.Dir)
}

func TestBackup_DirectoryCreationFails(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	mock := testutil.NewMockCommandExecutor()
	d, _ := newTestDumper(t, "mysql", mock)
	d.opts.Dir = filepath.Join(blocker, "backups")

	_, err := d.Backup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to create backup directory")
	assert.Equal(t, 0, mock.CallCount())
}
