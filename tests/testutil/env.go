package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// EnvVars lists every environment variable config.Load reads.
var EnvVars = []string{
	"DB_NAME",
	"DB_USER",
	"DB_PASSWORD",
	"DB_CONTAINER",
	"BACKUP_DIR",
	"MYSQL_HOST",
	"MYSQL_PORT",
	"MYSQL_USER",
	"MYSQL_PASSWORD",
	"MYSQL_DATABASE",
	"HEALTHCHECK_URL",
}

// IsolateEnv blanks every variable in EnvVars for the duration of the test,
// so a developer's shell cannot leak into config loading.
// Tests calling it cannot use t.Parallel().
func IsolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range EnvVars {
		t.Setenv(key, "")
	}
}

// SetupTestEnv sets environment variables for the duration of a test.
// The original environment is restored automatically when the test completes.
func SetupTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

// WriteTestConfig writes yamlContent to dbops.yaml in a temp dir and returns its path.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dbops.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
