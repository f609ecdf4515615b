package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertSecretRedacted verifies that a secret value does not appear in output
// and that the [REDACTED] marker does.
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when secret is used")
}

// AssertFileContents verifies that a file exists and holds exactly expected.
func AssertFileContents(t *testing.T, path string, expected string) {
	t.Helper()

	assert.FileExists(t, path, "File should exist: %s", path)

	data, err := os.ReadFile(path)
	assert.NoError(t, err, "Failed to read file %s", path)
	assert.Equal(t, expected, string(data), "File contents mismatch for %s", path)
}

// AssertNoFiles verifies that dir exists and is empty.
func AssertNoFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err, "Failed to read dir %s", dir)
	assert.Empty(t, entries, "Expected %s to be empty", dir)
}
