package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/dbops/internal/logging"
)

// TestLogger captures the output of a real *logging.Logger for validation in tests.
//
// Example usage:
//
//	tl := NewTestLogger(t)
//	tl.Logger.Info("Processing secret: %s", logging.Secret("password123"))
//	tl.AssertRedacted(t, "password123")
type TestLogger struct {
	Logger *logging.Logger

	mu     sync.Mutex
	buffer *bytes.Buffer
}

// syncBuffer serialises writes coming from the zap core
type syncBuffer struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (s syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// NewTestLogger creates a TestLogger with debug output disabled.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug creates a TestLogger, optionally capturing Debug messages.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	tl := &TestLogger{buffer: &bytes.Buffer{}}
	tl.Logger = logging.NewWithWriter(syncBuffer{mu: &tl.mu, buf: tl.buffer}, debug, true)
	return tl
}

// GetOutput returns the captured log output.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// Clear clears the captured log output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Reset()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertRedacted asserts that secretValue is absent and [REDACTED] is present.
func (l *TestLogger) AssertRedacted(t *testing.T, secretValue string) {
	t.Helper()
	AssertSecretRedacted(t, l.GetOutput(), secretValue)
}

// Lines returns the non-empty log lines.
func (l *TestLogger) Lines() []string {
	var result []string
	for _, line := range strings.Split(l.GetOutput(), "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
