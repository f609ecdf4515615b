// Package testutil provides testing utilities for dbops.
package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockCommandExecutor provides a configurable mock for docker and dump commands.
// It satisfies pkg/exec.CommandExecutor.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Responses maps command patterns to their mock responses.
	// Key format: "command arg1 arg2" (space-separated command and args)
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching pattern is found.
	DefaultResponse *MockResponse

	// RecordedCalls stores all calls made for verification.
	RecordedCalls []RecordedCall

	// StrictMode causes calls to fail if no matching response is found.
	StrictMode bool
}

// MockResponse defines the expected output for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// RecordedCall stores information about a command execution.
type RecordedCall struct {
	Command string
	Args    []string
	Context context.Context
}

// ExitError mimics *exec.ExitError for mocked failures.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the simulated process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// NewMockCommandExecutor creates a new mock executor with empty responses.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses:     make(map[string]MockResponse),
		RecordedCalls: make([]RecordedCall, 0),
	}
}

// Execute returns the mocked response for the given command.
func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	resp, err := m.lookup(ctx, name, args)
	if err != nil {
		return nil, nil, err
	}
	return resp.Stdout, resp.Stderr, resp.Err
}

// Stream writes the mocked stdout into w and returns the mocked stderr and error.
func (m *MockCommandExecutor) Stream(ctx context.Context, w io.Writer, name string, args ...string) ([]byte, error) {
	resp, err := m.lookup(ctx, name, args)
	if err != nil {
		return nil, err
	}
	if len(resp.Stdout) > 0 {
		if _, err := w.Write(resp.Stdout); err != nil {
			return resp.Stderr, err
		}
	}
	return resp.Stderr, resp.Err
}

func (m *MockCommandExecutor) lookup(ctx context.Context, name string, args []string) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordedCalls = append(m.RecordedCalls, RecordedCall{
		Command: name,
		Args:    args,
		Context: ctx,
	})

	key := m.buildKey(name, args)

	// Try exact match first
	if resp, ok := m.Responses[key]; ok {
		return resp, nil
	}

	// Longest matching prefix wins so specific patterns beat broad ones
	best := ""
	for pattern := range m.Responses {
		if m.matchesPattern(key, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return m.Responses[best], nil
	}

	if m.DefaultResponse != nil {
		return *m.DefaultResponse, nil
	}

	if m.StrictMode {
		return MockResponse{}, fmt.Errorf("mock: no response configured for command: %s", key)
	}

	return MockResponse{Stdout: []byte{}, Stderr: []byte{}}, nil
}

// buildKey creates a lookup key from command and arguments.
func (m *MockCommandExecutor) buildKey(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// matchesPattern checks if the command key matches a pattern.
// A trailing "*" or a plain prefix both match additional args.
func (m *MockCommandExecutor) matchesPattern(key, pattern string) bool {
	return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
}

// AddResponse registers a mock response for a specific command pattern.
func (m *MockCommandExecutor) AddResponse(commandPattern string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[commandPattern] = response
}

// AddErrorResponse adds a failing response with the given stderr and exit code.
func (m *MockCommandExecutor) AddErrorResponse(commandPattern string, errMsg string, exitCode int) {
	m.AddResponse(commandPattern, MockResponse{
		Stdout: []byte{},
		Stderr: []byte(errMsg),
		Err:    &ExitError{Code: exitCode, Stderr: errMsg},
	})
}

// GetCalls returns all recorded calls matching the given command name.
func (m *MockCommandExecutor) GetCalls(commandName string) []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []RecordedCall
	for _, call := range m.RecordedCalls {
		if call.Command == commandName {
			matches = append(matches, call)
		}
	}
	return matches
}

// CallCount returns the number of recorded calls.
func (m *MockCommandExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// AssertCalled verifies that a specific command was called at least once.
func (m *MockCommandExecutor) AssertCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	calls := m.GetCalls(commandName)
	if len(calls) == 0 {
		t.Error("expected command", commandName, "to be called, but it was not")
		return false
	}
	return true
}

// AssertNotCalled verifies that a specific command was never called.
func (m *MockCommandExecutor) AssertNotCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	calls := m.GetCalls(commandName)
	if len(calls) > 0 {
		t.Error("expected command", commandName, "to not be called, but it was called", len(calls), "times")
		return false
	}
	return true
}

// DockerMockResponses provides pre-configured responses for the docker CLI.
type DockerMockResponses struct{}

// Dump returns a successful dump whose stdout is the given SQL.
func (DockerMockResponses) Dump(sql string) MockResponse {
	return MockResponse{Stdout: []byte(sql)}
}

// NoSuchContainer returns the failure docker prints for an unknown container.
func (DockerMockResponses) NoSuchContainer(name string) MockResponse {
	msg := fmt.Sprintf("Error response from daemon: No such container: %s\n", name)
	return MockResponse{
		Stderr: []byte(msg),
		Err:    &ExitError{Code: 1, Stderr: msg},
	}
}

// Restarted returns the output of a successful docker restart.
func (DockerMockResponses) Restarted(name string) MockResponse {
	return MockResponse{Stdout: []byte(name + "\n")}
}
