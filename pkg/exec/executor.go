// Package exec provides abstractions for command execution.
// This package enables testable code by allowing docker and dump CLIs to be mocked.
package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// CommandExecutor defines an interface for executing external commands.
type CommandExecutor interface {
	// Execute runs a command and returns its captured stdout and stderr.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

	// Stream runs a command with stdout copied into w as it is produced.
	// Used for dumps, which can be far larger than memory.
	Stream(ctx context.Context, w io.Writer, name string, args ...string) (stderr []byte, err error)
}

// RealCommandExecutor executes actual commands using os/exec.
type RealCommandExecutor struct{}

// Execute runs an actual command.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Stream runs an actual command writing stdout to w.
func (r *RealCommandExecutor) Stream(ctx context.Context, w io.Writer, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// ExitCode extracts the process exit code from err, or 0 if it carries none.
func ExitCode(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 0
}

// IsNotFound reports whether err means the executable is not on PATH.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// CommandLine renders name and args for log and error messages.
func CommandLine(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
