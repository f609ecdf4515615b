package errors

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a failed external command such as docker or mysqldump
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
	Err        error
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e CommandError) Unwrap() error {
	return e.Err
}

// ServiceError enhances errors from external services with context
func ServiceError(service string, operation string, err error) error {
	var details string
	if err != nil {
		details = err.Error()
	}
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", service, operation),
		Details:    details,
		Suggestion: getServiceSuggestion(service, err),
		Err:        err,
	}
}

// getServiceSuggestion returns helpful suggestions based on service and error
func getServiceSuggestion(service string, err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	switch service {
	case "mysql", "mariadb":
		if strings.Contains(errStr, "Access denied") {
			return "Check the admin user and password (MYSQL_USER / MYSQL_PASSWORD)"
		}
		if strings.Contains(errStr, "Operation CREATE USER failed") {
			return "The generated user already exists; run the rotation again"
		}
	case "postgres", "postgresql":
		if strings.Contains(errStr, "password authentication failed") {
			return "Check the admin user and password in dbops.yaml"
		}
		if strings.Contains(errStr, "already exists") {
			return "The generated role already exists; run the rotation again"
		}
	case "docker":
		if strings.Contains(errStr, "No such container") {
			return "Check the container name with 'docker ps' and set database.container"
		}
		if strings.Contains(errStr, "permission denied") {
			return "Add your user to the docker group or run with sudo"
		}
	case "s3":
		if strings.Contains(errStr, "NoSuchBucket") {
			return "Create the bucket or fix backup.upload.bucket"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for s3:PutObject"
		}
	case "aws-secretsmanager":
		if strings.Contains(errStr, "ResourceNotFoundException") {
			return "Create the secret first or fix rotate.sink.secret_id"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:PutSecretValue"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check that the service is running and reachable"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check host and port in dbops.yaml"
	}

	return ""
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"docker":    "Install Docker from https://docker.com/",
		"mysqldump": "Install the MySQL client tools or run the dump inside the database container",
		"pg_dump":   "Install the PostgreSQL client tools or run the dump inside the database container",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
		Err:        err,
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	var configErr ConfigError
	var cmdErr CommandError
	if errors.As(err, &userErr) || errors.As(err, &configErr) || errors.As(err, &cmdErr) {
		return err
	}

	errStr := err.Error()

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) || strings.HasPrefix(errStr, "yaml: ") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
