package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given
const DefaultPath = "dbops.yaml"

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	// Required makes a missing file an error instead of falling back to defaults
	Required bool
	// MetricsTextfile is where commands write their Prometheus textfile, if set
	MetricsTextfile string
	Definition      *Definition

	// lookupEnv is os.LookupEnv unless a test swaps it
	lookupEnv func(string) (string, bool)
}

// Definition represents the dbops.yaml structure
type Definition struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Backup   BackupConfig   `yaml:"backup"`
	Probe    ProbeConfig    `yaml:"probe"`
	Rotate   RotateConfig   `yaml:"rotate"`
}

// DatabaseConfig describes the database and the container it runs in
type DatabaseConfig struct {
	Type      string `yaml:"type"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Name      string `yaml:"name"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Container string `yaml:"container"`
	SSLMode   string `yaml:"sslmode,omitempty"`
}

// BackupConfig holds dump settings
type BackupConfig struct {
	Dir    string       `yaml:"dir"`
	Upload UploadConfig `yaml:"upload,omitempty"`
}

// UploadConfig points at an S3 bucket (or S3-compatible endpoint) for finished dumps
type UploadConfig struct {
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	AWSCredentials `yaml:",inline"`
}

// AWSCredentials are optional static keys for LocalStack or MinIO.
// When empty the default AWS credential chain is used.
type AWSCredentials struct {
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// ProbeConfig holds health probe settings
type ProbeConfig struct {
	URL            string `yaml:"url"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	ExpectedStatus []int  `yaml:"expected_status,omitempty"`
}

// RotateConfig holds credential rotation settings
type RotateConfig struct {
	UserPrefix     string     `yaml:"user_prefix"`
	UserLength     int        `yaml:"user_length"`
	PasswordLength int        `yaml:"password_length"`
	GrantHost      string     `yaml:"grant_host"`
	Restart        *bool      `yaml:"restart,omitempty"`
	Sink           SinkConfig `yaml:"sink,omitempty"`
}

// SinkConfig selects where newly generated credentials are delivered
type SinkConfig struct {
	Type     string `yaml:"type,omitempty"`
	Service  string `yaml:"service,omitempty"`
	SecretID string `yaml:"secret_id,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	AWSCredentials `yaml:",inline"`
}

// Defaults returns the built-in configuration
func Defaults() Definition {
	restart := true
	return Definition{
		Version: 0,
		Database: DatabaseConfig{
			Type:      "mysql",
			Host:      "localhost",
			Port:      3306,
			Name:      "nodejs_api",
			User:      "root",
			Password:  "Root@123",
			Container: "mysql",
		},
		Backup: BackupConfig{
			Dir: "backups",
		},
		Probe: ProbeConfig{
			URL:            "http://localhost:3000/metrics",
			TimeoutMs:      10000,
			ExpectedStatus: []int{200},
		},
		Rotate: RotateConfig{
			UserPrefix:     "user_",
			UserLength:     6,
			PasswordLength: 12,
			GrantHost:      "%",
			Restart:        &restart,
			Sink: SinkConfig{
				Type:    "stdout",
				Service: "dbops",
			},
		},
	}
}

// Load reads dbops.yaml, layers environment overrides on top and validates the result
func (c *Config) Load() error {
	def := Defaults()

	path := c.Path
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &def); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
		if c.Required {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create the file or drop --config to use built-in defaults",
			}
		}
		if c.Logger != nil {
			c.Logger.Debug("No %s found, using built-in defaults", path)
		}
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := c.applyEnv(&def); err != nil {
		return err
	}

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// decode validates raw YAML against the schema and merges it over def
func decode(data []byte, def *Definition) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if doc == nil {
		return nil
	}

	if err := validateSchema(doc); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, def); err != nil {
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("cannot decode configuration: %v", err),
			Suggestion: "Check field types against the documented dbops.yaml layout",
		}
	}

	if def.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your dbops.yaml file",
		}
	}
	return nil
}

// applyEnv layers the DB_*, MYSQL_*, BACKUP_DIR and HEALTHCHECK_URL variables.
// DB_* names win over MYSQL_* names.
func (c *Config) applyEnv(def *Definition) error {
	lookup := c.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
			}
		}
	}

	set(&def.Database.Host, "MYSQL_HOST")
	set(&def.Database.Name, "MYSQL_DATABASE", "DB_NAME")
	set(&def.Database.User, "MYSQL_USER", "DB_USER")
	set(&def.Database.Password, "MYSQL_PASSWORD", "DB_PASSWORD")
	set(&def.Database.Container, "DB_CONTAINER")
	set(&def.Backup.Dir, "BACKUP_DIR")
	set(&def.Probe.URL, "HEALTHCHECK_URL")

	if v, ok := lookup("MYSQL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return dserrors.ConfigError{
				Field:      "MYSQL_PORT",
				Value:      v,
				Message:    "port must be a number",
				Suggestion: "Export MYSQL_PORT=3306 or unset it",
			}
		}
		def.Database.Port = port
	}

	return nil
}

// Validate checks semantic constraints the schema cannot express
func (d *Definition) Validate() error {
	switch d.DatabaseType() {
	case "mysql", "postgres":
	default:
		return dserrors.ConfigError{
			Field:      "database.type",
			Value:      d.Database.Type,
			Message:    "unsupported database type",
			Suggestion: "Use one of: mysql, mariadb, postgres, postgresql",
		}
	}

	if d.Database.Port < 1 || d.Database.Port > 65535 {
		return dserrors.ConfigError{
			Field:      "database.port",
			Value:      d.Database.Port,
			Message:    "port out of range",
			Suggestion: "Use a port between 1 and 65535",
		}
	}

	if d.Database.Name == "" || d.Database.User == "" {
		return dserrors.ConfigError{
			Field:      "database",
			Message:    "database name and user are required",
			Suggestion: "Set database.name and database.user or export DB_NAME / DB_USER",
		}
	}

	u, err := url.Parse(d.Probe.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dserrors.ConfigError{
			Field:      "probe.url",
			Value:      d.Probe.URL,
			Message:    "invalid probe URL",
			Suggestion: "Use an absolute http:// or https:// URL, e.g. http://localhost:3000/metrics",
		}
	}

	if d.Rotate.UserLength < 1 || d.Rotate.PasswordLength < 1 {
		return dserrors.ConfigError{
			Field:      "rotate",
			Message:    "user_length and password_length must be positive",
			Suggestion: "The defaults are user_length: 6 and password_length: 12",
		}
	}

	switch d.Rotate.Sink.Type {
	case "", "stdout", "keyring":
	case "aws-secretsmanager":
		if d.Rotate.Sink.SecretID == "" {
			return dserrors.ConfigError{
				Field:      "rotate.sink.secret_id",
				Message:    "secret_id is required for the aws-secretsmanager sink",
				Suggestion: "Set rotate.sink.secret_id to the secret name or ARN",
			}
		}
	default:
		return dserrors.ConfigError{
			Field:      "rotate.sink.type",
			Value:      d.Rotate.Sink.Type,
			Message:    "unknown credential sink",
			Suggestion: "Use one of: stdout, keyring, aws-secretsmanager",
		}
	}

	return nil
}

// DatabaseType normalises database.type to "mysql" or "postgres"
func (d *Definition) DatabaseType() string {
	switch strings.ToLower(d.Database.Type) {
	case "mysql", "mariadb":
		return "mysql"
	case "postgres", "postgresql":
		return "postgres"
	default:
		return strings.ToLower(d.Database.Type)
	}
}

// RestartEnabled reports whether rotation restarts the database container
func (d *Definition) RestartEnabled() bool {
	return d.Rotate.Restart == nil || *d.Rotate.Restart
}

// Redacted returns the effective configuration as YAML with secrets masked
func (d *Definition) Redacted() ([]byte, error) {
	cp := *d
	if cp.Database.Password != "" {
		cp.Database.Password = logging.Secret(cp.Database.Password).String()
	}
	if cp.Backup.Upload.SecretAccessKey != "" {
		cp.Backup.Upload.SecretAccessKey = logging.Secret(cp.Backup.Upload.SecretAccessKey).String()
	}
	if cp.Rotate.Sink.SecretAccessKey != "" {
		cp.Rotate.Sink.SecretAccessKey = logging.Secret(cp.Rotate.Sink.SecretAccessKey).String()
	}
	return yaml.Marshal(&cp)
}
