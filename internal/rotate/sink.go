package rotate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/systmms/dbops/internal/awscfg"
	"github.com/systmms/dbops/internal/config"
	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/zalando/go-keyring"
)

// Sink receives newly created credentials.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, username string, password []byte) error
}

// NewSink builds the sink selected in the rotate.sink config block.
// stdout is where the stdout sink prints.
func NewSink(ctx context.Context, cfg config.SinkConfig, stdout io.Writer) (Sink, error) {
	switch cfg.Type {
	case "", "stdout":
		return &StdoutSink{w: stdout}, nil
	case "keyring":
		service := cfg.Service
		if service == "" {
			service = "dbops"
		}
		return &KeyringSink{service: service}, nil
	case "aws-secretsmanager":
		awsCfg, err := awscfg.Load(ctx, cfg.Region, cfg.AWSCredentials)
		if err != nil {
			return nil, err
		}
		var opts []func(*secretsmanager.Options)
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			opts = append(opts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		return NewSecretsManagerSink(secretsmanager.NewFromConfig(awsCfg, opts...), cfg.SecretID), nil
	default:
		return nil, fmt.Errorf("unknown credential sink %q", cfg.Type)
	}
}

// StdoutSink prints the credentials in the historical one-line format.
type StdoutSink struct {
	w io.Writer
}

// NewStdoutSink creates a sink writing to w.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Deliver(_ context.Context, username string, password []byte) error {
	_, err := fmt.Fprintf(s.w, "New credentials: User='%s', Password='%s'\n", username, password)
	return err
}

// KeyringSink stores the password in the OS keyring under the username.
type KeyringSink struct {
	service string
}

// NewKeyringSink creates a sink for the given keyring service name.
func NewKeyringSink(service string) *KeyringSink {
	return &KeyringSink{service: service}
}

func (s *KeyringSink) Name() string { return "keyring" }

func (s *KeyringSink) Deliver(_ context.Context, username string, password []byte) error {
	if err := keyring.Set(s.service, username, string(password)); err != nil {
		return dserrors.UserError{
			Message:    "Failed to store credentials in the OS keyring",
			Details:    err.Error(),
			Suggestion: "Make sure a keyring daemon is running, or use rotate.sink.type: stdout",
			Err:        err,
		}
	}
	return nil
}

// PutSecretValueAPI is the slice of the Secrets Manager client the sink needs.
type PutSecretValueAPI interface {
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// SecretsManagerSink writes a new secret version holding the credentials as JSON.
type SecretsManagerSink struct {
	client   PutSecretValueAPI
	secretID string
}

// NewSecretsManagerSink creates a sink over an existing client.
func NewSecretsManagerSink(client PutSecretValueAPI, secretID string) *SecretsManagerSink {
	return &SecretsManagerSink{client: client, secretID: secretID}
}

func (s *SecretsManagerSink) Name() string { return "aws-secretsmanager" }

type secretDocument struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *SecretsManagerSink) Deliver(ctx context.Context, username string, password []byte) error {
	doc, err := json.Marshal(secretDocument{Username: username, Password: string(password)})
	if err != nil {
		return fmt.Errorf("failed to encode secret: %w", err)
	}

	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(s.secretID),
		SecretString: aws.String(string(doc)),
	})
	if err != nil {
		return dserrors.ServiceError("aws-secretsmanager", "PutSecretValue", err)
	}
	return nil
}
