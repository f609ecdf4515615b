// Package awscfg loads AWS SDK configuration for the S3 upload and the
// Secrets Manager credential sink.
package awscfg

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	dbconfig "github.com/systmms/dbops/internal/config"
)

// loadDefaultConfig is swapped in tests
var loadDefaultConfig = config.LoadDefaultConfig

// Load builds an aws.Config for region. Static keys are used when both are
// set (LocalStack, MinIO); otherwise the default credential chain applies.
func Load(ctx context.Context, region string, creds dbconfig.AWSCredentials) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	cfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
