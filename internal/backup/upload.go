package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/systmms/dbops/internal/awscfg"
	"github.com/systmms/dbops/internal/config"
	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/systmms/dbops/internal/logging"
)

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies finished dumps to an S3 bucket.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *logging.Logger
}

// NewUploader creates an S3 client from the upload settings. A non-empty
// endpoint selects an S3-compatible store and path-style addressing.
func NewUploader(ctx context.Context, cfg config.UploadConfig, logger *logging.Logger) (*Uploader, error) {
	awsCfg, err := awscfg.Load(ctx, cfg.Region, cfg.AWSCredentials)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewUploaderWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewUploaderWithClient creates an Uploader over an existing client.
func NewUploaderWithClient(client PutObjectAPI, bucket, prefix string, logger *logging.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

// ObjectKey returns the key a dump file is stored under.
func ObjectKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// Upload puts the file at localPath into the bucket and returns its key.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	// #nosec G304 -- localPath is the dump this process just wrote
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	key := ObjectKey(u.prefix, filepath.Base(localPath))
	if u.logger != nil {
		u.logger.Debug("Uploading %s to s3://%s/%s", localPath, u.bucket, key)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/sql"),
	})
	if err != nil {
		return "", dserrors.ServiceError("s3", "upload", err)
	}

	return key, nil
}
