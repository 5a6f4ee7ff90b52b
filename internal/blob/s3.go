package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/config"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// S3Store stores blobs in an S3-compatible bucket. A MinIO backend works by
// pointing BaseEndpoint at it.
type S3Store struct {
	client      *s3.Client
	bucket      string
	endpoint    string
	maxBytes    int64
	callTimeout time.Duration
}

// NewS3Store builds a store from the runtime configuration. maxBytes bounds
// a single object; zero disables the guard.
func NewS3Store(ctx context.Context, c *config.Config, maxBytes int64) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:      client,
		bucket:      c.S3Bucket,
		endpoint:    strings.TrimSuffix(c.S3BaseEndpoint, "/"),
		maxBytes:    maxBytes,
		callTimeout: c.StoreCallTimeout,
	}, nil
}

// callCtx bounds one store call. A timed-out call counts as a failure for
// the caller's rollback logic; the rollback itself is idempotent, so the
// pessimistic assumption that the write may have landed is safe.
func (s *S3Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *S3Store) Put(ctx context.Context, path string, data []byte, contentType string) (Locator, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Locator{}, fmt.Errorf("%w: %d bytes", common.ErrorFileTooLarge, len(data))
	}

	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &path,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return Locator{}, fmt.Errorf("put object %s: %w", path, err)
	}

	return Locator{
		Path:      path,
		URL:       fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, path),
		MIMEType:  contentType,
		SizeBytes: int64(len(data)),
	}, nil
}

// Delete removes the object at path. S3 delete succeeds for absent keys,
// which gives the idempotence the rollback path depends on.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := deleteObject(s.client, ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}
