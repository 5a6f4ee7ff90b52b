package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/config"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.S3Bucket = "bucket"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	return c
}

func newTestS3Store(t *testing.T) *S3Store {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}

	store, err := NewS3Store(context.Background(), testConfig(), 0)
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	return store
}

func TestS3Store_Put_BuildsLocator(t *testing.T) {
	store := newTestS3Store(t)

	var gotKey, gotType string
	origPut := putObject
	t.Cleanup(func() { putObject = origPut })
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		gotKey = *in.Key
		gotType = *in.ContentType
		return &s3.PutObjectOutput{}, nil
	}

	loc, err := store.Put(context.Background(), "essays/2026/01/02/x-a.pdf", []byte("data"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "essays/2026/01/02/x-a.pdf" {
		t.Fatalf("unexpected key: %s", gotKey)
	}
	if gotType != "application/pdf" {
		t.Fatalf("unexpected content type: %s", gotType)
	}
	if loc.URL != "http://127.0.0.1:9000/bucket/essays/2026/01/02/x-a.pdf" {
		t.Fatalf("unexpected url: %s", loc.URL)
	}
	if loc.SizeBytes != 4 {
		t.Fatalf("unexpected size: %d", loc.SizeBytes)
	}
}

func TestS3Store_Put_SizeGuard(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}

	store, err := NewS3Store(context.Background(), testConfig(), 2)
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}

	putCalled := false
	origPut := putObject
	t.Cleanup(func() { putObject = origPut })
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		putCalled = true
		return &s3.PutObjectOutput{}, nil
	}

	_, err = store.Put(context.Background(), "p", []byte("too big"), "text/plain")
	if !errors.Is(err, common.ErrorFileTooLarge) {
		t.Fatalf("want ErrorFileTooLarge, got %v", err)
	}
	if putCalled {
		t.Fatal("oversize put must not reach the backend")
	}
}

func TestS3Store_Put_BackendError(t *testing.T) {
	store := newTestS3Store(t)

	origPut := putObject
	t.Cleanup(func() { putObject = origPut })
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return nil, errors.New("boom")
	}

	_, err := store.Put(context.Background(), "p", []byte("x"), "text/plain")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestS3Store_Delete_PassesKey(t *testing.T) {
	store := newTestS3Store(t)

	var gotKey string
	origDelete := deleteObject
	t.Cleanup(func() { deleteObject = origDelete })
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		gotKey = *in.Key
		return &s3.DeleteObjectOutput{}, nil
	}

	if err := store.Delete(context.Background(), "a/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "a/b" {
		t.Fatalf("unexpected key: %s", gotKey)
	}
}
