// Package storage provides object storage implementations for media staging.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	syncapp "github.com/storesync/backend/internal/application/sync"
	"github.com/storesync/backend/internal/domain/catalog"
	infraconfig "github.com/storesync/backend/internal/infrastructure/config"
)

// Ensure S3MediaStager implements MediaStager
var _ syncapp.MediaStager = (*S3MediaStager)(nil)

// S3MediaStager stages catalog images held in S3-compatible object storage
// behind presigned download URLs so the storefront platform can fetch them
// during product export. Works with AWS S3, MinIO and other compatible
// backends.
type S3MediaStager struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	urlExpiration time.Duration
	logger        *zap.Logger
}

// S3MediaStagerOption is a functional option for configuring S3MediaStager
type S3MediaStagerOption func(*S3MediaStager)

// WithLogger sets a custom logger for S3MediaStager
func WithLogger(logger *zap.Logger) S3MediaStagerOption {
	return func(s *S3MediaStager) {
		s.logger = logger
	}
}

// WithURLExpiration sets a custom presigned URL expiration
func WithURLExpiration(d time.Duration) S3MediaStagerOption {
	return func(s *S3MediaStager) {
		s.urlExpiration = d
	}
}

// NewS3MediaStager creates a media stager from configuration.
func NewS3MediaStager(cfg *infraconfig.StorageConfig, opts ...S3MediaStagerOption) (*S3MediaStager, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	stager := &S3MediaStager{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		urlExpiration: cfg.URLExpiration,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(stager)
	}
	if stager.urlExpiration <= 0 {
		stager.urlExpiration = time.Hour
	}

	return stager, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Call during startup.
func (s *S3MediaStager) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Lost a creation race; the bucket is there either way.
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// StageURL returns a URL the platform can fetch for the given image. An
// absolute URL is already reachable and passes through; anything else is
// treated as an object key and presigned.
func (s *S3MediaStager) StageURL(ctx context.Context, image *catalog.ProductImage) (string, error) {
	if image == nil || image.URL == "" {
		return "", errors.New("image URL is required")
	}
	if strings.HasPrefix(image.URL, "http://") || strings.HasPrefix(image.URL, "https://") {
		return image.URL, nil
	}

	presignReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(image.URL),
	}, s3.WithPresignExpires(s.urlExpiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign media URL: %w", err)
	}
	return presignReq.URL, nil
}

// Upload puts media content directly into storage.
func (s *S3MediaStager) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(storageKey),
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// ObjectExists checks if an object exists in storage.
func (s *S3MediaStager) ObjectExists(ctx context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, errors.New("storage key is required")
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		// Some S3-compatible services report not-found differently.
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// DeleteObject removes an object from storage.
func (s *S3MediaStager) DeleteObject(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Bucket returns the bucket name
func (s *S3MediaStager) Bucket() string {
	return s.bucket
}
