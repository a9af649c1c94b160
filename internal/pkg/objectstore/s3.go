package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// maxDeleteBatch is the S3 limit for keys per DeleteObjects call.
const maxDeleteBatch = 1000

// S3Client stores objects in an S3 compatible bucket (AWS, MinIO, Storj gateway).
type S3Client struct {
	name     string
	s3Client *s3.Client
	uploader *manager.Uploader
	config   Config
}

// NewS3Client creates a client for the configured bucket and verifies access to it.
// name is only used in log lines.
func NewS3Client(ctx context.Context, name string, cfg Config) (*S3Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// Gateways like Storj and MinIO only serve path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		if cfg.PartSizeMB > 0 {
			u.PartSize = cfg.PartSizeMB * 1024 * 1024
		}
	})

	client := &S3Client{
		name:     name,
		s3Client: s3Client,
		uploader: uploader,
		config:   cfg,
	}

	if err := client.testConnection(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	log.Infof("[ObjectStore] Initialized %s client for bucket: %s", name, cfg.BucketName)
	return client, nil
}

// testConnection checks the bucket and creates it when allowed.
func (c *S3Client) testConnection(ctx context.Context) error {
	err := c.Ping(ctx)
	if err == nil {
		return nil
	}
	if !c.config.CreateBucket {
		return err
	}
	log.Warnf("[ObjectStore] Bucket %s not found, attempting to create it", c.config.BucketName)
	return c.createBucket(ctx)
}

func (c *S3Client) createBucket(ctx context.Context) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(c.config.BucketName),
	}
	// us-east-1 and custom endpoints reject a location constraint
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}
	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.config.BucketName, err)
	}
	log.Infof("[ObjectStore] Created bucket: %s", c.config.BucketName)
	return nil
}

// Put uploads data under key, switching to multipart uploads for large objects.
func (c *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"upload-source": "mediabridge",
		},
	})
	if err != nil {
		return fmt.Errorf("%w: put s3://%s/%s: %w", apperror.ErrBackendUnavailable, c.config.BucketName, key, err)
	}
	return nil
}

// Get downloads the object stored under key.
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, string, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", apperror.ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("%w: get s3://%s/%s: %w", apperror.ErrBackendUnavailable, c.config.BucketName, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read s3://%s/%s: %w", apperror.ErrBackendUnavailable, c.config.BucketName, key, err)
	}
	return data, aws.ToString(result.ContentType), nil
}

// ListByPrefix returns every key beginning with prefix.
func (c *S3Client) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.BucketName),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3://%s/%s: %w", apperror.ErrBackendUnavailable, c.config.BucketName, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DeleteMany removes keys in batches. Missing keys are not an error.
func (c *S3Client) DeleteMany(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.config.BucketName),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("%w: delete from s3://%s: %w", apperror.ErrBackendUnavailable, c.config.BucketName, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("%w: delete %s: %s", apperror.ErrBackendUnavailable, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// URL returns the public URL of key.
func (c *S3Client) URL(key string) string {
	return c.config.ObjectURL(key)
}

// Ping checks that the bucket is reachable.
func (c *S3Client) Ping(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("%w: bucket %s not accessible: %w", apperror.ErrBackendUnavailable, c.config.BucketName, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
