package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements ObjectStorage for AWS S3.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	config     S3Config
	maxRetries int
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// MultipartConfig holds multipart upload settings.
	MultipartConfig MultipartUploadConfig
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:          "us-east-1",
		MultipartConfig: DefaultMultipartConfig(),
	}
}

// NewS3Storage creates a new S3 storage client.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StorageWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, cfg), nil
}

// NewS3StorageWithClient creates a new S3 storage with a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	if cfg.MultipartConfig.PartSize <= 0 {
		cfg.MultipartConfig = DefaultMultipartConfig()
	}
	return &S3Storage{
		client:     client,
		bucket:     bucket,
		config:     cfg,
		maxRetries: 3,
	}
}

// Put uploads an object. Objects larger than one part use a multipart
// upload.
func (s *S3Storage) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	if int64(len(data)) > s.config.MultipartConfig.PartSize {
		return s.putMultipart(ctx, objectPath, data)
	}
	return s.put(ctx, objectPath, data, false)
}

// PutIfAbsent uploads an object with an If-None-Match condition.
func (s *S3Storage) PutIfAbsent(ctx context.Context, objectPath string, data []byte) (string, error) {
	return s.put(ctx, objectPath, data, true)
}

func (s *S3Storage) put(ctx context.Context, objectPath string, data []byte, ifAbsent bool) (string, error) {
	var etag string
	err := s.retryWithBackoff(ctx, func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
			Body:   bytes.NewReader(data),
		}
		if ifAbsent {
			input.IfNoneMatch = aws.String("*")
		}

		resp, err := s.client.PutObject(ctx, input)
		if err != nil {
			if isS3PreconditionFailed(err) {
				return ErrPreconditionFailed
			}
			return err
		}
		etag = aws.ToString(resp.ETag)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etag, nil
}

func (s *S3Storage) putMultipart(ctx context.Context, objectPath string, data []byte) (string, error) {
	var etag string
	err := s.retryWithBackoff(ctx, func() error {
		var uploadErr error
		etag, uploadErr = s.doMultipartUpload(ctx, objectPath, data)
		return uploadErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etag, nil
}

func (s *S3Storage) doMultipartUpload(ctx context.Context, objectPath string, data []byte) (string, error) {
	partSize := s.config.MultipartConfig.PartSize
	size := int64(len(data))

	createResp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return "", err
	}

	uploadID := createResp.UploadId
	numParts := int(math.Ceil(float64(size) / float64(partSize)))
	completedParts := make([]types.CompletedPart, 0, numParts)

	for partNum := 1; partNum <= numParts; partNum++ {
		offset := int64(partNum-1) * partSize
		end := offset + partSize
		if end > size {
			end = size
		}

		uploadResp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectPath),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(int32(partNum)),
			Body:          bytes.NewReader(data[offset:end]),
			ContentLength: aws.Int64(end - offset),
		})
		if err != nil {
			s.abortMultipartUpload(ctx, objectPath, uploadID)
			return "", err
		}

		completedParts = append(completedParts, types.CompletedPart{
			ETag:       uploadResp.ETag,
			PartNumber: aws.Int32(int32(partNum)),
		})
	}

	completeResp, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectPath),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		s.abortMultipartUpload(ctx, objectPath, uploadID)
		return "", err
	}

	return aws.ToString(completeResp.ETag), nil
}

func (s *S3Storage) abortMultipartUpload(ctx context.Context, objectPath string, uploadID *string) {
	_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectPath),
		UploadId: uploadID,
	})
}

// Get downloads a whole object from S3.
func (s *S3Storage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	var data []byte
	err := s.retryWithBackoff(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// Delete removes an object from S3.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	err := s.retryWithBackoff(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Exists checks if an object exists in S3.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	var exists bool
	err := s.retryWithBackoff(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// List returns all object paths under the given prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, aws.ToString(obj.Key))
		}
	}
	sort.Strings(objects)
	return objects, nil
}

// isS3PreconditionFailed checks if the error is a precondition failed error.
// AWS SDK v2 has no typed error for it.
func isS3PreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "PreconditionFailed") || strings.Contains(msg, "412")
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (s *S3Storage) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		// Don't retry on precondition failures or not found errors
		if errors.Is(lastErr, ErrPreconditionFailed) || errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < s.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
