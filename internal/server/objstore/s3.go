package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/logging"
	sc "github.com/sealvault/sealvault/internal/server/config"
)

// seams for testing the aws wiring without a live backend
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4PresignedRequest, error)
}

// v4PresignedRequest narrows the presign result to what we consume.
type v4PresignedRequest struct {
	URL string
}

type presignAdapter struct {
	pc *s3.PresignClient
}

func (a *presignAdapter) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	req, err := a.pc.PresignGetObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &v4PresignedRequest{URL: req.URL}, nil
}

// S3Store implements ObjectStore over an S3-compatible backend (MinIO in
// development). Transient failures are retried with bounded exponential
// backoff; exhausted retries surface as common.ErrStorageUnavailable.
type S3Store struct {
	client     s3API
	presign    s3PresignAPI
	bucket     string
	maxRetries uint64
	baseDelay  time.Duration
	logger     logging.Logger
}

// NewS3Store builds an S3Store from server config.
func NewS3Store(ctx context.Context, cfg *sc.Config, logger logging.Logger) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,     // MINIO_ROOT_USER
			cfg.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:     client,
		presign:    &presignAdapter{pc: newS3PresignClient(client)},
		bucket:     cfg.S3Bucket,
		maxRetries: cfg.S3MaxRetries,
		baseDelay:  cfg.S3RetryBaseDelay,
		logger:     logger.With("module", "objstore"),
	}, nil
}

// withRetry runs op with bounded exponential backoff. Terminal errors
// (NotFound) pass through untouched; anything still failing after the last
// attempt becomes ErrStorageUnavailable.
func (s *S3Store) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		s.logger.Warn(ctx, "storage backend call failed, retrying",
			"op", name, "attempt", attempt, "error", err.Error())
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorageUnavailable, name, err)
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte) error {
	return s.withRetry(ctx, "put", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		})
		return err
	})
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := s.withRetry(ctx, "get", func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return common.ErrNotFound
			}
			return err
		}
		rc = out.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, "delete", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	var url string
	err := s.withRetry(ctx, "presign_get", func(ctx context.Context) error {
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expires))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}
