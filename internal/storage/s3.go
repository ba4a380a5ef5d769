package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

// putObjectAPI is the part of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores files in an S3-compatible bucket.
type S3Uploader struct {
	api     putObjectAPI
	cfg     config.S3Config
	timeout time.Duration
	logger  *slog.Logger
}

// NewS3Uploader builds an S3 client from cfg. Static credentials are used
// when given, otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig, logger *slog.Logger) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Uploader(client, cfg, logger), nil
}

func newS3Uploader(api putObjectAPI, cfg config.UploadConfig, logger *slog.Logger) *S3Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Uploader{
		api:     api,
		cfg:     cfg.S3,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Name implements Uploader.
func (u *S3Uploader) Name() string { return config.StrategyS3 }

// Check implements Uploader.
func (u *S3Uploader) Check() error {
	if u.cfg.Bucket == "" {
		return &domain.ConfigError{Field: "S3_BUCKET"}
	}
	return nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*domain.UploadResult, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	key := u.cfg.KeyPrefix + objectName(file, meta)
	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(file.Size),
		ContentType:   aws.String(contentType(file)),
		Metadata: map[string]string{
			"video-id": meta.ID,
			// Header values must be ASCII.
			"title": url.QueryEscape(meta.Title),
		},
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return nil, &domain.UploadError{
				Target:     u.Name(),
				StatusCode: respErr.HTTPStatusCode(),
				Body:       respErr.Err.Error(),
			}
		}
		return nil, fmt.Errorf("put object: %w", err)
	}

	res := &domain.UploadResult{URL: u.objectURL(key), Size: file.Size}
	u.logger.Info("object stored", "bucket", u.cfg.Bucket, "key", key, "url", res.URL)
	return res, nil
}

// objectURL returns the public URL of key.
func (u *S3Uploader) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + escaped
	case u.cfg.Endpoint != "":
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, escaped)
	}
}
