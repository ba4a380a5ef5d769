package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

// BlobUploader stores a file with one authenticated PUT to a blob API.
type BlobUploader struct {
	client  *http.Client
	baseURL string
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewBlobUploader creates a direct blob uploader.
func NewBlobUploader(cfg config.UploadConfig, client *http.Client, logger *slog.Logger) *BlobUploader {
	return &BlobUploader{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Name implements Uploader.
func (u *BlobUploader) Name() string { return config.StrategyBlob }

// Check implements Uploader.
func (u *BlobUploader) Check() error {
	if u.token == "" {
		return &domain.ConfigError{Field: "BLOB_READ_WRITE_TOKEN"}
	}
	if u.baseURL == "" {
		return &domain.ConfigError{Field: "UPLOAD_URL"}
	}
	return nil
}

// Upload implements Uploader.
func (u *BlobUploader) Upload(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*domain.UploadResult, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	target := u.baseURL + "/" + url.PathEscape(objectName(file, meta))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = file.Size
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", contentType(file))
	req.Header.Set("x-content-type", contentType(file))
	req.Header.Set("x-add-random-suffix", "1")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, u.Name()); err != nil {
		return nil, err
	}

	res, err := decodeStored(resp.Body, u.Name())
	if err != nil {
		return nil, err
	}
	if res.Size == 0 {
		res.Size = file.Size
	}

	u.logger.Info("blob stored", "video_id", meta.ID, "url", res.URL)
	return res, nil
}
