package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

// PresignedUploader asks the storage API for an upload URL, then PUTs
// the file to it.
type PresignedUploader struct {
	client   *http.Client
	endpoint string
	token    string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPresignedUploader creates a two-step uploader.
func NewPresignedUploader(cfg config.UploadConfig, client *http.Client, logger *slog.Logger) *PresignedUploader {
	return &PresignedUploader{
		client:   client,
		endpoint: cfg.URL,
		token:    cfg.Token,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Name implements Uploader.
func (u *PresignedUploader) Name() string { return config.StrategyPresigned }

// Check implements Uploader.
func (u *PresignedUploader) Check() error {
	if u.token == "" {
		return &domain.ConfigError{Field: "BLOB_READ_WRITE_TOKEN"}
	}
	if u.endpoint == "" {
		return &domain.ConfigError{Field: "UPLOAD_URL"}
	}
	return nil
}

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type uploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	URL       string `json:"url"`
}

// Upload implements Uploader.
func (u *PresignedUploader) Upload(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*domain.UploadResult, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	grant, err := u.requestUploadURL(ctx, file, meta)
	if err != nil {
		return nil, err
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, f)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.ContentLength = file.Size
	req.Header.Set("Content-Type", contentType(file))

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send upload request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, u.Name()); err != nil {
		return nil, err
	}

	u.logger.Info("presigned upload complete", "video_id", meta.ID, "url", grant.URL)
	return &domain.UploadResult{URL: grant.URL, Size: file.Size}, nil
}

func (u *PresignedUploader) requestUploadURL(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*uploadURLResponse, error) {
	body, err := json.Marshal(uploadURLRequest{
		Filename:    objectName(file, meta),
		ContentType: contentType(file),
		Size:        file.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upload url request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upload url request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request upload url: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, u.Name()); err != nil {
		return nil, err
	}

	var grant uploadURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("decode upload url response: %w", err)
	}
	if grant.UploadURL == "" || grant.URL == "" {
		return nil, fmt.Errorf("upload url response missing uploadUrl or url")
	}
	return &grant, nil
}
