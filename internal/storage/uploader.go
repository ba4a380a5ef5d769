// Package storage implements the upload targets a downloaded file can be
// handed to.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

// Uploader transfers a local file to remote storage.
type Uploader interface {
	// Name identifies the target in logs and metrics.
	Name() string

	// Check reports missing configuration without doing any I/O.
	Check() error

	// Upload sends file and returns where it was stored.
	Upload(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*domain.UploadResult, error)
}

// maxErrorBody caps how much of a rejection body is kept.
const maxErrorBody = 1024

// New builds the uploader for cfg.Strategy. The stream strategy has no
// remote target and yields a nil Uploader.
func New(ctx context.Context, cfg config.UploadConfig, logger *slog.Logger) (Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// No overall client timeout; cfg.Timeout bounds each upload via context.
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 2 * time.Minute,
		},
	}

	switch cfg.Strategy {
	case config.StrategyStream:
		return nil, nil
	case config.StrategyBlob:
		return NewBlobUploader(cfg, client, logger), nil
	case config.StrategyPresigned:
		return NewPresignedUploader(cfg, client, logger), nil
	case config.StrategyBackend:
		return NewBackendUploader(cfg, client, logger), nil
	case config.StrategyS3:
		return NewS3Uploader(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown upload strategy %q", cfg.Strategy)
	}
}

// objectName returns the remote file name for a download.
func objectName(file domain.LocalFile, meta domain.VideoMetadata) string {
	ext := filepath.Ext(file.Path)
	if ext == "" {
		ext = ".mp4"
	}
	return meta.ID + ext
}

func contentType(file domain.LocalFile) string {
	if file.ContentType != "" {
		return file.ContentType
	}
	return "video/mp4"
}

// withTimeout applies the upload deadline when one is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// checkResponse turns a non-2xx response into an UploadError.
func checkResponse(resp *http.Response, target string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.UploadError{
		Target:     target,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// storedObject is the response shape shared by the blob API and the
// upload backend.
type storedObject struct {
	URL   string `json:"url"`
	Size  int64  `json:"size"`
	Video *struct {
		URL  string `json:"url"`
		Size int64  `json:"size"`
	} `json:"video"`
}

func decodeStored(r io.Reader, target string) (*domain.UploadResult, error) {
	var obj storedObject
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", target, err)
	}

	res := &domain.UploadResult{URL: obj.URL, Size: obj.Size}
	if res.URL == "" && obj.Video != nil {
		res.URL = obj.Video.URL
		res.Size = obj.Video.Size
	}
	if res.URL == "" {
		return nil, fmt.Errorf("%s response has no url", target)
	}
	return res, nil
}
