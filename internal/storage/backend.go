package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

// BackendUploader forwards the file and its metadata to another service
// as a multipart form; that service performs the storage upload.
type BackendUploader struct {
	client   *http.Client
	endpoint string
	token    string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewBackendUploader creates a forwarding uploader.
func NewBackendUploader(cfg config.UploadConfig, client *http.Client, logger *slog.Logger) *BackendUploader {
	return &BackendUploader{
		client:   client,
		endpoint: cfg.BackendURL,
		token:    cfg.Token,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Name implements Uploader.
func (u *BackendUploader) Name() string { return config.StrategyBackend }

// Check implements Uploader.
func (u *BackendUploader) Check() error {
	if u.endpoint == "" {
		return &domain.ConfigError{Field: "BACKEND_UPLOAD_URL"}
	}
	return nil
}

// Upload implements Uploader.
func (u *BackendUploader) Upload(ctx context.Context, file domain.LocalFile, meta domain.VideoMetadata) (*domain.UploadResult, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, file, meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	// The transport closes pr, which unblocks the writer on early exit.
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

	u.logger.Info("backend upload complete", "video_id", meta.ID, "url", res.URL)
	return res, nil
}

func writeForm(mw *multipart.Writer, src io.Reader, file domain.LocalFile, meta domain.VideoMetadata) error {
	fields := []struct{ name, value string }{
		{"title", meta.Title},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', -1, 64)},
		{"durationFormatted", meta.FormattedDuration()},
		{"thumbnail", meta.Thumbnail},
		{"videoId", meta.ID},
		{"sourceUrl", meta.WebpageURL},
	}
	for _, fld := range fields {
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return fmt.Errorf("write field %s: %w", fld.name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(objectName(file, meta))))
	h.Set("Content-Type", contentType(file))
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file part: %w", err)
	}
	return mw.Close()
}
