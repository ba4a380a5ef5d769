package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iconidentify/vidrelay/internal/domain"
	"github.com/iconidentify/vidrelay/internal/service"
)

// maxRequestBody caps the JSON request body.
const maxRequestBody = 64 << 10

// DownloadService is the pipeline behind POST /download.
type DownloadService interface {
	Streaming() bool
	Process(ctx context.Context, url string) (*service.Result, error)
	Fetch(ctx context.Context, url string) (*service.LocalResult, error)
}

// DownloadHandler handles download requests.
type DownloadHandler struct {
	svc    DownloadService
	logger *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(svc DownloadService, logger *slog.Logger) *DownloadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadHandler{
		svc:    svc,
		logger: logger,
	}
}

// DownloadRequest is the JSON request body for POST /download.
type DownloadRequest struct {
	URL string `json:"url"`
}

// DownloadResponse is returned after a successful upload.
type DownloadResponse struct {
	Success bool         `json:"success"`
	Video   domain.Video `json:"video"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Download handles POST /download.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingURL.Error())
		return
	}

	h.logger.Info("download requested", "url", req.URL, "stream", h.svc.Streaming())

	if h.svc.Streaming() {
		h.stream(w, r, req.URL)
		return
	}

	res, err := h.svc.Process(r.Context(), req.URL)
	if err != nil {
		h.fail(w, req.URL, err)
		return
	}

	writeJSON(w, http.StatusOK, DownloadResponse{
		Success: true,
		Video:   res.Video,
	})
}

// stream sends the downloaded file as the response body.
func (h *DownloadHandler) stream(w http.ResponseWriter, r *http.Request, url string) {
	res, err := h.svc.Fetch(r.Context(), url)
	if err != nil {
		h.fail(w, url, err)
		return
	}
	defer res.Release()

	meta := res.Metadata
	ext := filepath.Ext(res.Local.Path)
	if ext == "" {
		ext = ".mp4"
	}

	hdr := w.Header()
	hdr.Set("Content-Type", res.Local.ContentType)
	hdr.Set("Content-Length", strconv.FormatInt(res.Local.Size, 10))
	hdr.Set("Content-Disposition", contentDisposition(meta.ID+ext))
	hdr.Set("X-Video-Title", meta.Title)
	hdr.Set("X-Video-Duration", strconv.FormatFloat(meta.Duration, 'f', -1, 64))
	hdr.Set("X-Video-Duration-Formatted", meta.FormattedDuration())
	hdr.Set("X-Video-Thumbnail", meta.Thumbnail)
	hdr.Set("X-Video-ID", meta.ID)
	hdr.Set("Access-Control-Expose-Headers",
		"X-Video-Title, X-Video-Duration, X-Video-Duration-Formatted, X-Video-Thumbnail, X-Video-ID, Content-Disposition")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, res.File); err != nil {
		// Headers are already sent; the client sees a truncated body.
		h.logger.Warn("stream aborted", "video_id", meta.ID, "error", err)
	}
}

// contentDisposition builds an attachment header for name. Plain ASCII
// names are always quoted; anything else goes through mime encoding.
func contentDisposition(name string) string {
	if isPlainFilename(name) {
		return `attachment; filename="` + name + `"`
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func isPlainFilename(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

func (h *DownloadHandler) fail(w http.ResponseWriter, url string, err error) {
	status, detail := errorDetail(err)
	h.logger.Error("download failed", "url", url, "status", status, "error", err)
	writeError(w, status, detail)
}

// errorDetail maps a pipeline error to a status code and message.
func errorDetail(err error) (int, string) {
	var (
		toolErr   *domain.ToolError
		configErr *domain.ConfigError
		uploadErr *domain.UploadError
	)
	switch {
	case errors.Is(err, domain.ErrMissingURL):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &toolErr):
		return http.StatusInternalServerError, toolErr.Error()
	case errors.Is(err, domain.ErrInvalidOutput):
		return http.StatusInternalServerError, domain.ErrInvalidOutput.Error()
	case errors.As(err, &configErr):
		return http.StatusInternalServerError, configErr.Error()
	case errors.As(err, &uploadErr):
		return http.StatusInternalServerError, uploadErr.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
