package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/iconidentify/vidrelay/internal/cookies"
	"github.com/iconidentify/vidrelay/internal/domain"
	"github.com/iconidentify/vidrelay/internal/downloader"
	"github.com/iconidentify/vidrelay/internal/metrics"
	"github.com/iconidentify/vidrelay/internal/storage"
)

// Pipeline stages, used as metric labels.
const (
	stageMetadata = "metadata"
	stageDownload = "download"
	stageUpload   = "upload"
)

// mediaFile is the download target inside a work dir. Remote video ids
// never become local path components.
const mediaFile = "media.mp4"

// lowDiskSpace is the free scratch space below which a warning is logged.
const lowDiskSpace = 1 << 30

// ErrNoUploader is returned by Process when the service runs in stream mode.
var ErrNoUploader = errors.New("no upload target configured")

// Config tunes the download pipeline.
type Config struct {
	// TempPath is the parent of every per-request work dir.
	TempPath string

	// Cookies is the raw Netscape cookie jar, empty for none.
	Cookies string

	// MaxConcurrent bounds simultaneous downloader runs.
	MaxConcurrent int64
}

// TokenSource supplies proof-of-origin tokens for the downloader.
type TokenSource interface {
	Token(ctx context.Context) (*domain.PoToken, error)
}

// DownloadService runs the metadata, download and upload steps for a
// single source URL.
type DownloadService struct {
	cfg        Config
	downloader downloader.Downloader
	uploader   storage.Uploader
	tokens     TokenSource
	metrics    *metrics.Metrics
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewDownloadService creates a new download service. A nil uploader puts
// the service in stream mode, where only Fetch is usable.
func NewDownloadService(
	cfg Config,
	dl downloader.Downloader,
	uploader storage.Uploader,
	tokens TokenSource,
	m *metrics.Metrics,
	logger *slog.Logger,
) *DownloadService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadService{
		cfg:        cfg,
		downloader: dl,
		uploader:   uploader,
		tokens:     tokens,
		metrics:    m,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:     logger,
	}
}

// Result is returned by Process.
type Result struct {
	Metadata domain.VideoMetadata
	Upload   domain.UploadResult
	Video    domain.Video
}

// LocalResult is returned by Fetch. The caller owns File and must call
// Release once the file has been consumed.
type LocalResult struct {
	Metadata domain.VideoMetadata
	Local    domain.LocalFile
	File     *os.File

	release func()
}

// Release closes the file and removes the request's work dir.
// It is safe to call more than once.
func (r *LocalResult) Release() {
	if r == nil || r.release == nil {
		return
	}
	r.release()
	r.release = nil
}

// Streaming reports whether the service hands files back to the caller
// instead of uploading them.
func (s *DownloadService) Streaming() bool {
	return s.uploader == nil
}

// Process downloads url and uploads the file to the configured target.
// Nothing is left on local disk when it returns.
func (s *DownloadService) Process(ctx context.Context, url string) (res *Result, err error) {
	defer func() { s.metrics.ObserveRequest(outcome(err)) }()

	if url == "" {
		return nil, domain.ErrMissingURL
	}
	if s.uploader == nil {
		return nil, ErrNoUploader
	}
	// Missing credentials fail before any subprocess runs.
	if err := s.uploader.Check(); err != nil {
		return nil, err
	}

	meta, local, cleanup, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	start := time.Now()
	upload, err := s.uploader.Upload(ctx, *local, *meta)
	s.metrics.ObserveStage(stageUpload, time.Since(start))
	if err != nil {
		s.logger.Error("upload failed",
			"video_id", meta.ID,
			"target", s.uploader.Name(),
			"error", err,
		)
		return nil, err
	}
	if upload.Size == 0 {
		upload.Size = local.Size
	}
	s.metrics.ObserveUpload(s.uploader.Name(), local.Size)

	s.logger.Info("video uploaded",
		"video_id", meta.ID,
		"target", s.uploader.Name(),
		"url", upload.URL,
		"size", humanize.Bytes(uint64(local.Size)),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Result{
		Metadata: *meta,
		Upload:   *upload,
		Video:    domain.NewVideo(*meta, *upload),
	}, nil
}

// Fetch downloads url and returns the open file for streaming.
func (s *DownloadService) Fetch(ctx context.Context, url string) (res *LocalResult, err error) {
	defer func() { s.metrics.ObserveRequest(outcome(err)) }()

	if url == "" {
		return nil, domain.ErrMissingURL
	}

	meta, local, cleanup, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	f, err := local.Open()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open downloaded file: %w", err)
	}

	return &LocalResult{
		Metadata: *meta,
		Local:    *local,
		File:     f,
		release: func() {
			f.Close()
			cleanup()
		},
	}, nil
}

// fetch runs metadata and download inside a fresh work dir. On success the
// caller must invoke cleanup; on error the work dir is already gone.
func (s *DownloadService) fetch(ctx context.Context, url string) (*domain.VideoMetadata, *domain.LocalFile, func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, nil, fmt.Errorf("wait for download slot: %w", err)
	}
	s.metrics.InFlight(1)
	defer func() {
		s.metrics.InFlight(-1)
		s.sem.Release(1)
	}()

	workDir := filepath.Join(s.cfg.TempPath, uuid.New().String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Warn("failed to remove work dir", "path", workDir, "error", err)
		}
	}

	meta, local, err := s.run(ctx, url, workDir)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return meta, local, cleanup, nil
}

func (s *DownloadService) run(ctx context.Context, url, workDir string) (*domain.VideoMetadata, *domain.LocalFile, error) {
	logger := s.logger.With("url", url)

	s.checkScratchSpace(logger)

	opts := downloader.Options{}
	cookiePath, err := cookies.WriteFile(workDir, s.cfg.Cookies)
	if err != nil {
		return nil, nil, err
	}
	opts.CookiesPath = cookiePath

	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			// The downloader may still succeed without a token.
			logger.Warn("po token unavailable", "error", err)
		} else {
			opts.Token = token
		}
	}

	start := time.Now()
	meta, err := s.downloader.Metadata(ctx, url, opts)
	s.metrics.ObserveStage(stageMetadata, time.Since(start))
	if err != nil {
		logger.Error("metadata lookup failed", "error", err)
		return nil, nil, err
	}
	logger = logger.With("video_id", meta.ID)
	logger.Info("metadata fetched",
		"title", meta.Title,
		"duration", meta.FormattedDuration(),
	)

	start = time.Now()
	path, err := s.downloader.Download(ctx, url, filepath.Join(workDir, mediaFile), opts)
	s.metrics.ObserveStage(stageDownload, time.Since(start))
	if err != nil {
		logger.Error("download failed", "error", err)
		return nil, nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}

	logger.Info("video downloaded",
		"path", path,
		"size", humanize.Bytes(uint64(info.Size())),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return meta, &domain.LocalFile{
		Path:        path,
		Size:        info.Size(),
		ContentType: contentTypeFor(path),
	}, nil
}

// checkScratchSpace publishes free scratch space and warns when it runs low.
func (s *DownloadService) checkScratchSpace(logger *slog.Logger) {
	free := freeDiskSpace(s.cfg.TempPath)
	if free <= 0 {
		return
	}
	s.metrics.ScratchFree(free)
	if free < lowDiskSpace {
		logger.Warn("scratch space low", "path", s.cfg.TempPath, "free", humanize.Bytes(uint64(free)))
		return
	}
	logger.Debug("scratch space available", "free", humanize.Bytes(uint64(free)))
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	default:
		return "video/mp4"
	}
}

// outcome classifies err for the request counter.
func outcome(err error) string {
	var (
		toolErr   *domain.ToolError
		configErr *domain.ConfigError
		uploadErr *domain.UploadError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &toolErr):
		return metrics.OutcomeToolError
	case errors.Is(err, domain.ErrInvalidOutput):
		return metrics.OutcomeInvalidOutput
	case errors.As(err, &configErr):
		return metrics.OutcomeConfigError
	case errors.As(err, &uploadErr):
		return metrics.OutcomeUploadError
	default:
		return metrics.OutcomeError
	}
}
