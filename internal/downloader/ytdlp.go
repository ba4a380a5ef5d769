package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

const (
	toolName  = "yt-dlp"
	waitDelay = 10 * time.Second
)

// YtDlp implements Downloader by running the yt-dlp binary.
type YtDlp struct {
	cfg    config.YtDlpConfig
	logger *slog.Logger
}

// NewYtDlp creates a yt-dlp backed downloader.
func NewYtDlp(cfg config.YtDlpConfig, logger *slog.Logger) *YtDlp {
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlp{
		cfg:    cfg,
		logger: logger,
	}
}

// Metadata runs yt-dlp in metadata-only mode.
func (d *YtDlp) Metadata(ctx context.Context, url string, opts Options) (*domain.VideoMetadata, error) {
	args := d.baseArgs(opts)
	if d.cfg.MetadataMode == config.MetadataModePrint {
		args = append(args,
			"--skip-download",
			"--print", "id",
			"--print", "title",
			"--print", "duration",
			"--print", "thumbnail",
		)
	} else {
		args = append(args, "--dump-json", "--no-download")
	}
	args = append(args, url)

	stdout, err := d.run(ctx, args)
	if err != nil {
		return nil, err
	}

	if d.cfg.MetadataMode == config.MetadataModePrint {
		return parsePrintedMetadata(stdout)
	}
	return parseJSONMetadata(stdout)
}

// Download runs yt-dlp to fetch and merge the media into outputPath.
func (d *YtDlp) Download(ctx context.Context, url, outputPath string, opts Options) (string, error) {
	args := d.baseArgs(opts)
	if d.cfg.Format != "" {
		args = append(args, "-f", d.cfg.Format)
	}
	if d.cfg.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", d.cfg.MergeOutputFormat)
	}
	args = append(args, "-o", outputPath, url)

	if _, err := d.run(ctx, args); err != nil {
		return "", err
	}

	return locateOutput(outputPath)
}

// baseArgs returns the options shared by every invocation.
func (d *YtDlp) baseArgs(opts Options) []string {
	args := []string{"--no-warnings", "--no-playlist"}
	if d.cfg.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}
	if d.cfg.UserAgent != "" {
		args = append(args, "--user-agent", d.cfg.UserAgent)
	}
	if ea := ExtractorArgs(d.cfg.ExtractorArgs, opts.Token); ea != "" {
		args = append(args, "--extractor-args", ea)
	}
	if opts.CookiesPath != "" {
		args = append(args, "--cookies", opts.CookiesPath)
	}
	if d.cfg.Proxy != "" {
		args = append(args, "--proxy", d.cfg.Proxy)
	}
	return args
}

// ExtractorArgs merges a proof-of-origin token into a YouTube extractor
// argument string such as "youtube:player_client=android,web".
func ExtractorArgs(base string, token *domain.PoToken) string {
	if token == nil || token.Token == "" {
		return base
	}

	client := token.Client
	if client == "" {
		client = "web"
	}
	params := "po_token=" + client + ".gvs+" + token.Token
	if token.VisitorData != "" {
		params += ";visitor_data=" + token.VisitorData
	}

	switch {
	case base == "":
		return "youtube:" + params
	case strings.HasSuffix(base, ":"):
		return base + params
	default:
		return base + ";" + params
	}
}

func (d *YtDlp) run(ctx context.Context, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.cfg.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children (ffmpeg, browsers) may keep the pipes open after a kill.
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	d.logger.Debug("yt-dlp finished",
		"args", len(args),
		"duration", time.Since(start),
		"error", err,
	)
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", toolName, ctxErr)
	}

	toolErr := &domain.ToolError{
		Tool:   toolName,
		Stderr: stderr.String(),
		Err:    err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	return nil, toolErr
}

// rawMetadata mirrors the subset of yt-dlp's info JSON we use.
type rawMetadata struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"`
	Thumbnail  string   `json:"thumbnail"`
	WebpageURL string   `json:"webpage_url"`
	Uploader   string   `json:"uploader"`
	Ext        string   `json:"ext"`
}

func parseJSONMetadata(out []byte) (*domain.VideoMetadata, error) {
	var raw rawMetadata
	if err := json.NewDecoder(bytes.NewReader(out)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidOutput, err)
	}

	meta := &domain.VideoMetadata{
		ID:         raw.ID,
		Title:      raw.Title,
		Thumbnail:  raw.Thumbnail,
		WebpageURL: raw.WebpageURL,
		Uploader:   raw.Uploader,
		Ext:        raw.Ext,
	}
	if raw.Duration != nil {
		meta.Duration = *raw.Duration
	}
	applyDefaults(meta)
	return meta, nil
}

// parsePrintedMetadata reads the id, title, duration and thumbnail lines
// printed by --print, in that order.
func parsePrintedMetadata(out []byte) (*domain.VideoMetadata, error) {
	lines := strings.Split(strings.TrimSuffix(strings.TrimSuffix(string(out), "\n"), "\r"), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: expected 4 lines, got %d", domain.ErrInvalidOutput, len(lines))
	}
	// Values pass through as printed; only line endings are stripped.
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	meta := &domain.VideoMetadata{
		ID:        naToEmpty(lines[0]),
		Title:     naToEmpty(lines[1]),
		Thumbnail: naToEmpty(lines[3]),
	}
	if dur := strings.TrimSpace(naToEmpty(lines[2])); dur != "" {
		v, err := strconv.ParseFloat(dur, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: duration %q", domain.ErrInvalidOutput, dur)
		}
		meta.Duration = v
	}
	applyDefaults(meta)
	return meta, nil
}

func applyDefaults(meta *domain.VideoMetadata) {
	if meta.ID == "" {
		meta.ID = "unknown"
	}
	if meta.Title == "" {
		meta.Title = "video"
	}
}

// naToEmpty maps yt-dlp's "NA" placeholder to an empty string.
func naToEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

// locateOutput returns outputPath if it exists, otherwise the single
// sibling sharing its stem (the merger may pick another container).
func locateOutput(outputPath string) (string, error) {
	if _, err := os.Stat(outputPath); err == nil {
		return outputPath, nil
	}

	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	prefix := strings.TrimSuffix(base, filepath.Ext(base)) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		switch filepath.Ext(name) {
		case ".part", ".ytdl", ".temp":
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrFileNotFound, outputPath)
}
