package downloader

import (
	"context"

	"github.com/iconidentify/vidrelay/internal/domain"
)

// Downloader fetches video metadata and media through an external tool.
type Downloader interface {
	// Metadata returns what the tool reports about url without downloading media.
	Metadata(ctx context.Context, url string, opts Options) (*domain.VideoMetadata, error)

	// Download writes the media for url to outputPath and returns the path
	// of the file actually produced.
	Download(ctx context.Context, url, outputPath string, opts Options) (string, error)
}

// Options carries per-request inputs for a downloader invocation.
type Options struct {
	// CookiesPath points at a Netscape cookie file. Empty means no cookies.
	CookiesPath string

	// Token, when set, is forwarded to the YouTube extractor.
	Token *domain.PoToken
}
