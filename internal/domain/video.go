package domain

import (
	"fmt"
	"os"
)

// VideoMetadata is what the downloader reports about a source video.
// Values are passed through as reported.
type VideoMetadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url,omitempty"`
	Uploader   string  `json:"uploader,omitempty"`
	Ext        string  `json:"ext,omitempty"`
}

// FormattedDuration returns the duration as "Xm Ys".
func (m VideoMetadata) FormattedDuration() string {
	return FormatDuration(m.Duration)
}

// UploadResult is returned by an upload target.
type UploadResult struct {
	URL  string
	Size int64
}

// LocalFile is a downloaded media file owned by a single request.
type LocalFile struct {
	Path        string
	Size        int64
	ContentType string
}

// Open opens the file for reading.
func (f LocalFile) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Video is the payload returned to the caller after a successful upload.
type Video struct {
	URL               string  `json:"url"`
	Title             string  `json:"title"`
	Duration          float64 `json:"duration"`
	DurationFormatted string  `json:"durationFormatted"`
	Thumbnail         string  `json:"thumbnail"`
	VideoID           string  `json:"videoId"`
	Size              int64   `json:"size,omitempty"`
}

// NewVideo combines metadata and an upload result into a response payload.
func NewVideo(meta VideoMetadata, upload UploadResult) Video {
	return Video{
		URL:               upload.URL,
		Title:             meta.Title,
		Duration:          meta.Duration,
		DurationFormatted: meta.FormattedDuration(),
		Thumbnail:         meta.Thumbnail,
		VideoID:           meta.ID,
		Size:              upload.Size,
	}
}

// FormatDuration renders whole minutes and remaining whole seconds,
// e.g. 125 -> "2m 5s". Negative values render as "0m 0s".
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// PoToken is a proof-of-origin token pair used to pass bot checks.
type PoToken struct {
	Client      string
	VisitorData string
	Token       string
}
