package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	// ErrMissingURL is returned when the request carries no source URL.
	ErrMissingURL = errors.New("url is required")

	// ErrToolFailed is returned when an external tool exits non-zero.
	ErrToolFailed = errors.New("external tool failed")

	// ErrInvalidOutput is returned when tool output cannot be parsed.
	ErrInvalidOutput = errors.New("failed to parse downloader output")

	// ErrFileNotFound is returned when the downloader reports success
	// but no media file was written.
	ErrFileNotFound = errors.New("downloaded file not found")

	// ErrMissingConfig is returned when a required setting is absent.
	ErrMissingConfig = errors.New("missing configuration")

	// ErrUploadRejected is returned when an upload target answers non-2xx.
	ErrUploadRejected = errors.New("upload rejected")
)

// ToolError describes a failed external process invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return e.Tool + " error: " + msg
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolFailed}
	}
	return []error{ErrToolFailed, e.Err}
}

// ConfigError names a required setting that is not set.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Field + " is not set"
}

func (e *ConfigError) Unwrap() error {
	return ErrMissingConfig
}

// UploadError is returned when an upload target rejects a transfer.
type UploadError struct {
	Target     string
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *UploadError) Unwrap() error {
	return ErrUploadRejected
}
