package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/vidrelay/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDownloadService is a test implementation of DownloadService.
type mockDownloadService struct {
	streaming bool
	result    *service.Result
	local     *service.LocalResult
	err       error

	calledURL string
	calls     int
}

func (m *mockDownloadService) Streaming() bool { return m.streaming }

func (m *mockDownloadService) Process(ctx context.Context, url string) (*service.Result, error) {
	m.calls++
	m.calledURL = url
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockDownloadService) Fetch(ctx context.Context, url string) (*service.LocalResult, error) {
	m.calls++
	m.calledURL = url
	if m.err != nil {
		return nil, m.err
	}
	return m.local, nil
}
