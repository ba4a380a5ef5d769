package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidrelay/internal/api/handler"
	"github.com/iconidentify/vidrelay/internal/metrics"
)

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	return NewRouter(
		handler.NewDownloadHandler(nil, logger),
		handler.NewHealthHandler(t.TempDir()),
		m.Handler(),
		RouterConfig{APIKey: apiKey, CORSOrigins: []string{"*"}, Logger: logger},
	)
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, "secret")

	for _, path := range []string{"/health", "/./health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body), path)
		require.Equal(t, "healthy", body["status"], path)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_DownloadRequiresKey(t *testing.T) {
	r := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{"url":"x"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_DownloadBadRequest(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
