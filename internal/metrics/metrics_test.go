package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(OutcomeToolError)
	m.InFlight(1)
	m.InFlight(1)
	m.InFlight(-1)

	require.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues(OutcomeSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues(OutcomeToolError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))

	m.ObserveStage("metadata", 2*time.Second)
	m.ObserveUpload("blob", 5<<20)
	require.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
	require.Equal(t, 1, testutil.CollectAndCount(m.uploadedBytes))

	m.ScratchFree(3 << 30)
	require.Equal(t, float64(3<<30), testutil.ToFloat64(m.scratchFree))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(OutcomeSuccess)
	m.ObserveStage("download", time.Second)
	m.ObserveUpload("s3", 1)
	m.InFlight(1)
	m.ScratchFree(1)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest(OutcomeUploadError)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	require.Contains(t, string(body), `vidrelay_requests_total{outcome="upload_error"} 1`)
}
