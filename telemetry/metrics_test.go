package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest(http.MethodPost, "/api/visitors", http.StatusOK, 10*time.Millisecond)
	m.PrimaryFailure("view")
	m.Reconciled("view")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	body, err := io.ReadAll(rec.Body)
	assert.NilError(t, err)
	text := string(body)
	assert.Assert(t, strings.Contains(text, `writerly_http_requests_total{code="200",method="POST",route="/api/visitors"} 1`))
	assert.Assert(t, strings.Contains(text, `writerly_primary_write_failures_total{kind="view"} 1`))
	assert.Assert(t, strings.Contains(text, `writerly_outbox_reconciled_total{kind="view"} 1`))
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.PrimaryFailure("view")
	m.Dropped("comment")
	m.RateLimited()
}
