package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("/api/v1/patients", "GET", 200, time.Millisecond)
		m.ObserveJob("chat", "completed", time.Second)
		m.JobDispatched("chat", "queued")
		m.JobRetried("chat")
		m.SetQueueDepth(1, 2)
		m.ChatReply("timeout")
		m.ReconcilerMarked("NO_SHOW", 3)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveHTTP("/api/v1/patients", "GET", 201, 5*time.Millisecond)
	m.ObserveJob("image_analysis", "completed", 2*time.Second)
	m.JobDispatched("image_analysis", "inline")
	m.ReconcilerMarked("COMPLETED", 2)
	m.JobRetried("image_analysis")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `ayupilot_http_requests_total{method="GET",route="/api/v1/patients",status="2xx"} 1`)
	assert.Contains(t, body, `ayupilot_jobs_dispatched_total{kind="image_analysis",mode="inline"} 1`)
	assert.Contains(t, body, `ayupilot_reconciler_appointments_total{status="COMPLETED"} 2`)
	assert.Contains(t, body, `ayupilot_jobs_retried_total{kind="image_analysis"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestQueueDepthGauge(t *testing.T) {
	m := metrics.New()
	m.SetQueueDepth(4, 1)

	n, err := testutil.GatherAndCount(m.Registry(), "ayupilot_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
