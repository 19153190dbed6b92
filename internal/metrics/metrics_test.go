package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.BillCreated()
	m.BillCreated()
	m.SequenceFailed()
	m.ObserveAnalytics("memory", 3*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/api/v1/bills", http.StatusCreated)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.billsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sequenceFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodPost, "/api/v1/bills", "201")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pos_bills_created_total 2"))
	assert.True(t, strings.Contains(rec.Body.String(), "pos_analytics_duration_seconds_count{strategy=\"memory\"} 1"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.BillCreated()
	m.SequenceFailed()
	m.ObserveAnalytics("native", time.Second)
	m.ObserveRequest(http.MethodGet, "", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
