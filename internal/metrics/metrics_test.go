package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(WithRegistry(reg))

	rec.ObserveOracle(OutcomeOK, 300*time.Millisecond)
	rec.ObserveOracle("timeout", 15*time.Second)
	rec.ObserveOracle(OutcomeOK, time.Second)
	rec.ObserveScan(ScanCompleted, time.Minute)
	rec.ObserveCell("excellent")
	rec.ObserveCell("excellent")
	rec.ObserveCache(CacheHit)
	rec.ObserveHTTP("POST", "/v1/scans", 201)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.oracleRequests.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.oracleRequests.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.scans.WithLabelValues(ScanCompleted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.cells.WithLabelValues("excellent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheRequests.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.httpRequests.WithLabelValues("POST", "/v1/scans", "201")))

	n, err := testutil.GatherAndCount(reg, "rankgrid_oracle_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.ObserveOracle(OutcomeOK, time.Second)
		rec.ObserveScan(ScanCancelled, time.Second)
		rec.ObserveCell("poor")
		rec.ObserveCache(CacheMiss)
		rec.ObserveHTTP("GET", "/v1/health", 200)
	})
	assert.Nil(t, rec.Registry())
	assert.NotNil(t, rec.Handler())
}

func TestRecorder_Handler(t *testing.T) {
	rec := New(WithNamespace("test"))
	rec.ObserveScan(ScanFailed, 2*time.Second)

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_scans_total{status="failed"} 1`)
}
