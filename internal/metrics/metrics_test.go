package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.JobSubmitted()
	m.JobSubmitted()
	m.JobFinished(true)
	m.RateLimited()
	m.AdapterRun("ayo", 3*time.Second, 4, true)
	m.AdapterRun("gelora", time.Second, 9, false)

	require.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	require.Equal(t, 4.0, testutil.ToFloat64(m.venuesScraped.WithLabelValues("ayo")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.venuesScraped.WithLabelValues("gelora")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.JobSubmitted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "slotscout_jobs_submitted_total 1")
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.JobSubmitted()
		m.JobFinished(false)
		m.RateLimited()
		m.AdapterRun("ayo", time.Second, 1, true)
	})
	require.Nil(t, m.Registry())
}
