package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Turn(OutcomeCompleted, time.Second)
	m.Turn(OutcomeCompleted, 2*time.Second)
	m.Turn(OutcomeFailed, time.Second)
	m.Turn(OutcomeRejected, 0)
	m.Event("text_delta")
	m.Event("text_delta")
	m.Event("tool_start")
	m.Malformed(3)
	m.Malformed(0)
	m.Dispatched()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("text_delta")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Turn(OutcomeFailed, time.Second)
		m.Event("reasoning")
		m.Malformed(1)
		m.Dispatched()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Event("reasoning")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cortex_stream_events_total{type="reasoning"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
