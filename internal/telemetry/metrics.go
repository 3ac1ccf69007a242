// Package telemetry exposes Prometheus counters for agent turns and stream
// events, served on an optional /metrics endpoint.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	turns      *prometheus.CounterVec
	events     *prometheus.CounterVec
	malformed  prometheus.Counter
	dispatched prometheus.Counter
	duration   prometheus.Histogram
}

// New builds and registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "agent_turns_total",
			Help:      "Agent turns by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "stream_events_total",
			Help:      "Stream events applied to the conversation, by type.",
		}, []string{"type"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "stream_malformed_frames_total",
			Help:      "Data frames whose payload failed to decode.",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cortex",
			Name:      "deferred_prompts_dispatched_total",
			Help:      "Deferred prompts submitted by the dispatcher.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cortex",
			Name:      "agent_turn_duration_seconds",
			Help:      "Wall time from request to end of stream.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	reg.MustRegister(m.turns, m.events, m.malformed, m.dispatched, m.duration)
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_goroutines",
			Help: "Number of active goroutines.",
		},
		func() float64 { return float64(runtime.NumGoroutine()) },
	))
	return m
}

// Turn records a finished (or rejected) turn.
func (m *Metrics) Turn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		m.duration.Observe(d.Seconds())
	}
}

// Event records one applied stream event.
func (m *Metrics) Event(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Malformed adds n skipped or rejected frames.
func (m *Metrics) Malformed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.malformed.Add(float64(n))
}

// Dispatched records one deferred prompt submission.
func (m *Metrics) Dispatched() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
