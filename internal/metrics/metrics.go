package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so callers
// that do not care about metrics can pass nil.
type Metrics struct {
	reg *prometheus.Registry

	jobsSubmitted   prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	rateLimited     prometheus.Counter
	adapterDuration *prometheus.HistogramVec
	venuesScraped   *prometheus.CounterVec
	jobsRunning     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "slotscout",
		Name:      "jobs_submitted_total",
		Help:      "Scrape jobs accepted",
	})
	m.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotscout",
		Name:      "jobs_finished_total",
		Help:      "Scrape jobs that reached a terminal state",
	}, []string{"outcome"})
	m.rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "slotscout",
		Name:      "rate_limited_total",
		Help:      "Submissions rejected by the cooldown",
	})
	m.adapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "slotscout",
		Name:      "adapter_duration_seconds",
		Help:      "Time spent in one platform adapter run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"platform", "outcome"})
	m.venuesScraped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotscout",
		Name:      "venues_scraped_total",
		Help:      "Venues returned by adapters",
	}, []string{"platform"})
	m.jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "slotscout",
		Name:      "jobs_running",
		Help:      "Scrape jobs currently in flight",
	})

	m.reg.MustRegister(
		m.jobsSubmitted,
		m.jobsFinished,
		m.rateLimited,
		m.adapterDuration,
		m.venuesScraped,
		m.jobsRunning,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
	m.jobsRunning.Inc()
}

func (m *Metrics) JobFinished(success bool) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	m.jobsFinished.WithLabelValues(outcome(success)).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) AdapterRun(platform string, d time.Duration, venues int, success bool) {
	if m == nil {
		return
	}
	m.adapterDuration.WithLabelValues(platform, outcome(success)).Observe(d.Seconds())
	if success {
		m.venuesScraped.WithLabelValues(platform).Add(float64(venues))
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
