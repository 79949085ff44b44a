package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runEvents   prometheus.Counter

	liveSubscribers prometheus.Gauge

	scheduleFires *prometheus.CounterVec

	providerRunTotal    *prometheus.CounterVec
	providerRunDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			runsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "runs_total",
					Help: "Total runs by source and terminal status.",
				},
				[]string{"source", "status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "run_duration_seconds",
					Help:    "Run duration in seconds by source.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"source"},
			),
			runEvents: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "run_events_total",
					Help: "Total events appended to the run event log.",
				},
			),
			liveSubscribers: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "live_subscribers",
					Help: "Current live run event subscriber count.",
				},
			),
			scheduleFires: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schedule_fires_total",
					Help: "Total schedule fires by schedule id.",
				},
				[]string{"schedule_id"},
			),
			providerRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_run_total",
					Help: "Total provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_run_duration_seconds",
					Help:    "Provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.runsTotal,
			m.runDuration,
			m.runEvents,
			m.liveSubscribers,
			m.scheduleFires,
			m.providerRunTotal,
			m.providerRunDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordRun(source, status string, duration time.Duration) {
	m := getMetrics()
	m.runsTotal.WithLabelValues(source, status).Inc()
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordRunEvent() {
	m := getMetrics()
	m.runEvents.Inc()
}

func AddLiveSubscribers(delta int) {
	m := getMetrics()
	m.liveSubscribers.Add(float64(delta))
}

func RecordScheduleFire(scheduleID string) {
	m := getMetrics()
	m.scheduleFires.WithLabelValues(scheduleID).Inc()
}

func RecordProviderRun(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerRunTotal.WithLabelValues(provider, status).Inc()
	m.providerRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
