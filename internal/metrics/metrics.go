package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Telegram updates
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialoglab_updates_total",
			Help: "Total number of Telegram updates handled",
		},
		[]string{"kind"},
	)

	// LLM / STT / journal calls
	downstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialoglab_downstream_calls_total",
			Help: "Total number of downstream collaborator calls",
		},
		[]string{"component", "status"},
	)

	downstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialoglab_downstream_duration_seconds",
			Help:    "Downstream collaborator call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// Session lifecycle
	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialoglab_session_events_total",
			Help: "Total number of session lifecycle events",
		},
		[]string{"event"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialoglab_active_sessions",
			Help: "Number of sessions currently active",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			updatesTotal,
			downstreamCallsTotal,
			downstreamDuration,
			sessionEventsTotal,
			activeSessions,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordUpdate counts an inbound update by kind (command, text, voice, callback).
func RecordUpdate(kind string) {
	updatesTotal.WithLabelValues(kind).Inc()
}

// RecordDownstream records a call to the model, STT or journal.
func RecordDownstream(component string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	downstreamCallsTotal.WithLabelValues(component, status).Inc()
	downstreamDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordSessionEvent counts start/end/reset/rating events.
func RecordSessionEvent(event string) {
	sessionEventsTotal.WithLabelValues(event).Inc()
}

// SetActiveSessions updates the active-session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
