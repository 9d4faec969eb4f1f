package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ---- Party protocol ----
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "messages_received_total",
			Help:      "Party messages accepted for processing, by type.",
		},
		[]string{"type"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "messages_dropped_total",
			Help:      "Inbound party messages dropped, by reason (self, decode, protocol).",
		},
		[]string{"reason"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "messages_sent_total",
			Help:      "Party messages handed to the transport, by type.",
		},
		[]string{"type"},
	)

	SendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "send_errors_total",
			Help:      "Party messages the transport refused.",
		},
	)

	PartySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lanparty",
			Name:      "party_size",
			Help:      "Current number of party participants as seen by this peer.",
		},
	)

	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "events_total",
			Help:      "Party events dispatched to listeners, by kind.",
		},
		[]string{"event"},
	)

	// ---- HTTP control surface ----
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lanparty",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lanparty",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lanparty",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "lanparty",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesReceived, MessagesDropped, MessagesSent, SendErrors, PartySize, Events,
		RequestsTotal, RequestDuration, InFlight, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	r.Get("/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)).ServeHTTP)
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
