// Package metrics holds the booking service's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sessionbook"

// Booking outcomes.
const (
	OutcomeCreated     = "created"
	OutcomeReplayed    = "replayed"
	OutcomeConflict    = "conflict"
	OutcomeNotASession = "not_a_session"
	OutcomePastDate    = "past_date"
	OutcomeRescheduled = "rescheduled"
)

type Metrics struct {
	bookings        *prometheus.CounterVec
	integrityFaults *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	outboxPublished prometheus.Counter
	outboxErrors    prometheus.Counter
	requestLatency  *prometheus.HistogramVec
	rescheduleBuild prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking create and reschedule attempts by outcome",
		}, []string{"outcome"}),
		integrityFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "integrity_faults_total",
			Help:      "Sessions claimed by more than one active booking",
		}, []string{"provider_id"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule_cache",
			Name:      "lookups_total",
			Help:      "Schedule cache lookups by result",
		}, []string{"result"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events relayed to Kafka",
		}),
		outboxErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_errors_total",
			Help:      "Failed outbox relay batches",
		}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rescheduleBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reschedule",
			Name:      "build_duration_seconds",
			Help:      "Time to build a reschedule window",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.integrityFaults, m.cacheLookups, m.outboxPublished, m.outboxErrors, m.requestLatency, m.rescheduleBuild)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveIntegrityFault(providerID string) {
	if m == nil {
		return
	}
	m.integrityFaults.WithLabelValues(providerID).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutbox(published int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.outboxErrors.Inc()
	}
	if published > 0 {
		m.outboxPublished.Add(float64(published))
	}
}

func (m *Metrics) ObserveRescheduleBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.rescheduleBuild.Observe(d.Seconds())
}

// Middleware records request latency labelled by the matched chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requestLatency.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
