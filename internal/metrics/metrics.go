// Package metrics holds the Prometheus instruments of the snapshot service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/swiftserve/apierr"
)

// OutcomeOK labels requests that returned without error.
const OutcomeOK = "ok"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RowsGathered    prometheus.Counter
	BytesRead       prometheus.Counter
	CacheLookups    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftserve_requests_total",
		Help: "Total service requests by operation and outcome",
	}, []string{"op", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swiftserve_request_duration_seconds",
		Help:    "Service request latency by operation",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"op"})

	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swiftserve_rows_gathered_total",
		Help: "Total field rows returned by unmasked and masked reads",
	})

	bytesRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swiftserve_bytes_read_total",
		Help: "Total array payload bytes returned by reads",
	})

	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swiftserve_metadata_cache_lookups_total",
		Help: "Metadata cache lookups by result",
	}, []string{"result"})

	reg.MustRegister(requests, duration, rows, bytesRead, cache)

	return &Metrics{
		Requests:        requests,
		RequestDuration: duration,
		RowsGathered:    rows,
		BytesRead:       bytesRead,
		CacheLookups:    cache,
	}
}

// Outcome returns the outcome label for err: OutcomeOK for nil, otherwise
// the error kind.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return apierr.KindOf(err).String()
}

// ObserveRequest counts one finished request of op that started at start.
// It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveRequest(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, Outcome(err)).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveRead records the rows and payload bytes of a returned array.
func (m *Metrics) ObserveRead(rows, bytes int) {
	if m == nil {
		return
	}
	m.RowsGathered.Add(float64(rows))
	m.BytesRead.Add(float64(bytes))
}

// ObserveCache counts a metadata cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
