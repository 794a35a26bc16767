package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seriesprep"

// Recorder is the Prometheus-backed implementation of the domain Metrics
// port. All vectors register on the default registry at construction.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastValue    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	rowsOut      *prometheus.CounterVec
}

// New registers the metric vectors and returns the recorder. Construct it
// once per process; duplicate registration panics inside promauto.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Observations delivered to a backend.",
		}, []string{"backend", "series"}),
		errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind.",
		}, []string{"type"}),
		lastValue: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Most recent level observed per series.",
		}, []string{"series"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of pipeline and preprocessing operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rowsOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_transformed_total",
			Help:      "Rows produced by preprocessing operations.",
		}, []string{"operation"}),
	}
}

// RecordMessageSent counts one observation delivered to a backend.
func (r *Recorder) RecordMessageSent(backend, series string) {
	r.messagesSent.WithLabelValues(backend, series).Inc()
}

// RecordError counts one error of the given kind.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastValue tracks the latest level seen for a series.
func (r *Recorder) RecordLastValue(series string, value float64) {
	r.lastValue.WithLabelValues(series).Set(value)
}

// RecordLatency observes one operation duration in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRowsTransformed counts output rows of a preprocessing operation.
func (r *Recorder) RecordRowsTransformed(op string, rows int) {
	r.rowsOut.WithLabelValues(op).Add(float64(rows))
}
