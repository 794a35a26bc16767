package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seriesprep",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of preprocessing endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seriesprep",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by preprocessing endpoint",
		},
		[]string{"endpoint"},
	)

	APICacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seriesprep",
			Subsystem: "api",
			Name:      "cache_hits_total",
			Help:      "Response cache hits by endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, APICacheHits)
	})
}
