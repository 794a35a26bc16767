package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "SeriesPrep/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reqTotal    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
	reqInFlight *prometheus.GaugeVec
	respSize    *prometheus.HistogramVec

	metricsOnce sync.Once
)

func metricsInit() {
	reqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesprep",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route template and status.",
	}, []string{"route", "method", "status"})
	reqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seriesprep",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status", "class"})
	reqInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seriesprep",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being handled.",
	}, []string{"route", "method"})
	respSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seriesprep",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Size of HTTP response bodies.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"route", "method", "status", "class"})
}

// Metrics records per-route request metrics. The echo route template
// (c.Path) is the route label, so raw URLs with IDs never reach Prometheus.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	metricsOnce.Do(metricsInit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method

			reqInFlight.WithLabelValues(route, method).Inc()
			start := time.Now()

			err := next(c)

			code := c.Response().Status
			status := strconv.Itoa(code)
			class := statusClass(code)
			duration := time.Since(start)
			written := int(c.Response().Size)

			reqTotal.WithLabelValues(route, method, status).Inc()
			reqDuration.WithLabelValues(route, method, status, class).Observe(duration.Seconds())
			respSize.WithLabelValues(route, method, status, class).Observe(float64(written))
			reqInFlight.WithLabelValues(route, method).Dec()

			slow := slowThreshold > 0 && duration >= slowThreshold
			if l != nil && (code >= 500 || slow) {
				fields := []applogger.Field{
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration_ms", duration),
					applogger.Int("bytes", written),
				}
				if code >= 500 {
					l.Error("http request failed", fields...)
				} else {
					l.Warn("http request slow", fields...)
				}
			}

			return err
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code >= 600 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
