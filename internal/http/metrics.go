package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type metrics struct {
	once           sync.Once
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	initialized    bool
}

func (m *metrics) init() {
	m.once.Do(func() {
		m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permitflow",
			Subsystem: "shell",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "path", "status"})

		m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "permitflow",
			Subsystem: "shell",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "path", "status"})

		m.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permitflow",
			Subsystem: "shell",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"path"})

		collectors := []prometheus.Collector{m.requestTotal, m.requestLatency, m.rateLimitHits}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == m.requestTotal {
							m.requestTotal = v
						} else if collector == m.rateLimitHits {
							m.rateLimitHits = v
						}
					case *prometheus.HistogramVec:
						m.requestLatency = v
					}
				}
			}
		}
		m.initialized = true
	})
}

func (m *metrics) record(method, path string, status int, duration time.Duration) {
	if !m.initialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *metrics) recordRateLimitHit(path string) {
	if !m.initialized {
		return
	}
	m.rateLimitHits.With(prometheus.Labels{"path": path}).Inc()
}

func (m *metrics) middleware() func(http.Handler) http.Handler {
	m.init()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.record(r.Method, r.URL.Path, recorder.status, time.Since(start))
		})
	}
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
