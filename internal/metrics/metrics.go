package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "prompt_builder"

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	optimizeStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimize_stages_total",
			Help:      "Number of transcode stages applied by the progressive optimizer",
		},
		[]string{"usage"},
	)

	optimizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimize_duration_seconds",
			Help:      "Progressive optimization duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"usage"},
	)

	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Provider generation duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 240},
		},
		[]string{"model"},
	)

	oomRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oom_retries_total",
			Help:      "Generation attempts retried after a CUDA out-of-memory error",
		},
		[]string{"model"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cache_lookups_total",
			Help:      "Generation cache lookups by result",
		},
		[]string{"result"},
	)
)

func HttpRequestsTotal(method, path, code string) {
	httpRequestsTotal.With(prometheus.Labels{
		"method": method,
		"path":   path,
		"code":   code,
	}).Inc()
}

func HttpRequestDuration(method, path string, duration time.Duration) {
	httpRequestDuration.With(prometheus.Labels{
		"method": method,
		"path":   path,
	}).Observe(duration.Seconds())
}

func OptimizeStages(usage string, stages int) {
	optimizeStagesTotal.WithLabelValues(usage).Add(float64(stages))
}

func OptimizeDuration(usage string, duration time.Duration) {
	optimizeDuration.WithLabelValues(usage).Observe(duration.Seconds())
}

func GenerationsTotal(model, outcome string) {
	generationsTotal.WithLabelValues(model, outcome).Inc()
}

func GenerationDuration(model string, duration time.Duration) {
	generationDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func OOMRetry(model string) {
	oomRetriesTotal.WithLabelValues(model).Inc()
}

func CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HttpRequestsTotal(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
		HttpRequestDuration(c.Request.Method, path, time.Since(start))
	}
}
