// metrics.go — Prometheus HTTP метрики движка.
// Регистрирует метрики: bc_http_requests_total, bc_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bc_http_requests_total",
			Help: "Общее количество HTTP-запросов к движку",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bc_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к движку в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/documents/a1b2c3d4-... → /api/v1/documents/{id}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/documents",
		"/api/v1/access-checks",
		"/api/v1/lifecycle/runs",
		"/api/v1/audit":
		return path
	}

	const docsPrefix = "/api/v1/documents/"
	if strings.HasPrefix(path, docsPrefix) && len(path) > len(docsPrefix) {
		suffix := ""
		// Суффиксы после UUID (36 символов)
		if len(path) > len(docsPrefix)+36 {
			suffix = path[len(docsPrefix)+36:]
		}
		switch suffix {
		case "/content":
			return "/api/v1/documents/{id}/content"
		case "/permissions":
			return "/api/v1/documents/{id}/permissions"
		case "/access":
			return "/api/v1/documents/{id}/access"
		default:
			return "/api/v1/documents/{id}"
		}
	}

	const runsPrefix = "/api/v1/lifecycle/runs/"
	if strings.HasPrefix(path, runsPrefix) && len(path) > len(runsPrefix) {
		return "/api/v1/lifecycle/runs/{id}"
	}

	return path
}
