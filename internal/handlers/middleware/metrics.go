package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/snapcal/snapcal/internal/metrics"
)

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// MetricsMiddleware counts requests and measures their latency
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(mw, r)

			metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(mw.status)).Inc()
			metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
