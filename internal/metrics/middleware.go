package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type ResponseWriterWithStatus struct {
	http.ResponseWriter
	StatusCode int
}

func (w *ResponseWriterWithStatus) WriteHeader(code int) {
	w.StatusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware labels requests by their chi route pattern so path ids do not explode cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrappedWriter := &ResponseWriterWithStatus{ResponseWriter: w, StatusCode: http.StatusOK}

		next.ServeHTTP(wrappedWriter, r)

		duration := time.Since(start).Seconds()

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		method := r.Method
		status := fmt.Sprintf("%d", wrappedWriter.StatusCode)

		HttpRequestsTotal.WithLabelValues(endpoint, status, method).Inc()
		HttpRequestDuration.WithLabelValues(endpoint, method).Observe(duration)

		if wrappedWriter.StatusCode >= 400 && wrappedWriter.StatusCode < 600 {
			HttpErrorsTotal.WithLabelValues(endpoint, status, method).Inc()
		}
	})
}
