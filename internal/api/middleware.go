package api

import (
	"net/http"
	"strconv"
	"time"

	"investment-tracker/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// unmatchedRoute labels requests no route matched, keeping raw paths out of metric labels
const unmatchedRoute = "unmatched"

// statusRecorder remembers the status and body size a handler wrote
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// routeOf returns the matched chi pattern, e.g. /api/positions/{id}/close
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

// MetricsMiddleware records request count, latency and response size per route
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		observability.GetMetrics().RecordHTTPRequest(
			r.Method, routeOf(r), strconv.Itoa(rec.code()), time.Since(start), rec.bytes)
	})
}

// AccessLog hands the chi request id to downstream loggers and writes one debug line per request
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = r.WithContext(observability.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context())))
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		observability.WithContext(r.Context()).Debug("request",
			"method", r.Method,
			"route", routeOf(r),
			"status", rec.code(),
			"bytes", rec.bytes,
			"duration", time.Since(start))
	})
}

// CORSMiddleware allows the desktop frontend and configured origins to call the API
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
