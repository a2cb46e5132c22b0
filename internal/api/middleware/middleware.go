// Package middleware holds the HTTP wrappers shared by every route:
// request IDs, structured request logs, panic recovery, CORS, and the
// Prometheus request counter.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keyfob-io/keyfob/internal/metrics"
)

// Logger emits one slog line per request with method, path, status,
// duration and the request ID assigned upstream.
func Logger(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration", time.Since(start),
				"request_id", w.Header().Get("X-Request-ID"),
			)
		})
	}
}

// Recoverer turns a handler panic into a logged 500 instead of a
// dropped connection.
func Recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and marks responses as
// cross-origin readable. The API carries no browser credentials, so a
// wildcard origin is fine.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID propagates the caller's X-Request-ID, minting one when the
// header is absent, and reflects it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Metrics counts requests into keyfob_api_requests_total, labeled by
// the matched chi route pattern and status code.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		op := chi.RouteContext(r.Context()).RoutePattern()
		if op == "" {
			op = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(op, strconv.Itoa(ww.status)).Inc()
	})
}

// newRequestID mints a timestamp-derived ID. Collisions across
// concurrent requests are harmless; the ID only correlates log lines.
func newRequestID() string {
	return time.Now().Format("20060102150405.000000")
}

// statusRecorder captures the status code a handler writes so the
// logging and metrics wrappers can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
