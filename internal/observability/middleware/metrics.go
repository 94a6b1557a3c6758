package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"dmcore/internal/observability/metrics"

	"github.com/go-chi/chi/v5"
)

const slowRequest = time.Second

// recorder captures the response status for metrics. Hijack and Flush are
// forwarded so the event stream upgrade still works beneath it.
type recorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	if rw.status == 0 {
		rw.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (rw *recorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithMetrics records request counts and latency labelled by chi route
// pattern, so user and conversation ids never become label values.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metrics", "/healthz":
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &recorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}

		elapsed := time.Since(start)
		pattern := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())

		level := slog.LevelDebug
		if elapsed >= slowRequest && rw.status != http.StatusSwitchingProtocols {
			level = slog.LevelWarn
		}
		attrs := append(LogAttrs(r.Context()),
			"method", r.Method,
			"route", pattern,
			"status", rw.status,
			"bytes", rw.written,
			"duration_ms", elapsed.Milliseconds(),
		)
		slog.Log(r.Context(), level, "request served", attrs...)
	})
}

// routePattern must run after the router has matched, i.e. once next returns.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
