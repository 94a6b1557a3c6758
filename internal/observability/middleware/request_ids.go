package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	maxInboundIDLen = 128
)

// Correlation identifies one request (RequestID) within a possibly longer
// client flow (TraceID).
type Correlation struct {
	RequestID string
	TraceID   string
}

type correlationKey struct{}

func inboundOrNew(v string) string {
	if v == "" || len(v) > maxInboundIDLen {
		return uuid.NewString()
	}
	return v
}

// WithRequestAndTrace reuses inbound correlation headers, generating ids for
// missing or oversized ones, and echoes both on the response.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Correlation{
			RequestID: inboundOrNew(r.Header.Get(HeaderRequestID)),
			TraceID:   inboundOrNew(r.Header.Get(HeaderTraceID)),
		}
		w.Header().Set(HeaderRequestID, c.RequestID)
		w.Header().Set(HeaderTraceID, c.TraceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, c)))
	})
}

func CorrelationFrom(ctx context.Context) Correlation {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

func RequestIDFromContext(ctx context.Context) string { return CorrelationFrom(ctx).RequestID }

func TraceIDFromContext(ctx context.Context) string { return CorrelationFrom(ctx).TraceID }

// LogAttrs returns the correlation ids as slog key/value pairs.
func LogAttrs(ctx context.Context) []any {
	c := CorrelationFrom(ctx)
	return []any{"request_id", c.RequestID, "trace_id", c.TraceID}
}
