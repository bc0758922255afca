// Package requestid tags every request with an id that is echoed in the X-Request-Id header.
package requestid

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

const (
	requestIDTraceKey = "request_id"

	// RequestIDHeader carries the id of a request in both directions.
	RequestIDHeader = "X-Request-Id"
)

// resolveID picks the id of a request: the trace id when the request is traced, else a caller
// supplied ULID, else a fresh ULID.
func resolveID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	if inbound := r.Header.Get(RequestIDHeader); inbound != "" {
		if id, err := ulid.ParseStrict(inbound); err == nil {
			return id.String()
		}
	}
	return ulid.Make().String()
}

// FromContext returns the request id set by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

// Middleware must wrap the logging middleware and sit inside the tracing handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := resolveID(r)
		w.Header().Set(RequestIDHeader, id)

		ctx := r.Context()
		trace.SpanFromContext(ctx).SetAttributes(attribute.String(requestIDTraceKey, id))
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKey{}, id)))
	})
}
