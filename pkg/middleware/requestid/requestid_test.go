package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestRequestIDWithoutTracing(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = FromContext(r.Context())
		require.True(t, ok)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	header := rec.Header().Get(RequestIDHeader)
	require.Equal(t, seen, header)
	_, err := ulid.Parse(header)
	require.NoError(t, err)
}

func TestRequestIDIsTraceID(t *testing.T) {
	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(t.Context(), "request")
	defer span.End()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
	Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	require.Equal(t, span.SpanContext().TraceID().String(), rec.Header().Get(RequestIDHeader))
}

func TestInboundRequestID(t *testing.T) {
	inbound := ulid.Make().String()

	var tests = []struct {
		name   string
		header string
		reused bool
	}{
		{name: "valid_ulid_is_kept", header: inbound, reused: true},
		{name: "garbage_is_replaced", header: "not-an-id", reused: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/topics/orders/data", nil)
			req.Header.Set(RequestIDHeader, test.header)
			rec := httptest.NewRecorder()
			Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			require.Equal(t, test.reused, got == test.header)
			_, err := ulid.Parse(got)
			require.NoError(t, err)
		})
	}
}
