// Package logging logs one line per completed HTTP request.
package logging

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/middleware/requestid"
	serverErrors "github.com/topicflow/topicflow/pkg/server/errors"
)

const (
	httpMethodKey      = "http_method"
	httpPathKey        = "http_path"
	httpStatusKey      = "http_status"
	requestIDKey       = "request_id"
	traceIDKey         = "trace_id"
	internalErrorKey   = "internal_error"
	httpReqCompleteKey = "http_req_complete"
	userAgentKey       = "user_agent"
	queryDurationKey   = "query_duration_ms"
)

type ctxKey struct{}

// errorHolder lets a handler hand the error it answered with back to the middleware.
type errorHolder struct {
	err error
}

// SetError records err as the outcome of the request. Handlers call it before writing an
// error response so internal causes reach the log without reaching the caller.
func SetError(r *http.Request, err error) {
	if holder, ok := r.Context().Value(ctxKey{}).(*errorHolder); ok {
		holder.err = err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Middleware logs every request except the health check.
func Middleware(l logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		holder := &errorHolder{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, holder))

		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String(httpMethodKey, r.Method),
			zap.String(httpPathKey, r.URL.Path),
			zap.Int(httpStatusKey, rec.status),
			zap.Int64(queryDurationKey, time.Since(start).Milliseconds()),
		}
		if id, ok := requestid.FromContext(r.Context()); ok {
			fields = append(fields, zap.String(requestIDKey, id))
		}
		if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.HasTraceID() {
			fields = append(fields, zap.String(traceIDKey, spanCtx.TraceID().String()))
		}
		if ua := r.UserAgent(); ua != "" {
			fields = append(fields, zap.String(userAgentKey, ua))
		}

		if holder.err != nil {
			var internalError serverErrors.InternalError
			if errors.As(holder.err, &internalError) {
				fields = append(fields, zap.String(internalErrorKey, internalError.Unwrap().Error()))
				l.Error(holder.err.Error(), fields...)
				return
			}
			fields = append(fields, zap.Error(holder.err))
		}

		if rec.status >= http.StatusInternalServerError {
			l.Error(httpReqCompleteKey, fields...)
			return
		}
		l.Info(httpReqCompleteKey, fields...)
	})
}
