package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithoutContext(t *testing.T) {
	var tests = []struct {
		name  string
		log   func(l *ZapLogger, msg string)
		level zapcore.Level
	}{
		{name: "info", log: func(l *ZapLogger, msg string) { l.Info(msg) }, level: zapcore.InfoLevel},
		{name: "debug", log: func(l *ZapLogger, msg string) { l.Debug(msg) }, level: zapcore.DebugLevel},
		{name: "warn", log: func(l *ZapLogger, msg string) { l.Warn(msg) }, level: zapcore.WarnLevel},
		{name: "error", log: func(l *ZapLogger, msg string) { l.Error(msg) }, level: zapcore.ErrorLevel},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			test.log(&ZapLogger{zap.New(observerLogger)}, "ABC")

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, "ABC", entry.Message)
			require.Empty(t, entry.ContextMap())
			require.Equal(t, test.level, entry.Level)
		})
	}
}

func TestWithContext(t *testing.T) {
	t.Run("no_span", func(t *testing.T) {
		observerLogger, logs := observer.New(zap.DebugLevel)
		dut := ZapLogger{zap.New(observerLogger)}

		dut.WarnWithContext(context.Background(), "ABC")

		require.Equal(t, 1, logs.Len())
		require.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		require.Empty(t, logs.All()[0].ContextMap())
	})

	t.Run("span_adds_trace_id", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		observerLogger, logs := observer.New(zap.DebugLevel)
		dut := ZapLogger{zap.New(observerLogger)}

		dut.InfoWithContext(ctx, "ABC", zap.String("tenant", "t1"))

		require.Equal(t, 1, logs.Len())
		require.Equal(t, map[string]interface{}{
			"tenant":   "t1",
			"trace_id": span.SpanContext().TraceID().String(),
		}, logs.All()[0].ContextMap())
	})
}

func TestWithTenant(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	dut := ZapLogger{zap.New(observerLogger)}

	ctx := WithTenant(context.Background(), "acme")
	dut.ErrorWithContext(ctx, "ABC")
	dut.ErrorWithContext(WithTenant(ctx, ""), "DEF")

	require.Equal(t, 2, logs.Len())
	require.Equal(t, map[string]interface{}{"tenant_id": "acme"}, logs.All()[0].ContextMap())
	require.Empty(t, logs.All()[1].ContextMap())
}

func TestWithFields(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	logger := &ZapLogger{zap.New(observerLogger)}

	logger.With(zap.String("component", "engine"))
	logger.Info("ABC")

	require.Equal(t, map[string]interface{}{"component": "engine"}, logs.All()[0].ContextMap())
}

func TestNewLogger(t *testing.T) {
	t.Run("none_is_noop", func(t *testing.T) {
		l, err := NewLogger("json", "none", "Unix")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("json", "loud", "Unix")
		require.Error(t, err)
	})

	t.Run("unknown_format", func(t *testing.T) {
		_, err := NewLogger("xml", "info", "Unix")
		require.Error(t, err)
	})

	t.Run("text", func(t *testing.T) {
		l, err := NewLogger("text", "debug", "Unix")
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})
}
