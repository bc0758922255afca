// Package monitor delivers the monitor logs of pipeline executions to sinks.
//
//go:generate mockgen -source monitor.go -destination ../../internal/mocks/mock_monitor.go -package mocks Sink
package monitor

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
)

// Sink accepts monitor logs. Accept never fails the caller; a sink that cannot deliver a log
// reports the problem itself.
type Sink interface {
	Accept(ctx context.Context, log *model.MonitorLog)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, log *model.MonitorLog)

func (f SinkFunc) Accept(ctx context.Context, log *model.MonitorLog) { f(ctx, log) }

// Discard drops every log.
var Discard Sink = SinkFunc(func(context.Context, *model.MonitorLog) {})

func fields(log *model.MonitorLog) []zap.Field {
	fs := []zap.Field{
		zap.String("tenant_id", log.TenantID),
		zap.String("trace_id", log.TraceID),
		zap.Int("round", log.Round),
		zap.String("pipeline_id", log.PipelineID),
		zap.String("topic_id", log.TopicID),
		zap.String("level", log.Level()),
		zap.String("status", string(log.Status)),
		zap.Int64("spent_in_mills", log.SpentInMills),
	}
	if log.DataID != "" {
		fs = append(fs, zap.String("data_id", log.DataID))
	}
	if log.StageID != "" {
		fs = append(fs, zap.String("stage_id", log.StageID))
	}
	if log.UnitID != "" {
		fs = append(fs, zap.String("unit_id", log.UnitID))
	}
	if log.ActionID != "" {
		fs = append(fs, zap.String("action_id", log.ActionID))
	}
	if log.Error != "" {
		fs = append(fs, zap.String("error", log.Error))
	}
	return fs
}

// LoggerSink writes every log through a logger, errors at error level and the rest at debug.
type LoggerSink struct {
	logger logger.Logger
}

func NewLoggerSink(l logger.Logger) *LoggerSink {
	return &LoggerSink{logger: l}
}

func (s *LoggerSink) Accept(ctx context.Context, log *model.MonitorLog) {
	if log.Status == model.MonitorError {
		s.logger.ErrorWithContext(ctx, "monitor log", fields(log)...)
		return
	}
	s.logger.DebugWithContext(ctx, "monitor log", fields(log)...)
}

// StorageSink appends every log to a monitor log backend.
type StorageSink struct {
	backend storage.MonitorLogBackend
	logger  logger.Logger
}

func NewStorageSink(backend storage.MonitorLogBackend, l logger.Logger) *StorageSink {
	return &StorageSink{backend: backend, logger: l}
}

func (s *StorageSink) Accept(ctx context.Context, log *model.MonitorLog) {
	if err := s.backend.AppendMonitorLog(ctx, log); err != nil {
		s.logger.WarnWithContext(ctx, "failed to store monitor log",
			zap.String("trace_id", log.TraceID),
			zap.String("pipeline_id", log.PipelineID),
			zap.Error(err))
	}
}

var (
	monitorLogCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "monitor_log_count",
		Help:      "The total number of monitor logs by level and status.",
	}, []string{"level", "status"})

	monitorDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "topicflow",
		Name:      "monitor_duration_ms",
		Help:      "The duration (in ms) of monitored pipeline and stage executions.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"level"})
)

// PrometheusSink counts logs by level and status and observes pipeline and stage durations.
type PrometheusSink struct{}

func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

func (s *PrometheusSink) Accept(_ context.Context, log *model.MonitorLog) {
	level := log.Level()
	monitorLogCounter.WithLabelValues(level, string(log.Status)).Inc()
	if level == "pipeline" || level == "stage" {
		monitorDurationHistogram.WithLabelValues(level).Observe(float64(log.SpentInMills))
	}
}

// MultiSink fans a log out to every sink in order. A panicking sink is recovered and logged
// so the remaining sinks still receive the log.
type MultiSink struct {
	sinks  []Sink
	logger logger.Logger
}

func NewMultiSink(l logger.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: l}
}

func (m *MultiSink) Accept(ctx context.Context, log *model.MonitorLog) {
	for _, sink := range m.sinks {
		m.accept(ctx, sink, log)
	}
}

func (m *MultiSink) accept(ctx context.Context, sink Sink, log *model.MonitorLog) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorWithContext(ctx, "monitor sink panicked", zap.Any("panic", r))
		}
	}()
	sink.Accept(ctx, log)
}
