// Package engine runs compiled pipelines. A trigger becomes the tasks of round 0; every row a
// task writes to another topic becomes a trigger for the next round, until a round writes
// nothing or the round limit is hit.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/internal/concurrency"
	"github.com/topicflow/topicflow/internal/pipeline"
	"github.com/topicflow/topicflow/pkg/encryption"
	"github.com/topicflow/topicflow/pkg/external"
	"github.com/topicflow/topicflow/pkg/id"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/monitor"
	"github.com/topicflow/topicflow/pkg/principal"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/telemetry"
	"github.com/topicflow/topicflow/pkg/value"
)

var tracer = otel.Tracer("internal/engine")

const (
	DefaultMaxConcurrentTasks = 16
	DefaultMaxRounds          = 64
	DefaultMergeRetries       = 5
)

var (
	taskCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "task_count",
		Help:      "The total number of executed tasks by status.",
	}, []string{"status"})

	roundHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "topicflow",
		Name:      "trigger_rounds",
		Help:      "The number of rounds a trigger took to quiesce.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
	})

	truncatedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "cascade_truncated_count",
		Help:      "The total number of cascades cut off at the round limit.",
	})
)

// Resolver hands out compiled pipelines.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string, p *model.Pipeline) (*pipeline.Compiled, error)
}

// Trigger is a change to one row of a topic.
type Trigger struct {
	TenantID string
	TopicID  string
	// Type is the kind of change: insert, merge or delete.
	Type     model.PipelineTriggerType
	Previous value.Map
	Current  value.Map
	DataID   string
}

// Row returns the snapshot pipelines read the trigger topic from: the current row, or the
// previous one for deletes.
func (t *Trigger) Row() value.Map {
	if t.Type == model.TriggerDelete {
		return t.Previous
	}
	return t.Current
}

// Task is one pipeline run for one trigger.
type Task struct {
	Pipeline  *model.Pipeline
	Trigger   *Trigger
	Principal *principal.Principal
	TraceID   string
	Round     int
}

// TaskResult is the outcome of a task. Status is DONE when the pipeline ran, IGNORED when its
// prerequisite was false and ERROR when it failed.
type TaskResult struct {
	PipelineID string
	TopicID    string
	DataID     string
	Round      int
	Status     model.MonitorStatus
	Err        error
	Reads      uint32
	Writes     uint32
}

// Report describes a whole cascade.
type Report struct {
	TraceID string
	Rounds  int
	Tasks   []*TaskResult
	// Dropped counts the tasks discarded at the round limit.
	Dropped int
	// Errors holds failures to schedule tasks, e.g. meta lookups.
	Errors []error
}

// Failed returns the results of failed tasks.
func (r *Report) Failed() []*TaskResult {
	var failed []*TaskResult
	for _, t := range r.Tasks {
		if t.Status == model.MonitorError {
			failed = append(failed, t)
		}
	}
	return failed
}

// Engine schedules and runs tasks.
type Engine struct {
	meta       meta.Reader
	resolver   Resolver
	storage    storage.TopicDataBackend
	encryption *encryption.Registry
	externals  *external.Registry
	sink       monitor.Sink
	logger     logger.Logger

	maxConcurrentTasks int
	maxRounds          int
	mergeRetries       uint64
	clock              func() time.Time
}

type EngineOpt func(*Engine)

func WithEncryption(r *encryption.Registry) EngineOpt {
	return func(e *Engine) {
		e.encryption = r
	}
}

func WithExternalWriters(r *external.Registry) EngineOpt {
	return func(e *Engine) {
		e.externals = r
	}
}

func WithMonitorSink(s monitor.Sink) EngineOpt {
	return func(e *Engine) {
		e.sink = s
	}
}

func WithLogger(l logger.Logger) EngineOpt {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxConcurrentTasks bounds how many tasks of a round run at once.
func WithMaxConcurrentTasks(n int) EngineOpt {
	return func(e *Engine) {
		e.maxConcurrentTasks = n
	}
}

// WithMaxRounds bounds the length of a cascade.
func WithMaxRounds(n int) EngineOpt {
	return func(e *Engine) {
		e.maxRounds = n
	}
}

// WithMergeRetries bounds the retries of a merge that lost an optimistic version race.
func WithMergeRetries(n uint64) EngineOpt {
	return func(e *Engine) {
		e.mergeRetries = n
	}
}

func WithClock(clock func() time.Time) EngineOpt {
	return func(e *Engine) {
		e.clock = clock
	}
}

func New(reader meta.Reader, resolver Resolver, ds storage.TopicDataBackend, opts ...EngineOpt) *Engine {
	e := &Engine{
		meta:               reader,
		resolver:           resolver,
		storage:            ds,
		encryption:         encryption.NewRegistry(),
		externals:          external.NewRegistry(),
		sink:               monitor.Discard,
		logger:             logger.NewNoopLogger(),
		maxConcurrentTasks: DefaultMaxConcurrentTasks,
		maxRounds:          DefaultMaxRounds,
		mergeRetries:       DefaultMergeRetries,
		clock:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run runs every pipeline trigger activates, and the cascade it causes, to completion. Task
// failures are reported, not returned; the error is for failures to start at all.
func (e *Engine) Run(ctx context.Context, trigger *Trigger) (*Report, error) {
	report := &Report{TraceID: id.NewTraceID()}

	ctx, span := tracer.Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.String("tenant_id", trigger.TenantID),
		attribute.String("topic_id", trigger.TopicID),
		attribute.String("trigger_type", string(trigger.Type)),
		attribute.String("topicflow_trace_id", report.TraceID),
	))
	defer span.End()

	p, _ := principal.FromContext(ctx)

	queue := linkedlistqueue.New()
	if err := e.enqueue(ctx, queue, trigger, p, report.TraceID, 0); err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	for round := 0; !queue.Empty(); round++ {
		if round >= e.maxRounds {
			report.Dropped = queue.Size()
			report.Errors = append(report.Errors, fmt.Errorf("%w: %d rounds, %d tasks dropped", ErrRoundLimit, e.maxRounds, report.Dropped))
			truncatedCounter.Inc()
			e.logger.ErrorWithContext(ctx, "cascade cut off at the round limit",
				zap.String("trace_id", report.TraceID),
				zap.Int("max_rounds", e.maxRounds),
				zap.Int("dropped", report.Dropped))
			break
		}

		tasks := make([]*Task, 0, queue.Size())
		for !queue.Empty() {
			task, _ := queue.Dequeue()
			tasks = append(tasks, task.(*Task))
		}

		outcomes := e.runRound(ctx, round, tasks)
		report.Rounds = round + 1
		for _, outcome := range outcomes {
			report.Tasks = append(report.Tasks, outcome.result)
			for _, produced := range outcome.produced {
				if err := e.enqueue(ctx, queue, produced, p, report.TraceID, round+1); err != nil {
					report.Errors = append(report.Errors, err)
					e.logger.ErrorWithContext(ctx, "failed to schedule cascade",
						zap.String("trace_id", report.TraceID),
						zap.String("topic_id", produced.TopicID),
						zap.Error(err))
				}
			}
		}
	}

	roundHistogram.Observe(float64(report.Rounds))
	span.SetAttributes(attribute.Int("rounds", report.Rounds), attribute.Int("tasks", len(report.Tasks)))
	return report, nil
}

// enqueue adds one task per enabled pipeline of the trigger topic whose type matches the change.
func (e *Engine) enqueue(ctx context.Context, queue *linkedlistqueue.Queue, trigger *Trigger, p *principal.Principal, traceID string, round int) error {
	pipelines, err := e.meta.FindPipelinesByTopic(ctx, trigger.TenantID, trigger.TopicID)
	if err != nil {
		return fmt.Errorf("find pipelines of topic '%s': %w", trigger.TopicID, err)
	}
	for _, pl := range pipelines {
		if !pl.Enabled || !pl.Type.Matches(trigger.Type) {
			continue
		}
		queue.Enqueue(&Task{
			Pipeline:  pl,
			Trigger:   trigger,
			Principal: p,
			TraceID:   traceID,
			Round:     round,
		})
	}
	return nil
}

func (e *Engine) runRound(ctx context.Context, round int, tasks []*Task) []*outcome {
	ctx, span := tracer.Start(ctx, "engine.round", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("tasks", len(tasks)),
	))
	defer span.End()

	return concurrency.Map(e.maxConcurrentTasks, tasks, func(task *Task) *outcome {
		o := e.runTask(ctx, task)
		taskCounter.WithLabelValues(string(o.result.Status)).Inc()
		return o
	})
}
