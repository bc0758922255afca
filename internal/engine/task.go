package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/internal/condition"
	"github.com/topicflow/topicflow/internal/pipeline"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage/storagewrappers"
	"github.com/topicflow/topicflow/pkg/telemetry"
	"github.com/topicflow/topicflow/pkg/value"
)

type outcome struct {
	result   *TaskResult
	produced []*Trigger
}

// execEnv is what conditions and parameters of a task evaluate against.
type execEnv struct {
	trigger *Trigger
	vars    *Variables
	clock   func() time.Time
}

var _ condition.Env = (*execEnv)(nil)

func (e *execEnv) Row(topicID string) (value.Map, bool) {
	if topicID != e.trigger.TopicID {
		return nil, false
	}
	return e.trigger.Row(), true
}

func (e *execEnv) Variables() value.Map { return e.vars.Map() }

func (e *execEnv) Previous() value.Map { return e.trigger.Previous }

func (e *execEnv) Now() time.Time { return e.clock() }

func (e *execEnv) withVariables(vars *Variables) *execEnv {
	return &execEnv{trigger: e.trigger, vars: vars, clock: e.clock}
}

// node identifies a stage, unit or action of the running pipeline.
type node struct {
	stage, unit, action string
}

func (n node) String() string {
	var parts []string
	if n.stage != "" {
		parts = append(parts, fmt.Sprintf("stage[%s]", n.stage))
	}
	if n.unit != "" {
		parts = append(parts, fmt.Sprintf("unit[%s]", n.unit))
	}
	if n.action != "" {
		parts = append(parts, fmt.Sprintf("action[%s]", n.action))
	}
	return strings.Join(parts, "/")
}

type runner struct {
	engine   *Engine
	task     *Task
	compiled *pipeline.Compiled
	storage  *storagewrappers.InstrumentedStorage
	produced []*Trigger
}

func (e *Engine) runTask(ctx context.Context, task *Task) (o *outcome) {
	// a started task runs to completion
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "engine.runTask", trace.WithAttributes(
		attribute.String("pipeline_id", task.Pipeline.PipelineID),
		attribute.String("topic_id", task.Trigger.TopicID),
		attribute.Int("round", task.Round),
	))
	defer span.End()

	r := &runner{
		engine:  e,
		task:    task,
		storage: storagewrappers.NewInstrumentedStorage(e.storage),
	}
	result := &TaskResult{
		PipelineID: task.Pipeline.PipelineID,
		TopicID:    task.Trigger.TopicID,
		DataID:     task.Trigger.DataID,
		Round:      task.Round,
	}
	o = &outcome{result: result}

	defer func() {
		if p := recover(); p != nil {
			result.Status = model.MonitorError
			result.Err = runtimeError(task.Pipeline.PipelineID, "", fmt.Errorf("panic: %v", p))
		}
		metrics := r.storage.GetMetrics()
		result.Reads = metrics.DatastoreReadCount
		result.Writes = metrics.DatastoreWriteCount
		o.produced = r.produced
		if result.Err != nil {
			telemetry.TraceError(span, result.Err)
			e.logger.WarnWithContext(ctx, "pipeline failed",
				zap.String("trace_id", task.TraceID),
				zap.String("pipeline_id", task.Pipeline.PipelineID),
				zap.Int("round", task.Round),
				zap.Error(result.Err))
		}
	}()

	start := e.clock()
	compiled, err := e.resolver.Resolve(ctx, task.Trigger.TenantID, task.Pipeline)
	if err != nil {
		result.Status, result.Err = model.MonitorError, err
		r.record(ctx, node{}, start, result.Status, err)
		return o
	}
	r.compiled = compiled

	env := &execEnv{trigger: task.Trigger, vars: newVariables(), clock: e.clock}
	result.Status, result.Err = r.run(ctx, node{}, compiled.Prerequisite, env, func() error {
		for _, stage := range compiled.Stages {
			if err := r.runStage(ctx, env, stage); err != nil {
				return err
			}
		}
		return nil
	})
	return o
}

func (r *runner) runStage(ctx context.Context, env *execEnv, stage *pipeline.Stage) error {
	at := node{stage: stage.Stage.StageID}
	_, err := r.run(ctx, at, stage.Prerequisite, env, func() error {
		for _, unit := range stage.Units {
			if err := r.runUnit(ctx, env, at, unit); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (r *runner) runUnit(ctx context.Context, env *execEnv, parent node, unit *pipeline.Unit) error {
	at := node{stage: parent.stage, unit: unit.Unit.UnitID}
	_, err := r.run(ctx, at, unit.Prerequisite, env, func() error {
		if unit.LoopVariable == "" {
			return r.runActions(ctx, env, at, unit.Actions)
		}

		switch items := env.vars.Get(unit.LoopVariable).(type) {
		case value.None:
			return nil
		case value.Vec:
			for _, item := range items {
				iteration := env.withVariables(env.vars.Clone())
				iteration.vars.Set(unit.LoopVariable, item, at.String())
				if err := r.runActions(ctx, iteration, at, unit.Actions); err != nil {
					return err
				}
			}
			return nil
		default:
			return r.runActions(ctx, env, at, unit.Actions)
		}
	})
	return err
}

func (r *runner) runActions(ctx context.Context, env *execEnv, parent node, actions []*pipeline.Action) error {
	for _, action := range actions {
		at := node{stage: parent.stage, unit: parent.unit, action: action.Action.ActionID}
		_, err := r.run(ctx, at, action.Prerequisite, env, func() error {
			if err := r.execute(ctx, env, at, action); err != nil {
				return runtimeError(r.task.Pipeline.PipelineID, at.String(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// run runs body when prerequisite holds and records the outcome of the node.
func (r *runner) run(ctx context.Context, at node, prerequisite condition.Condition, env condition.Env, body func() error) (model.MonitorStatus, error) {
	start := r.engine.clock()
	status := model.MonitorDone

	ok, err := prerequisite.IsTrue(env)
	switch {
	case err != nil:
		status, err = model.MonitorError, runtimeError(r.task.Pipeline.PipelineID, at.String(), err)
	case !ok:
		status = model.MonitorIgnored
	default:
		if err = body(); err != nil {
			status = model.MonitorError
		}
	}

	r.record(ctx, at, start, status, err)
	return status, err
}

func (r *runner) record(ctx context.Context, at node, start time.Time, status model.MonitorStatus, err error) {
	log := &model.MonitorLog{
		TenantID:     r.task.Trigger.TenantID,
		TraceID:      r.task.TraceID,
		Round:        r.task.Round,
		PipelineID:   r.task.Pipeline.PipelineID,
		TopicID:      r.task.Trigger.TopicID,
		DataID:       r.task.Trigger.DataID,
		StageID:      at.stage,
		UnitID:       at.unit,
		ActionID:     at.action,
		Status:       status,
		StartTime:    start,
		SpentInMills: r.engine.clock().Sub(start).Milliseconds(),
	}
	if err != nil {
		log.Error = err.Error()
	}
	r.engine.sink.Accept(ctx, log)
}

// produce schedules trigger for the next round unless it is a change to the topic the task
// itself was triggered by.
func (r *runner) produce(trigger *Trigger) {
	if trigger.TopicID == r.task.Trigger.TopicID {
		return
	}
	r.produced = append(r.produced, trigger)
}
