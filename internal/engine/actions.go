package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topicflow/topicflow/internal/condition"
	"github.com/topicflow/topicflow/internal/pipeline"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/external"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

func (r *runner) execute(ctx context.Context, env *execEnv, at node, a *pipeline.Action) error {
	switch a.Type {
	case model.ActionAlarm:
		return r.alarm(ctx, env, a)
	case model.ActionCopyToMemory:
		v, err := a.Source.Value(env)
		if err != nil {
			return err
		}
		env.vars.Set(a.VariableName, v, at.String())
		return nil
	case model.ActionWriteToExternal:
		return r.writeToExternal(ctx, env, a)
	case model.ActionExists, model.ActionReadRow, model.ActionReadRows, model.ActionReadFactor, model.ActionReadFactors:
		v, err := r.read(ctx, env, a)
		if err != nil {
			return err
		}
		env.vars.Set(a.VariableName, v, at.String())
		return nil
	case model.ActionInsertRow:
		return r.insertRow(ctx, env, a)
	case model.ActionInsertOrMergeRow, model.ActionMergeRow:
		return r.mergeRow(ctx, env, a)
	case model.ActionWriteFactor:
		return r.writeFactor(ctx, env, a)
	case model.ActionDeleteRow, model.ActionDeleteRows:
		return r.deleteRows(ctx, env, a)
	}
	return flowerrors.With(fmt.Errorf("unknown action type '%s'", a.Type), flowerrors.ErrNotSupported)
}

func (r *runner) alarm(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	message, err := a.Message.Evaluate(condition.PathEnv(env, r.task.Trigger.TopicID))
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("trace_id", r.task.TraceID),
		zap.String("tenant_id", r.task.Trigger.TenantID),
		zap.String("pipeline_id", r.task.Pipeline.PipelineID),
		zap.String("severity", string(a.Severity)),
	}
	text := "alarm: " + value.Or(message).String()
	switch a.Severity {
	case model.SeverityLow:
		r.engine.logger.InfoWithContext(ctx, text, fields...)
	case model.SeverityMedium:
		r.engine.logger.WarnWithContext(ctx, text, fields...)
	default:
		r.engine.logger.ErrorWithContext(ctx, text, fields...)
	}
	return nil
}

func (r *runner) writeToExternal(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	writer, err := r.engine.externals.Find(a.ExternalWriterID)
	if err != nil {
		return flowerrors.With(err, flowerrors.ErrRuntime)
	}
	trigger := r.task.Trigger
	return writer.Write(ctx, &external.Event{
		Code:      a.EventCode,
		TenantID:  trigger.TenantID,
		TopicID:   trigger.TopicID,
		TraceID:   r.task.TraceID,
		Previous:  trigger.Previous,
		Current:   trigger.Current,
		Variables: env.vars.Map(),
	})
}

// match is a stored row together with its decrypted data.
type match struct {
	row  *storage.Row
	data value.Map
}

// find returns the rows of the action's topic its by condition accepts. The condition sees each
// candidate row decrypted and bound to the action's topic.
func (r *runner) find(ctx context.Context, env *execEnv, a *pipeline.Action) ([]match, error) {
	filter := func(data value.Map) (bool, error) {
		decrypted, err := r.decrypt(a.Topic, data)
		if err != nil {
			return false, err
		}
		return a.By.IsTrue(condition.Bind(env, a.Topic.TopicID, decrypted))
	}
	rows, err := r.storage.Find(ctx, r.task.Trigger.TenantID, a.Topic.TopicID, filter)
	if err != nil {
		return nil, err
	}

	matches := make([]match, 0, len(rows))
	for _, row := range rows {
		data, err := r.decrypt(a.Topic, row.Data)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match{row: row, data: data})
	}
	return matches, nil
}

func tooMany(a *pipeline.Action, n int) error {
	return failure("%d rows of topic '%s' match, at most one expected", n, a.Topic.Name)
}

func factorOf(f *model.Factor, data value.Map) value.Value {
	return data.GetPath(value.SplitName(f.Name))
}

func (r *runner) read(ctx context.Context, env *execEnv, a *pipeline.Action) (value.Value, error) {
	matches, err := r.find(ctx, env, a)
	if err != nil {
		return nil, err
	}

	switch a.Type {
	case model.ActionExists:
		return value.NewBool(len(matches) > 0), nil
	case model.ActionReadRow:
		switch len(matches) {
		case 0:
			return value.Nil, nil
		case 1:
			return matches[0].data, nil
		}
		return nil, tooMany(a, len(matches))
	case model.ActionReadRows:
		rows := make(value.Vec, 0, len(matches))
		for _, m := range matches {
			rows = append(rows, m.data)
		}
		return rows, nil
	}

	factors := make(value.Vec, 0, len(matches))
	for _, m := range matches {
		factors = append(factors, factorOf(a.Factor, m.data))
	}
	if a.Type == model.ActionReadFactors {
		return factors, nil
	}

	notSupported := func() error {
		return flowerrors.With(fmt.Errorf("arithmetic '%s' cannot apply to factor '%s'", a.Arithmetic, a.Factor.Name), flowerrors.ErrNotSupported)
	}
	switch a.Arithmetic {
	case model.ArithmeticCount:
		return value.NumFromInt(int64(len(matches))), nil
	case model.ArithmeticSum:
		return value.Sum(factors, notSupported)
	case model.ArithmeticAvg:
		return value.Avg(factors, notSupported)
	case model.ArithmeticMax:
		return value.MaxOf(factors, notSupported)
	case model.ArithmeticMin:
		return value.MinOf(factors, notSupported)
	}
	switch len(factors) {
	case 0:
		return value.Nil, nil
	case 1:
		return factors[0], nil
	}
	return nil, tooMany(a, len(factors))
}

func (r *runner) insertRow(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	data, err := r.accumulate(env, a.Mapping, value.Map{})
	if err != nil {
		return err
	}
	return r.insert(ctx, a, data)
}

func (r *runner) mergeRow(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	matches, err := r.find(ctx, env, a)
	if err != nil {
		return err
	}

	switch {
	case len(matches) == 0 && a.Type == model.ActionInsertOrMergeRow:
		return r.insertRow(ctx, env, a)
	case len(matches) == 0:
		return failure("no row of topic '%s' matches", a.Topic.Name)
	case len(matches) > 1:
		return tooMany(a, len(matches))
	}

	return r.update(ctx, a, matches[0].row, func(current value.Map) (value.Map, error) {
		return r.accumulate(env, a.Mapping, current)
	})
}

func (r *runner) writeFactor(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	matches, err := r.find(ctx, env, a)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return failure("no row of topic '%s' matches", a.Topic.Name)
	}

	mapping := []*pipeline.Mapping{{Factor: a.Factor, Source: a.Source, Arithmetic: a.Arithmetic}}
	for _, m := range matches {
		err := r.update(ctx, a, m.row, func(current value.Map) (value.Map, error) {
			return r.accumulate(env, mapping, current)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) deleteRows(ctx context.Context, env *execEnv, a *pipeline.Action) error {
	matches, err := r.find(ctx, env, a)
	if err != nil {
		return err
	}
	if a.Type == model.ActionDeleteRow && len(matches) > 1 {
		return tooMany(a, len(matches))
	}

	tenantID := r.task.Trigger.TenantID
	for _, m := range matches {
		if err := r.storage.Delete(ctx, tenantID, a.Topic.TopicID, m.row.ID); err != nil {
			return err
		}
		r.produce(&Trigger{
			TenantID: tenantID,
			TopicID:  a.Topic.TopicID,
			Type:     model.TriggerDelete,
			Previous: m.data,
			DataID:   m.row.ID,
		})
	}
	return nil
}
