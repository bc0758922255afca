package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/topicflow/topicflow/internal/condition"
	"github.com/topicflow/topicflow/internal/pipeline"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

// AggregateAssist is the key under which a row keeps the running state of its avg factors.
const AggregateAssist = "_aggregate_assist"

// visible strips bookkeeping from row data.
func visible(data value.Map) value.Map {
	if _, ok := data[AggregateAssist]; ok {
		return data.Without(AggregateAssist)
	}
	return data
}

// CastToFactor converts v to the kind stored for factor f. An absent value takes the factor's
// default value when it declares one.
func CastToFactor(f *model.Factor, v value.Value) (value.Value, error) {
	v = value.Or(v)
	if value.IsNone(v) && f.DefaultValue != "" {
		v = value.NewStr(f.DefaultValue)
	}

	var (
		out value.Value
		err error
	)
	switch f.Type {
	case model.FactorTypeNumber, model.FactorTypeUnsigned, model.FactorTypeSequence:
		out, err = value.CastTo(v, value.KindNum)
		if err == nil && f.Type == model.FactorTypeUnsigned {
			if n, ok := out.(value.Num); ok && n.Decimal().IsNegative() {
				err = flowerrors.With(fmt.Errorf("%s is negative", n), flowerrors.ErrTypeMismatch)
			}
		}
	case model.FactorTypeText, model.FactorTypeEnum, model.FactorTypeEmail, model.FactorTypePhone:
		out, err = value.CastTo(v, value.KindStr)
	case model.FactorTypeBoolean:
		out, err = value.CastTo(v, value.KindBool)
	case model.FactorTypeDate:
		out, err = value.CastTo(v, value.KindDate)
	case model.FactorTypeTime:
		out, err = value.CastTo(v, value.KindTime)
	case model.FactorTypeDateTime:
		out, err = value.CastTo(v, value.KindDateTime)
	case model.FactorTypeObject:
		switch v.(type) {
		case value.Map, value.None:
			out = v
		default:
			err = flowerrors.With(fmt.Errorf("%s value is not an object", v.Kind()), flowerrors.ErrTypeMismatch)
		}
	case model.FactorTypeArray:
		out, err = value.CastTo(v, value.KindVec)
	default:
		out = v
	}
	if err != nil {
		return nil, fmt.Errorf("factor '%s': %w", f.Name, err)
	}
	return out, nil
}

func toDecimal(f *model.Factor, v value.Value) (decimal.Decimal, error) {
	if value.IsNone(v) || value.IsBlank(v) {
		return decimal.Zero, nil
	}
	d, ok := value.ToDecimal(v)
	if !ok {
		return decimal.Zero, flowerrors.With(fmt.Errorf("factor '%s' holds non numeric %s value", f.Name, v.Kind()), flowerrors.ErrNotSupported)
	}
	return d, nil
}

// accumulate folds the mappings into current and returns the new row data.
func (r *runner) accumulate(env *execEnv, mappings []*pipeline.Mapping, current value.Map) (value.Map, error) {
	data := current
	trigger := r.task.Trigger
	for _, m := range mappings {
		v, err := m.Source.Value(env)
		if err != nil {
			return nil, err
		}
		if v, err = CastToFactor(m.Factor, v); err != nil {
			return nil, err
		}

		names := value.SplitName(m.Factor.Name)
		old := data.GetPath(names)
		var next value.Value
		switch m.Arithmetic {
		case model.ArithmeticSum:
			total, err := r.delta(env, m, v)
			if err != nil {
				return nil, err
			}
			base, err := toDecimal(m.Factor, old)
			if err != nil {
				return nil, err
			}
			next = value.NewNum(base.Add(total))
		case model.ArithmeticCount:
			base, err := toDecimal(m.Factor, old)
			if err != nil {
				return nil, err
			}
			if trigger.Type == model.TriggerInsert {
				base = base.Add(decimal.NewFromInt(1))
			}
			next = value.NewNum(base)
		case model.ArithmeticAvg:
			if next, data, err = r.average(env, m, v, data); err != nil {
				return nil, err
			}
		case model.ArithmeticMax, model.ArithmeticMin:
			notSupported := func() error {
				return flowerrors.With(fmt.Errorf("arithmetic '%s' cannot apply to factor '%s'", m.Arithmetic, m.Factor.Name), flowerrors.ErrNotSupported)
			}
			if m.Arithmetic == model.ArithmeticMax {
				next, err = value.MaxOf(value.Vec{old, v}, notSupported)
			} else {
				next, err = value.MinOf(value.Vec{old, v}, notSupported)
			}
			if err != nil {
				return nil, err
			}
		default:
			next = v
		}

		if next, err = CastToFactor(m.Factor, next); err != nil {
			return nil, err
		}
		data = data.SetPath(names, next)
	}
	return data, nil
}

// delta is what a sum mapping adds: its value, less what the previous version of the trigger
// row contributed when the trigger is a merge.
func (r *runner) delta(env *execEnv, m *pipeline.Mapping, v value.Value) (decimal.Decimal, error) {
	d, err := toDecimal(m.Factor, v)
	if err != nil {
		return decimal.Zero, err
	}
	trigger := r.task.Trigger
	if trigger.Type != model.TriggerMerge || trigger.Previous == nil {
		return d, nil
	}

	previous, err := m.Source.Value(condition.Bind(env, trigger.TopicID, trigger.Previous))
	if err != nil {
		return decimal.Zero, err
	}
	if previous, err = CastToFactor(m.Factor, previous); err != nil {
		return decimal.Zero, err
	}
	contribution, err := toDecimal(m.Factor, previous)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Sub(contribution), nil
}

// average maintains the running count and sum of an avg mapping under AggregateAssist.
func (r *runner) average(env *execEnv, m *pipeline.Mapping, v value.Value, data value.Map) (value.Value, value.Map, error) {
	assist, _ := data.Get(AggregateAssist).(value.Map)
	state, _ := assist.Get(m.Factor.Name).(value.Map)

	count, err := toDecimal(m.Factor, state.Get("count"))
	if err != nil {
		return nil, nil, err
	}
	sum, err := toDecimal(m.Factor, state.Get("sum"))
	if err != nil {
		return nil, nil, err
	}

	if r.task.Trigger.Type == model.TriggerInsert || count.IsZero() {
		d, err := toDecimal(m.Factor, v)
		if err != nil {
			return nil, nil, err
		}
		count = count.Add(decimal.NewFromInt(1))
		sum = sum.Add(d)
	} else {
		d, err := r.delta(env, m, v)
		if err != nil {
			return nil, nil, err
		}
		sum = sum.Add(d)
	}

	state = value.Map{"count": value.NewNum(count), "sum": value.NewNum(sum)}
	if assist == nil {
		assist = value.Map{}
	}
	data = data.With(AggregateAssist, assist.With(m.Factor.Name, state))
	return value.NewNum(sum.Div(count)), data, nil
}

func (r *runner) insert(ctx context.Context, a *pipeline.Action, data value.Map) error {
	encrypted, err := r.engine.encryption.EncryptRow(a.Topic, data)
	if err != nil {
		return err
	}
	row, err := r.storage.Insert(ctx, r.task.Trigger.TenantID, a.Topic.TopicID, encrypted)
	if err != nil {
		return err
	}
	r.produce(&Trigger{
		TenantID: r.task.Trigger.TenantID,
		TopicID:  a.Topic.TopicID,
		Type:     model.TriggerInsert,
		Current:  visible(data),
		DataID:   row.ID,
	})
	return nil
}

func (e *Engine) mergeBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return backoff.WithMaxRetries(b, e.mergeRetries)
}

// update replaces the data of row with compute's result. When the row changed since it was
// read, it is read again and compute runs on the fresh data.
func (r *runner) update(ctx context.Context, a *pipeline.Action, row *storage.Row, compute func(current value.Map) (value.Map, error)) error {
	var previous, next value.Map
	var updated *storage.Row

	attempt := func() error {
		current, err := r.engine.encryption.DecryptRow(a.Topic, row.Data)
		if err != nil {
			return backoff.Permanent(err)
		}
		data, err := compute(current)
		if err != nil {
			return backoff.Permanent(err)
		}
		encrypted, err := r.engine.encryption.EncryptRow(a.Topic, data)
		if err != nil {
			return backoff.Permanent(err)
		}

		candidate := row.Clone()
		candidate.Data = encrypted
		updated, err = r.storage.Update(ctx, candidate)
		if errors.Is(err, storage.ErrVersionConflict) {
			fresh, findErr := r.storage.FindByID(ctx, row.TenantID, row.TopicID, row.ID)
			if findErr != nil {
				return backoff.Permanent(findErr)
			}
			row = fresh
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		previous, next = current, data
		return nil
	}
	if err := backoff.Retry(attempt, r.engine.mergeBackOff()); err != nil {
		return err
	}

	r.produce(&Trigger{
		TenantID: r.task.Trigger.TenantID,
		TopicID:  a.Topic.TopicID,
		Type:     model.TriggerMerge,
		Previous: visible(previous),
		Current:  visible(next),
		DataID:   updated.ID,
	})
	return nil
}

func (r *runner) decrypt(topic *model.Topic, data value.Map) (value.Map, error) {
	decrypted, err := r.engine.encryption.DecryptRow(topic, data)
	if err != nil {
		return nil, err
	}
	return visible(decrypted), nil
}
