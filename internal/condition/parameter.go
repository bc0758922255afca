package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/topicflow/topicflow/pkg/datapath"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

// CompileParameter compiles p against the topics of scope.
func CompileParameter(p *model.Parameter, scope *Scope) (Parameter, error) {
	if p == nil {
		return nil, compileError("parameter", fmt.Errorf("parameter is not declared"), flowerrors.ErrMissingParameter)
	}
	switch p.Kind {
	case model.ParameterKindTopic:
		return compileTopicFactor(p, scope)
	case model.ParameterKindConstant:
		return compileConstant(p, scope)
	case model.ParameterKindComputed:
		return compileComputed(p, scope)
	}
	return nil, compileError(string(p.Kind), fmt.Errorf("unknown parameter kind"), flowerrors.ErrNotSupported)
}

// TopicFactorParameter reads a factor from the row bound to its topic.
type TopicFactorParameter struct {
	Topic  *model.Topic
	Factor *model.Factor
	path   *datapath.Path
}

func compileTopicFactor(p *model.Parameter, scope *Scope) (Parameter, error) {
	subject := p.TopicID + "." + p.FactorID
	topic, ok := scope.topic(p.TopicID)
	if !ok {
		return nil, compileError(subject, fmt.Errorf("topic '%s' not found", p.TopicID), flowerrors.ErrSchemaNotFound)
	}
	factor, ok := topic.FindFactor(p.FactorID)
	if !ok {
		return nil, compileError(subject, fmt.Errorf("factor '%s' not found in topic '%s'", p.FactorID, topic.Name), flowerrors.ErrSchemaNotFound)
	}

	path := &datapath.Path{}
	for _, name := range value.SplitName(factor.Name) {
		path.Segments = append(path.Segments, &datapath.PlainSegment{Name: name})
	}
	return &TopicFactorParameter{Topic: topic, Factor: factor, path: path}, nil
}

func (p *TopicFactorParameter) Value(env Env) (value.Value, error) {
	row, ok := env.Row(p.Topic.TopicID)
	if !ok {
		return nil, evaluationError(p.Topic.Name+"."+p.Factor.Name,
			flowerrors.With(fmt.Errorf("no row of topic '%s' is bound", p.Topic.Name), flowerrors.ErrRuntime))
	}
	return datapath.Evaluate(p.path, row)
}

type constantParameter struct {
	text           string
	template       *datapath.Template
	triggerTopicID string
}

func compileConstant(p *model.Parameter, scope *Scope) (Parameter, error) {
	if strings.TrimSpace(p.Value) == "" {
		return nil, compileError("constant", fmt.Errorf("constant value is blank"), flowerrors.ErrMissingParameter)
	}
	template, err := datapath.ParseTemplate(p.Value)
	if err != nil {
		return nil, &CompilationError{Subject: p.Value, Cause: err}
	}
	c := &constantParameter{text: p.Value, template: template}
	if scope != nil {
		c.triggerTopicID = scope.TriggerTopicID
	}
	return c, nil
}

// PathEnv exposes env to data paths: variables first, then the trigger's current row.
func PathEnv(env Env, triggerTopicID string) datapath.Env {
	roots := []value.Value{env.Variables()}
	if row, ok := env.Row(triggerTopicID); ok {
		roots = append(roots, row)
	}
	return datapath.Env{Roots: roots, Previous: env.Previous(), Clock: env.Now}
}

func (c *constantParameter) Value(env Env) (value.Value, error) {
	if text, ok := c.template.Literal(); ok {
		return value.Str(text), nil
	}
	v, err := c.template.Evaluate(PathEnv(env, c.triggerTopicID))
	if err != nil {
		return nil, evaluationError(c.text, err)
	}
	return v, nil
}

type computedParameter struct {
	computed model.ComputedType
	params   []Parameter
	compute  func(values []value.Value) (value.Value, error)
}

type caseBranch struct {
	on    Condition
	value Parameter
}

type caseThenParameter struct {
	branches []caseBranch
	fallback Parameter
}

func missing(t model.ComputedType, reason string) error {
	return compileError(string(t), fmt.Errorf("computed '%s' %s", t, reason), flowerrors.ErrMissingParameter)
}

func compileComputed(p *model.Parameter, scope *Scope) (Parameter, error) {
	n := len(p.Parameters)
	switch p.Type {
	case model.ComputedCaseThen:
		return compileCaseThen(p, scope)
	case model.ComputedAdd, model.ComputedSubtract, model.ComputedMultiply, model.ComputedDivide, model.ComputedModulus:
		if n < 2 {
			return nil, missing(p.Type, "requires at least two parameters")
		}
	case model.ComputedNone, model.ComputedYearOf, model.ComputedHalfYearOf, model.ComputedQuarterOf,
		model.ComputedMonthOf, model.ComputedWeekOfYear, model.ComputedWeekOfMonth,
		model.ComputedDayOfMonth, model.ComputedDayOfWeek:
		if n != 1 {
			return nil, missing(p.Type, "requires exactly one parameter")
		}
	default:
		return nil, compileError(string(p.Type), fmt.Errorf("unknown computed type"), flowerrors.ErrNotSupported)
	}

	params := make([]Parameter, n)
	for i, sub := range p.Parameters {
		if sub == nil {
			return nil, missing(p.Type, fmt.Sprintf("parameter #%d is not declared", i+1))
		}
		compiled, err := CompileParameter(sub, scope)
		if err != nil {
			return nil, err
		}
		params[i] = compiled
	}
	return &computedParameter{computed: p.Type, params: params, compute: computations[p.Type]}, nil
}

func compileCaseThen(p *model.Parameter, scope *Scope) (Parameter, error) {
	if len(p.Parameters) == 0 {
		return nil, missing(p.Type, "requires at least one parameter")
	}
	c := &caseThenParameter{}
	for i, sub := range p.Parameters {
		if sub == nil {
			return nil, missing(p.Type, fmt.Sprintf("parameter #%d is not declared", i+1))
		}
		compiled, err := CompileParameter(sub, scope)
		if err != nil {
			return nil, err
		}
		if sub.On == nil {
			if c.fallback != nil {
				return nil, missing(p.Type, "allows only one branch without a condition")
			}
			c.fallback = compiled
			continue
		}
		on, err := CompileCondition(sub.On, scope)
		if err != nil {
			return nil, err
		}
		c.branches = append(c.branches, caseBranch{on: on, value: compiled})
	}
	return c, nil
}

func (c *computedParameter) Value(env Env) (value.Value, error) {
	values := make([]value.Value, len(c.params))
	for i, p := range c.params {
		v, err := p.Value(env)
		if err != nil {
			return nil, err
		}
		values[i] = value.Or(v)
	}
	v, err := c.compute(values)
	if err != nil {
		return nil, evaluationError(string(c.computed), err)
	}
	return v, nil
}

func (c *caseThenParameter) Value(env Env) (value.Value, error) {
	for _, branch := range c.branches {
		ok, err := branch.on.IsTrue(env)
		if err != nil {
			return nil, err
		}
		if ok {
			return branch.value.Value(env)
		}
	}
	if c.fallback != nil {
		return c.fallback.Value(env)
	}
	return value.Nil, nil
}

var computations = map[model.ComputedType]func([]value.Value) (value.Value, error){
	model.ComputedNone:        func(vs []value.Value) (value.Value, error) { return vs[0], nil },
	model.ComputedAdd:         additive(func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }),
	model.ComputedSubtract:    additive(func(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) }),
	model.ComputedMultiply:    multiplicative(func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Mul(b), nil }),
	model.ComputedDivide:      multiplicative(divide),
	model.ComputedModulus:     multiplicative(modulus),
	model.ComputedYearOf:      datePart(func(t time.Time) int { return t.Year() }),
	model.ComputedHalfYearOf:  datePart(func(t time.Time) int { return (int(t.Month())-1)/6 + 1 }),
	model.ComputedQuarterOf:   datePart(func(t time.Time) int { return (int(t.Month())-1)/3 + 1 }),
	model.ComputedMonthOf:     datePart(func(t time.Time) int { return int(t.Month()) }),
	model.ComputedWeekOfYear:  datePart(weekOfYear),
	model.ComputedWeekOfMonth: datePart(weekOfMonth),
	model.ComputedDayOfMonth:  datePart(func(t time.Time) int { return t.Day() }),
	model.ComputedDayOfWeek:   datePart(func(t time.Time) int { return int(t.Weekday()) + 1 }),
}

func toDecimal(v value.Value) (decimal.Decimal, error) {
	n, err := value.CastTo(v, value.KindNum)
	if err != nil {
		return decimal.Zero, err
	}
	return n.(value.Num).Decimal(), nil
}

// additive treats None as zero.
func additive(op func(a, b decimal.Decimal) decimal.Decimal) func([]value.Value) (value.Value, error) {
	return func(vs []value.Value) (value.Value, error) {
		var result decimal.Decimal
		for i, v := range vs {
			d := decimal.Zero
			if !value.IsBlank(v) {
				var err error
				if d, err = toDecimal(v); err != nil {
					return nil, err
				}
			}
			if i == 0 {
				result = d
				continue
			}
			result = op(result, d)
		}
		return value.NewNum(result), nil
	}
}

// multiplicative yields None as soon as an operand is None.
func multiplicative(op func(a, b decimal.Decimal) (decimal.Decimal, error)) func([]value.Value) (value.Value, error) {
	return func(vs []value.Value) (value.Value, error) {
		var result decimal.Decimal
		for i, v := range vs {
			if value.IsBlank(v) {
				return value.Nil, nil
			}
			d, err := toDecimal(v)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				result = d
				continue
			}
			if result, err = op(result, d); err != nil {
				return nil, err
			}
		}
		return value.NewNum(result), nil
	}
}

func divide(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, flowerrors.With(fmt.Errorf("division by zero"), flowerrors.ErrRuntime)
	}
	return a.Div(b), nil
}

func modulus(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, flowerrors.With(fmt.Errorf("modulus by zero"), flowerrors.ErrRuntime)
	}
	return a.Mod(b), nil
}

func datePart(part func(time.Time) int) func([]value.Value) (value.Value, error) {
	return func(vs []value.Value) (value.Value, error) {
		if value.IsBlank(vs[0]) {
			return value.Nil, nil
		}
		t, ok := value.ToDateTime(vs[0])
		if !ok {
			return nil, flowerrors.With(&value.NotConvertibleError{Value: vs[0], Target: value.KindDateTime}, flowerrors.ErrTypeMismatch)
		}
		return value.NumFromInt(int64(part(t))), nil
	}
}

func weekOfYear(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

// weekOfMonth counts weeks starting on Sunday; the week holding the 1st is week 1.
func weekOfMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return (t.Day()+int(first.Weekday())-1)/7 + 1
}
