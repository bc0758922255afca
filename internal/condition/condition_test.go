package condition_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/internal/condition"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

func ordersScope() *condition.Scope {
	return &condition.Scope{
		TenantID:       "tenant1",
		TriggerTopicID: "orders",
		Topics: map[string]*model.Topic{
			"orders": {
				TopicID: "orders",
				Name:    "orders",
				Factors: []*model.Factor{
					{FactorID: "f-amount", Name: "amount", Type: model.FactorTypeNumber},
					{FactorID: "f-status", Name: "status", Type: model.FactorTypeText},
					{FactorID: "f-city", Name: "address.city", Type: model.FactorTypeText},
					{FactorID: "f-date", Name: "orderDate", Type: model.FactorTypeDate},
				},
			},
		},
	}
}

func ordersEnv() *condition.Bindings {
	return &condition.Bindings{
		Rows: map[string]value.Map{
			"orders": {
				"amount":    value.NumFromInt(120),
				"status":    value.Str("open"),
				"address":   value.Map{"city": value.Str("Oslo")},
				"orderDate": value.DateOf(2021, time.August, 15),
			},
		},
		Vars: value.Map{"limit": value.NumFromInt(100), "statuses": value.Vec{value.Str("open"), value.Str("held")}},
		Prev: value.Map{"amount": value.NumFromInt(80)},
	}
}

func mustCondition(t *testing.T, c *model.ParameterCondition) condition.Condition {
	t.Helper()
	compiled, err := condition.CompileCondition(c, ordersScope())
	require.NoError(t, err)
	return compiled
}

func mustValue(t *testing.T, p *model.Parameter, env condition.Env) value.Value {
	t.Helper()
	compiled, err := condition.CompileParameter(p, ordersScope())
	require.NoError(t, err)
	v, err := compiled.Value(env)
	require.NoError(t, err)
	return v
}

func TestJointIdentities(t *testing.T) {
	env := ordersEnv()

	and := mustCondition(t, model.Joint(model.JointAnd))
	ok, err := and.IsTrue(env)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = and.IsFalse(env)
	require.NoError(t, err)
	require.False(t, ok)

	or := mustCondition(t, model.Joint(model.JointOr))
	ok, err = or.IsTrue(env)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = or.IsFalse(env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJointShortCircuit(t *testing.T) {
	env := ordersEnv()
	failing := model.Expression(model.TopicFactor("orders", "f-amount"), model.OperatorLess, model.Constant("abc"))
	falsy := model.Expression(model.TopicFactor("orders", "f-status"), model.OperatorEquals, model.Constant("closed"))
	truthy := model.Expression(model.TopicFactor("orders", "f-status"), model.OperatorEquals, model.Constant("open"))

	ok, err := mustCondition(t, model.Joint(model.JointAnd, falsy, failing)).IsTrue(env)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mustCondition(t, model.Joint(model.JointOr, truthy, failing)).IsTrue(env)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = mustCondition(t, model.Joint(model.JointAnd, truthy, failing)).IsTrue(env)
	require.ErrorIs(t, err, flowerrors.ErrNotSupported)

	var evalErr *condition.EvaluationError
	require.True(t, errors.As(err, &evalErr))
	require.Equal(t, "less", evalErr.Subject)
}

func TestOperatorsAreComplementary(t *testing.T) {
	operands := []*model.Parameter{
		model.TopicFactor("orders", "f-amount"),
		model.TopicFactor("orders", "f-status"),
		model.Constant("{limit}"),
		model.Constant("120"),
		model.Constant("open,held"),
		model.Constant("{missing}"),
		model.Constant("{statuses}"),
	}
	operators := []model.ExpressionOperator{
		model.OperatorEquals, model.OperatorNotEquals,
		model.OperatorLess, model.OperatorLessEquals, model.OperatorMore, model.OperatorMoreEquals,
		model.OperatorIn, model.OperatorNotIn,
	}

	env := ordersEnv()
	for _, op := range operators {
		for _, left := range operands {
			for _, right := range operands {
				compiled := mustCondition(t, model.Expression(left, op, right))
				isTrue, errTrue := compiled.IsTrue(env)
				isFalse, errFalse := compiled.IsFalse(env)
				if errTrue != nil || errFalse != nil {
					require.ErrorIs(t, errTrue, flowerrors.ErrNotSupported)
					require.ErrorIs(t, errFalse, flowerrors.ErrNotSupported)
					continue
				}
				require.NotEqual(t, isTrue, isFalse, "%s %s %s", left.FactorID+left.Value, op, right.FactorID+right.Value)
			}
		}
	}

	for _, op := range []model.ExpressionOperator{model.OperatorEmpty, model.OperatorNotEmpty} {
		for _, left := range operands {
			compiled := mustCondition(t, model.Expression(left, op, nil))
			isTrue, err := compiled.IsTrue(env)
			require.NoError(t, err)
			isFalse, err := compiled.IsFalse(env)
			require.NoError(t, err)
			require.NotEqual(t, isTrue, isFalse)
		}
	}
}

func TestExpressions(t *testing.T) {
	env := ordersEnv()
	amount := model.TopicFactor("orders", "f-amount")

	var tests = []struct {
		name string
		cond *model.ParameterCondition
		want bool
	}{
		{name: "more_than_variable", cond: model.Expression(amount, model.OperatorMore, model.Constant("{limit}")), want: true},
		{name: "numeric_string_equals", cond: model.Expression(amount, model.OperatorEquals, model.Constant("120.00")), want: true},
		{name: "nested_factor", cond: model.Expression(model.TopicFactor("orders", "f-city"), model.OperatorEquals, model.Constant("Oslo")), want: true},
		{name: "in_comma_separated", cond: model.Expression(model.TopicFactor("orders", "f-status"), model.OperatorIn, model.Constant("held, open")), want: true},
		{name: "in_vec_variable", cond: model.Expression(model.TopicFactor("orders", "f-status"), model.OperatorIn, model.Constant("{statuses}")), want: true},
		{name: "not_in", cond: model.Expression(model.TopicFactor("orders", "f-status"), model.OperatorNotIn, model.Constant("closed")), want: true},
		{name: "empty_missing", cond: model.Expression(model.Constant("{nothing}"), model.OperatorEmpty, nil), want: true},
		{name: "date_before", cond: model.Expression(model.TopicFactor("orders", "f-date"), model.OperatorLess, model.Constant("2021-09-01")), want: true},
		{name: "previous_snapshot", cond: model.Expression(amount, model.OperatorMore, model.Constant("{&old.amount}")), want: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ok, err := mustCondition(t, test.cond).IsTrue(env)
			require.NoError(t, err)
			require.Equal(t, test.want, ok)
		})
	}
}

func TestConstantParameter(t *testing.T) {
	env := ordersEnv()

	require.Equal(t, value.NumFromInt(100), mustValue(t, model.Constant("{limit}"), env), "single embed keeps its type")
	require.Equal(t, value.Str("open"), mustValue(t, model.Constant("{status}"), env), "falls back to the trigger row")
	require.Equal(t, value.Str("status: open, limit 100"), mustValue(t, model.Constant("status: {status}, limit {limit}"), env))
	require.Equal(t, value.Str("{literal}"), mustValue(t, model.Constant(`\{literal\}`), env))
}

func TestComputedParameter(t *testing.T) {
	env := ordersEnv()
	amount := model.TopicFactor("orders", "f-amount")
	date := model.TopicFactor("orders", "f-date")

	var tests = []struct {
		name  string
		param *model.Parameter
		want  value.Value
	}{
		{name: "add", param: model.Computed(model.ComputedAdd, amount, model.Constant("5"), model.Constant("{missing}")), want: value.NumFromInt(125)},
		{name: "subtract", param: model.Computed(model.ComputedSubtract, amount, model.Constant("{limit}")), want: value.NumFromInt(20)},
		{name: "multiply", param: model.Computed(model.ComputedMultiply, amount, model.Constant("0.5")), want: value.NumFromInt(60)},
		{name: "multiply_with_none", param: model.Computed(model.ComputedMultiply, amount, model.Constant("{missing}")), want: value.Nil},
		{name: "divide", param: model.Computed(model.ComputedDivide, amount, model.Constant("8")), want: value.MustNum("15")},
		{name: "modulus", param: model.Computed(model.ComputedModulus, amount, model.Constant("7")), want: value.NumFromInt(1)},
		{name: "none", param: model.Computed(model.ComputedNone, amount), want: value.NumFromInt(120)},
		{name: "year_of", param: model.Computed(model.ComputedYearOf, date), want: value.NumFromInt(2021)},
		{name: "half_year_of", param: model.Computed(model.ComputedHalfYearOf, date), want: value.NumFromInt(2)},
		{name: "quarter_of", param: model.Computed(model.ComputedQuarterOf, date), want: value.NumFromInt(3)},
		{name: "month_of", param: model.Computed(model.ComputedMonthOf, date), want: value.NumFromInt(8)},
		{name: "week_of_year", param: model.Computed(model.ComputedWeekOfYear, date), want: value.NumFromInt(32)},
		{name: "week_of_month", param: model.Computed(model.ComputedWeekOfMonth, date), want: value.NumFromInt(3)},
		{name: "day_of_month", param: model.Computed(model.ComputedDayOfMonth, date), want: value.NumFromInt(15)},
		{name: "day_of_week", param: model.Computed(model.ComputedDayOfWeek, date), want: value.NumFromInt(1)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := mustValue(t, test.param, env)
			require.True(t, value.Equals(test.want, got), "want %s, got %s", test.want, got)
		})
	}

	t.Run("case_then", func(t *testing.T) {
		big := model.Constant("big")
		big.On = model.Expression(amount, model.OperatorMore, model.Constant("1000"))
		medium := model.Constant("medium")
		medium.On = model.Expression(amount, model.OperatorMore, model.Constant("100"))
		small := model.Constant("small")

		require.Equal(t, value.Str("medium"), mustValue(t, model.Computed(model.ComputedCaseThen, big, medium, small), env))
		require.True(t, value.IsNone(mustValue(t, model.Computed(model.ComputedCaseThen, big), env)))
	})

	t.Run("division_by_zero", func(t *testing.T) {
		compiled, err := condition.CompileParameter(model.Computed(model.ComputedDivide, amount, model.Constant("0")), ordersScope())
		require.NoError(t, err)
		_, err = compiled.Value(env)
		require.ErrorIs(t, err, flowerrors.ErrRuntime)
	})
}

func TestTopicFactorWithoutRow(t *testing.T) {
	compiled, err := condition.CompileParameter(model.TopicFactor("orders", "f-amount"), ordersScope())
	require.NoError(t, err)

	_, err = compiled.Value(&condition.Bindings{})
	require.ErrorIs(t, err, flowerrors.ErrRuntime)

	bound := condition.Bind(&condition.Bindings{}, "orders", value.Map{"amount": value.NumFromInt(3)})
	v, err := compiled.Value(bound)
	require.NoError(t, err)
	require.Equal(t, value.NumFromInt(3), v)
}

func TestCompileErrors(t *testing.T) {
	var tests = []struct {
		name    string
		cond    *model.ParameterCondition
		kind    error
		subject string
	}{
		{
			name:    "unknown_topic",
			cond:    model.Expression(model.TopicFactor("nope", "f-amount"), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrSchemaNotFound,
			subject: "nope.f-amount",
		},
		{
			name:    "unknown_factor",
			cond:    model.Expression(model.TopicFactor("orders", "nope"), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrSchemaNotFound,
			subject: "orders.nope",
		},
		{
			name:    "blank_constant",
			cond:    model.Expression(model.Constant("  "), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrMissingParameter,
			subject: "constant",
		},
		{
			name:    "year_of_arity",
			cond:    model.Expression(model.Computed(model.ComputedYearOf), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrMissingParameter,
			subject: "year-of",
		},
		{
			name:    "add_arity",
			cond:    model.Expression(model.Computed(model.ComputedAdd, model.Constant("1")), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrMissingParameter,
			subject: "add",
		},
		{
			name:    "missing_right",
			cond:    model.Expression(model.Constant("1"), model.OperatorEquals, nil),
			kind:    flowerrors.ErrMissingParameter,
			subject: "equals",
		},
		{
			name:    "unknown_operator",
			cond:    model.Expression(model.Constant("1"), "like", model.Constant("1")),
			kind:    flowerrors.ErrNotSupported,
			subject: "like",
		},
		{
			name:    "malformed_template",
			cond:    model.Expression(model.Constant("{a"), model.OperatorEmpty, nil),
			kind:    flowerrors.ErrParse,
			subject: "{a",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := condition.CompileCondition(test.cond, ordersScope())
			require.ErrorIs(t, err, test.kind)

			var compileErr *condition.CompilationError
			require.True(t, errors.As(err, &compileErr))
			require.Equal(t, test.subject, compileErr.Subject)
		})
	}
}

func TestPrerequisite(t *testing.T) {
	compiled, err := condition.CompilePrerequisite(false, model.Expression(model.Constant("1"), model.OperatorEmpty, nil), ordersScope())
	require.NoError(t, err)
	require.Equal(t, condition.Always, compiled)

	compiled, err = condition.CompilePrerequisite(true, model.Expression(model.Constant("1"), model.OperatorEmpty, nil), ordersScope())
	require.NoError(t, err)
	ok, err := compiled.IsTrue(ordersEnv())
	require.NoError(t, err)
	require.False(t, ok)
}
