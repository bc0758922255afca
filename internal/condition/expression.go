package condition

import (
	"fmt"
	"strings"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

type test func(left, right value.Value) (bool, error)

// operator pairs the positive and the negative test of an expression operator.
type operator struct {
	unary   bool
	isTrue  test
	isFalse test
}

var operators = map[model.ExpressionOperator]operator{
	model.OperatorEmpty: {
		unary:   true,
		isTrue:  func(l, _ value.Value) (bool, error) { return value.IsEmpty(l), nil },
		isFalse: func(l, _ value.Value) (bool, error) { return isPresent(l), nil },
	},
	model.OperatorNotEmpty: {
		unary:   true,
		isTrue:  func(l, _ value.Value) (bool, error) { return isPresent(l), nil },
		isFalse: func(l, _ value.Value) (bool, error) { return value.IsEmpty(l), nil },
	},
	model.OperatorEquals: {
		isTrue:  func(l, r value.Value) (bool, error) { return value.Equals(l, r), nil },
		isFalse: notEquals,
	},
	model.OperatorNotEquals: {
		isTrue:  notEquals,
		isFalse: func(l, r value.Value) (bool, error) { return value.Equals(l, r), nil },
	},
	model.OperatorLess: {
		isTrue:  ordered(func(c int) bool { return c < 0 }),
		isFalse: ordered(func(c int) bool { return c >= 0 }),
	},
	model.OperatorLessEquals: {
		isTrue:  ordered(func(c int) bool { return c <= 0 }),
		isFalse: ordered(func(c int) bool { return c > 0 }),
	},
	model.OperatorMore: {
		isTrue:  ordered(func(c int) bool { return c > 0 }),
		isFalse: ordered(func(c int) bool { return c <= 0 }),
	},
	model.OperatorMoreEquals: {
		isTrue:  ordered(func(c int) bool { return c >= 0 }),
		isFalse: ordered(func(c int) bool { return c < 0 }),
	},
	model.OperatorIn: {
		isTrue:  in,
		isFalse: notIn,
	},
	model.OperatorNotIn: {
		isTrue:  notIn,
		isFalse: in,
	},
}

func isPresent(v value.Value) bool {
	switch t := value.Or(v).(type) {
	case value.None:
		return false
	case value.Str:
		return len(t) > 0
	case value.Map:
		return len(t) > 0
	case value.Vec:
		return len(t) > 0
	}
	return true
}

func notEquals(l, r value.Value) (bool, error) {
	return !value.Equals(l, r), nil
}

func ordered(accept func(int) bool) test {
	return func(l, r value.Value) (bool, error) {
		c, err := value.Compare(l, r)
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}
}

// candidates reads the right side of in and not-in: a vec, or a comma separated string.
func candidates(r value.Value) value.Vec {
	switch t := value.Or(r).(type) {
	case value.None:
		return nil
	case value.Vec:
		return t
	case value.Str:
		parts := strings.Split(string(t), ",")
		out := make(value.Vec, 0, len(parts))
		for _, p := range parts {
			out = append(out, value.Str(strings.TrimSpace(p)))
		}
		return out
	default:
		return value.Vec{t}
	}
}

func in(l, r value.Value) (bool, error) {
	for _, c := range candidates(r) {
		if value.Equals(l, c) {
			return true, nil
		}
	}
	return false, nil
}

func notIn(l, r value.Value) (bool, error) {
	for _, c := range candidates(r) {
		if value.Equals(l, c) {
			return false, nil
		}
	}
	return true, nil
}

type expression struct {
	subject  string
	operator operator
	left     Parameter
	right    Parameter
}

func compileExpression(c *model.ParameterCondition, scope *Scope) (Condition, error) {
	subject := string(c.Operator)
	op, ok := operators[c.Operator]
	if !ok {
		return nil, compileError(subject, fmt.Errorf("unknown operator '%s'", c.Operator), flowerrors.ErrNotSupported)
	}
	if c.Left == nil {
		return nil, compileError(subject, fmt.Errorf("left side is not declared"), flowerrors.ErrMissingParameter)
	}
	left, err := CompileParameter(c.Left, scope)
	if err != nil {
		return nil, err
	}

	e := &expression{subject: subject, operator: op, left: left}
	if op.unary {
		return e, nil
	}
	if c.Right == nil {
		return nil, compileError(subject, fmt.Errorf("right side is not declared"), flowerrors.ErrMissingParameter)
	}
	if e.right, err = CompileParameter(c.Right, scope); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *expression) operands(env Env) (value.Value, value.Value, error) {
	left, err := e.left.Value(env)
	if err != nil {
		return nil, nil, err
	}
	if e.right == nil {
		return value.Or(left), value.Nil, nil
	}
	right, err := e.right.Value(env)
	if err != nil {
		return nil, nil, err
	}
	return value.Or(left), value.Or(right), nil
}

func (e *expression) evaluate(env Env, t test) (bool, error) {
	left, right, err := e.operands(env)
	if err != nil {
		return false, err
	}
	ok, err := t(left, right)
	if err != nil {
		return false, evaluationError(e.subject, err)
	}
	return ok, nil
}

func (e *expression) IsTrue(env Env) (bool, error) {
	return e.evaluate(env, e.operator.isTrue)
}

func (e *expression) IsFalse(env Env) (bool, error) {
	return e.evaluate(env, e.operator.isFalse)
}
