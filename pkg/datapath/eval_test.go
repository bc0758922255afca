package datapath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

func order() value.Map {
	return value.Map{
		"customer": value.Map{"name": value.Str("Ada Lovelace"), "email": value.Str("ada@example.com")},
		"items": value.Vec{
			value.Map{"code": value.Str("A"), "price": value.MustNum("10.5"), "tags": value.Vec{value.Str("x"), value.Str("y")}},
			value.Map{"code": value.Str("B"), "price": value.NumFromInt(4)},
			value.Map{"code": value.Str("A"), "price": value.NumFromInt(1)},
		},
		"orderDate": value.DateOf(2021, time.January, 31),
		"dueDate":   value.Str("2021-02-28"),
		"note":      value.Str("  mixed Case  "),
	}
}

func eval(t *testing.T, text string, root value.Value) value.Value {
	t.Helper()
	path, err := Parse(text)
	require.NoError(t, err)
	v, err := Evaluate(path, root)
	require.NoError(t, err)
	return v
}

func TestEvaluateNavigation(t *testing.T) {
	root := order()

	require.Equal(t, value.Str("Ada Lovelace"), eval(t, "customer.name", root))
	require.True(t, value.IsNone(eval(t, "customer.phone", root)))
	require.True(t, value.IsNone(eval(t, "missing.deeper.still", root)))
	require.Equal(t, value.Str("B"), eval(t, "items.1.code", root))
	require.True(t, value.IsNone(eval(t, "items.9.code", root)))

	t.Run("projection_over_vec", func(t *testing.T) {
		require.Equal(t, value.Vec{value.Str("A"), value.Str("B"), value.Str("A")}, eval(t, "items.code", root))
	})

	t.Run("projection_flattens_nested_vecs", func(t *testing.T) {
		require.Equal(t, value.Vec{value.Str("x"), value.Str("y"), value.Nil, value.Nil}, eval(t, "items.tags", root))
	})

	t.Run("type_mismatch", func(t *testing.T) {
		path := MustParse("customer.name.first")
		_, err := Evaluate(path, root)
		require.ErrorIs(t, err, flowerrors.ErrTypeMismatch)

		path = MustParse("customer.0")
		_, err = Evaluate(path, root)
		require.ErrorIs(t, err, flowerrors.ErrTypeMismatch)
	})
}

func TestEvaluateFunctions(t *testing.T) {
	root := order()

	var tests = []struct {
		path string
		want value.Value
	}{
		{path: "items.&count", want: value.NumFromInt(3)},
		{path: "&count(items)", want: value.NumFromInt(3)},
		{path: "missing.&count", want: value.NumFromInt(0)},
		{path: "customer.name.&length", want: value.NumFromInt(12)},
		{path: "items.code.&distinct.&join", want: value.Str("A,B")},
		{path: "items.code.&join(' | ')", want: value.Str("A | B | A")},
		{path: "items.price.&sum", want: value.MustNum("15.5")},
		{path: "items.price.&max", want: value.MustNum("10.5")},
		{path: "items.price.&minNum", want: value.NumFromInt(1)},
		{path: "customer.name.&upper", want: value.Str("ADA LOVELACE")},
		{path: "note.&trim.&lower", want: value.Str("mixed case")},
		{path: "customer.email.&contains('@')", want: value.Bool(true)},
		{path: "items.code.&contains('C')", want: value.Bool(false)},
		{path: "customer.name.&startsWith('Ada')", want: value.Bool(true)},
		{path: "customer.name.&endsWith('ace')", want: value.Bool(true)},
		{path: "customer.name.&indexOf('Love')", want: value.NumFromInt(4)},
		{path: "items.code.&indexOf('B')", want: value.NumFromInt(1)},
		{path: "customer.name.&replace('a', 'o')", want: value.Str("Ado Loveloce")},
		{path: "customer.name.&replaceFirst('a', 'o')", want: value.Str("Ado Lovelace")},
		{path: "customer.name.&slice(0, 3)", want: value.Str("Ada")},
		{path: "customer.name.&slice(-4)", want: value.Str("lace")},
		{path: "items.code.&slice(1)", want: value.Vec{value.Str("B"), value.Str("A")}},
		{path: "missing.&isEmpty", want: value.Bool(true)},
		{path: "note.&isNotBlank", want: value.Bool(true)},
		{path: "&isBlank(missing)", want: value.Bool(true)},
		{path: "&dayDiff(dueDate, orderDate)", want: value.NumFromInt(28)},
		{path: "dueDate.&monthDiff(orderDate)", want: value.NumFromInt(1)},
		{path: "&yearDiff(dueDate, orderDate)", want: value.NumFromInt(0)},
		{path: "&join(items.code, {customer.name}': ')", want: value.Str("AAda Lovelace: BAda Lovelace: A")},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			got := eval(t, test.path, root)
			require.True(t, value.Equals(test.want, got), "want %s, got %s", test.want, got)
			require.Equal(t, test.want.Kind(), got.Kind())
		})
	}
}

func TestEvaluateAggregateErrors(t *testing.T) {
	root := value.Map{"mixed": value.Vec{value.NumFromInt(3), value.Str("a")}}

	_, err := Evaluate(MustParse("mixed.&min"), root)
	require.ErrorIs(t, err, flowerrors.ErrNotSupported)

	_, err = Evaluate(MustParse("&sum(mixed)"), root)
	require.ErrorIs(t, err, flowerrors.ErrNotSupported)
}

func TestEvaluateIndexOutOfRange(t *testing.T) {
	root := value.Map{"code": value.Str("abc")}

	for _, path := range []string{"code.&slice(99999999999999999999)", "code.&slice(0, -99999999999999999999)"} {
		t.Run(path, func(t *testing.T) {
			_, err := Evaluate(MustParse(path), root)
			require.ErrorIs(t, err, flowerrors.ErrTypeMismatch)
			require.ErrorContains(t, err, "out of range")
		})
	}
}

func TestEvaluateEnv(t *testing.T) {
	fixed := time.Date(2022, time.June, 1, 12, 0, 0, 0, time.UTC)
	env := Env{
		Roots: []value.Value{
			value.Map{"amount": value.NumFromInt(5)},
			value.Map{"amount": value.NumFromInt(7), "name": value.Str("row")},
		},
		Previous: value.Map{"amount": value.NumFromInt(2)},
		Clock:    func() time.Time { return fixed },
	}

	v, err := MustParse("amount").Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.NumFromInt(5), v, "first root wins")

	v, err = MustParse("name").Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.Str("row"), v, "later roots are consulted")

	v, err = MustParse("&old.amount").Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.NumFromInt(2), v)

	v, err = MustParse("&now").Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.NewDateTime(fixed), v)

	v, err = MustParse("&dayDiff(&now, '2022-05-30')").Evaluate(env)
	require.NoError(t, err)
	require.True(t, value.Equals(value.NumFromInt(2), v))
}

func TestTemplateEvaluate(t *testing.T) {
	env := Env{Roots: []value.Value{value.Map{"n": value.NumFromInt(3), "who": value.Str("x")}}}

	tmpl, err := ParseTemplate("{n}")
	require.NoError(t, err)
	v, err := tmpl.Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.NumFromInt(3), v)

	tmpl, err = ParseTemplate("{who} has {n}")
	require.NoError(t, err)
	v, err = tmpl.Evaluate(env)
	require.NoError(t, err)
	require.Equal(t, value.Str("x has 3"), v)
}
