package datapath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

func TestParseSegments(t *testing.T) {
	path, err := Parse("order.items.0.&sum")
	require.NoError(t, err)
	require.Len(t, path.Segments, 4)

	require.Equal(t, &PlainSegment{Name: "order"}, path.Segments[0])
	require.Equal(t, &PlainSegment{Name: "items"}, path.Segments[1])
	require.Equal(t, &IndexSegment{Index: 0}, path.Segments[2])

	fn, ok := path.Segments[3].(*FuncSegment)
	require.True(t, ok)
	require.Equal(t, FuncSum, fn.Func)
	require.True(t, fn.Context)
	require.Empty(t, fn.Params)
}

func TestParseParams(t *testing.T) {
	_, err := Parse("&replace(name, 'a,b', -1.5)")
	require.NoError(t, err)

	path, err := Parse("name.&replace('a,b', 'x'{code}'y')")
	require.NoError(t, err)

	fn := path.Segments[1].(*FuncSegment)
	require.Len(t, fn.Params, 2)

	literal, ok := fn.Params[0].(*LiteralParam)
	require.True(t, ok)
	require.Equal(t, value.Str("a,b"), literal.Value)

	concat, ok := fn.Params[1].(*ConcatParam)
	require.True(t, ok)
	require.Len(t, concat.Parts, 3)
	require.Equal(t, "x", concat.Parts[0].Literal)
	require.Equal(t, "code", concat.Parts[1].Path.String())
	require.Equal(t, "y", concat.Parts[2].Literal)

	path, err = Parse("&slice(name, -2)")
	require.NoError(t, err)
	fn = path.Segments[0].(*FuncSegment)
	require.False(t, fn.Context)
	number := fn.Params[1].(*LiteralParam)
	require.True(t, value.Equals(value.NumFromInt(-2), number.Value))
}

func TestParseCoalescesLiteralRuns(t *testing.T) {
	path, err := Parse(`a.&join('x' "y" \, z)`)
	require.NoError(t, err)

	fn := path.Segments[1].(*FuncSegment)
	require.Len(t, fn.Params, 1)
	literal, ok := fn.Params[0].(*LiteralParam)
	require.True(t, ok)
	require.Equal(t, value.Str("x y , z"), literal.Value)
}

func TestParseRoundTrip(t *testing.T) {
	var paths = []string{
		"amount",
		"order.items.0.price",
		"items.&count",
		"items.&count()",
		"&now",
		"&old.amount",
		"&count(items)",
		"items.price.&sum",
		"name.&replace(' ','_')",
		"name.&replaceFirst('it''s','{')",
		"&dayDiff(end,start)",
		"tags.&join('; ')",
		"&join(tags,{prefix}'-'{suffix})",
		"&slice(name,0,-1)",
		"&contains(&distinct(items.code),'A')",
		"a.&slice(1).&upper",
		`name.&startsWith("x\"y")`,
	}

	for _, text := range paths {
		t.Run(text, func(t *testing.T) {
			parsed, err := Parse(text)
			require.NoError(t, err)

			printed := parsed.String()
			reparsed, err := Parse(printed)
			require.NoError(t, err, printed)
			require.Equal(t, printed, reparsed.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	var tests = []struct {
		name   string
		text   string
		pos    int
		reason string
	}{
		{name: "unknown_function", text: "a.&nope", pos: 3, reason: `unknown function "nope"`},
		{name: "unbalanced_open", text: "&count(a", pos: 6, reason: "unbalanced parentheses"},
		{name: "unbalanced_close", text: "a)", pos: 1, reason: "unbalanced parentheses"},
		{name: "malformed_index", text: "a.1x", pos: 2, reason: "malformed index"},
		{name: "empty_segment", text: "a..b", pos: 2, reason: "empty segment"},
		{name: "unexpected_character", text: "a.b$", pos: 3, reason: `unexpected character '$'`},
		{name: "too_many_parameters", text: "a.&upper(1)", pos: 2, reason: "function &upper does not accept 1 parameter(s)"},
		{name: "missing_subject", text: "&count", pos: 0, reason: "function &count does not accept 0 parameter(s)"},
		{name: "empty_parameter", text: "a.&join(,)", pos: 8, reason: "empty parameter"},
		{name: "unterminated_quote", text: "a.&join('x)", pos: 8, reason: "unterminated quote"},
		{name: "unbalanced_braces", text: "a.&join({b)", pos: 8, reason: "unbalanced braces"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.text)
			require.ErrorIs(t, err, flowerrors.ErrParse)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			require.Equal(t, test.pos, parseErr.Pos)
			require.Equal(t, test.reason, parseErr.Reason)
		})
	}
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("Hello {user.name}, you owe {amount.&sum}\\{x\\}")
	require.NoError(t, err)
	require.Len(t, tmpl.Parts, 5)
	require.Equal(t, "Hello ", tmpl.Parts[0].Literal)
	require.Equal(t, "user.name", tmpl.Parts[1].Path.String())
	require.Equal(t, "{x}", tmpl.Parts[4].Literal)

	reparsed, err := ParseTemplate(tmpl.String())
	require.NoError(t, err)
	require.Equal(t, tmpl.String(), reparsed.String())

	single, err := ParseTemplate("{amount}")
	require.NoError(t, err)
	path, ok := single.SinglePath()
	require.True(t, ok)
	require.Equal(t, "amount", path.String())

	plain, err := ParseTemplate("just text")
	require.NoError(t, err)
	text, ok := plain.Literal()
	require.True(t, ok)
	require.Equal(t, "just text", text)

	_, err = ParseTemplate("broken {a")
	require.ErrorIs(t, err, flowerrors.ErrParse)

	_, err = ParseTemplate("broken }")
	require.ErrorIs(t, err, flowerrors.ErrParse)
}
