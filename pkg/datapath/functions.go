package datapath

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

// Func identifies one of the predefined functions.
type Func uint8

const (
	FuncCount Func = iota + 1
	FuncLength
	FuncJoin
	FuncDistinct
	FuncSum
	FuncAvg
	FuncMin
	FuncMax
	FuncMinNum
	FuncMaxNum
	FuncMinDate
	FuncMaxDate
	FuncMinTime
	FuncMaxTime
	FuncMinDatetime
	FuncMaxDatetime
	FuncUpper
	FuncLower
	FuncTrim
	FuncContains
	FuncStartsWith
	FuncEndsWith
	FuncIndexOf
	FuncReplace
	FuncReplaceFirst
	FuncSlice
	FuncIsEmpty
	FuncIsNotEmpty
	FuncIsBlank
	FuncIsNotBlank
	FuncDayDiff
	FuncMonthDiff
	FuncYearDiff
	FuncNow
	FuncOld
)

type invocation struct {
	env     Env
	subject value.Value
	args    []value.Value
}

type funcDef struct {
	name string
	// subject is set for functions that operate on a value: the context value, or the
	// first parameter when the call is context free.
	subject  bool
	min, max int
	call     func(fn Func, inv invocation) (value.Value, error)
}

var funcDefs = [...]funcDef{
	FuncCount:        {name: "count", subject: true, call: count},
	FuncLength:       {name: "length", subject: true, call: length},
	FuncJoin:         {name: "join", subject: true, max: 1, call: join},
	FuncDistinct:     {name: "distinct", subject: true, call: distinct},
	FuncSum:          {name: "sum", subject: true, call: aggregate(value.Sum)},
	FuncAvg:          {name: "avg", subject: true, call: aggregate(value.Avg)},
	FuncMin:          {name: "min", subject: true, call: aggregate(value.MinOf)},
	FuncMax:          {name: "max", subject: true, call: aggregate(value.MaxOf)},
	FuncMinNum:       {name: "minNum", subject: true, call: aggregate(value.MinDecimalOf)},
	FuncMaxNum:       {name: "maxNum", subject: true, call: aggregate(value.MaxDecimalOf)},
	FuncMinDate:      {name: "minDate", subject: true, call: aggregate(value.MinDateOf)},
	FuncMaxDate:      {name: "maxDate", subject: true, call: aggregate(value.MaxDateOf)},
	FuncMinTime:      {name: "minTime", subject: true, call: aggregate(value.MinTimeOf)},
	FuncMaxTime:      {name: "maxTime", subject: true, call: aggregate(value.MaxTimeOf)},
	FuncMinDatetime:  {name: "minDatetime", subject: true, call: aggregate(value.MinDateTimeOf)},
	FuncMaxDatetime:  {name: "maxDatetime", subject: true, call: aggregate(value.MaxDateTimeOf)},
	FuncUpper:        {name: "upper", subject: true, call: text(strings.ToUpper)},
	FuncLower:        {name: "lower", subject: true, call: text(strings.ToLower)},
	FuncTrim:         {name: "trim", subject: true, call: text(strings.TrimSpace)},
	FuncContains:     {name: "contains", subject: true, min: 1, max: 1, call: contains},
	FuncStartsWith:   {name: "startsWith", subject: true, min: 1, max: 1, call: affix(strings.HasPrefix)},
	FuncEndsWith:     {name: "endsWith", subject: true, min: 1, max: 1, call: affix(strings.HasSuffix)},
	FuncIndexOf:      {name: "indexOf", subject: true, min: 1, max: 1, call: indexOf},
	FuncReplace:      {name: "replace", subject: true, min: 2, max: 2, call: replace(-1)},
	FuncReplaceFirst: {name: "replaceFirst", subject: true, min: 2, max: 2, call: replace(1)},
	FuncSlice:        {name: "slice", subject: true, min: 1, max: 2, call: slice},
	FuncIsEmpty:      {name: "isEmpty", subject: true, call: predicate(value.IsEmpty, false)},
	FuncIsNotEmpty:   {name: "isNotEmpty", subject: true, call: predicate(value.IsEmpty, true)},
	FuncIsBlank:      {name: "isBlank", subject: true, call: predicate(value.IsBlank, false)},
	FuncIsNotBlank:   {name: "isNotBlank", subject: true, call: predicate(value.IsBlank, true)},
	FuncDayDiff:      {name: "dayDiff", subject: true, min: 1, max: 1, call: dateDiff(dayDiff)},
	FuncMonthDiff:    {name: "monthDiff", subject: true, min: 1, max: 1, call: dateDiff(monthDiff)},
	FuncYearDiff:     {name: "yearDiff", subject: true, min: 1, max: 1, call: dateDiff(yearDiff)},
	FuncNow:          {name: "now", call: now},
	FuncOld:          {name: "old", call: old},
}

var funcsByName = func() map[string]Func {
	m := make(map[string]Func, len(funcDefs))
	for i := range funcDefs {
		if funcDefs[i].name != "" {
			m[funcDefs[i].name] = Func(i)
		}
	}
	return m
}()

// LookupFunc finds a function by name.
func LookupFunc(name string) (Func, bool) {
	fn, ok := funcsByName[name]
	return fn, ok
}

func (f Func) def() *funcDef { return &funcDefs[f] }

func (f Func) String() string {
	if int(f) < len(funcDefs) {
		return funcDefs[f].name
	}
	return fmt.Sprintf("func(%d)", uint8(f))
}

// accepts reports whether a call with n parameters is well formed.
func (f Func) accepts(n int, context bool) bool {
	d := f.def()
	args := n
	if d.subject && !context {
		args--
	}
	if args < 0 {
		return false
	}
	return args >= d.min && args <= d.max
}

func (f Func) invoke(env Env, context bool, current value.Value, params []value.Value) (value.Value, error) {
	d := f.def()
	inv := invocation{env: env, subject: value.Or(current), args: params}
	if d.subject && !context {
		inv.subject, inv.args = value.Or(params[0]), params[1:]
	}
	v, err := d.call(f, inv)
	if err != nil {
		return nil, fmt.Errorf("&%s: %w", d.name, err)
	}
	return value.Or(v), nil
}

func (f Func) notSupported(v value.Value) func() error {
	return func() error {
		return flowerrors.With(
			fmt.Errorf("&%s is not supported on '%s'", f, value.Or(v).String()),
			flowerrors.ErrNotSupported,
		)
	}
}

func mismatch(fn Func, v value.Value) error {
	return flowerrors.With(
		fmt.Errorf("&%s cannot apply to %s value", fn, value.Or(v).Kind()),
		flowerrors.ErrTypeMismatch,
	)
}

// asVec reads a single value as a vec of one.
func asVec(v value.Value) value.Vec {
	switch t := value.Or(v).(type) {
	case value.Vec:
		return t
	case value.None:
		return nil
	default:
		return value.Vec{t}
	}
}

func asText(fn Func, v value.Value) (string, error) {
	switch t := value.Or(v).(type) {
	case value.Map, value.Vec:
		return "", mismatch(fn, t)
	default:
		return t.String(), nil
	}
}

var (
	maxIntDecimal = decimal.NewFromInt(math.MaxInt32)
	minIntDecimal = decimal.NewFromInt(math.MinInt32)
)

// asInt reads an index or a count. Values outside the int32 range are a type mismatch.
func asInt(fn Func, v value.Value) (int, error) {
	d, ok := value.ToDecimal(v)
	if !ok {
		return 0, mismatch(fn, v)
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxIntDecimal) || d.LessThan(minIntDecimal) {
		return 0, flowerrors.With(
			fmt.Errorf("&%s: %s is out of range", fn, d.String()),
			flowerrors.ErrTypeMismatch,
		)
	}
	return int(d.IntPart()), nil
}

func count(fn Func, inv invocation) (value.Value, error) {
	switch t := inv.subject.(type) {
	case value.None:
		return value.NumFromInt(0), nil
	case value.Vec:
		return value.NumFromInt(int64(len(t))), nil
	case value.Map:
		return value.NumFromInt(int64(len(t))), nil
	default:
		return value.NumFromInt(1), nil
	}
}

func length(fn Func, inv invocation) (value.Value, error) {
	if value.IsNone(inv.subject) {
		return value.NumFromInt(0), nil
	}
	s, err := asText(fn, inv.subject)
	if err != nil {
		return nil, err
	}
	return value.NumFromInt(int64(utf8.RuneCountInString(s))), nil
}

func join(fn Func, inv invocation) (value.Value, error) {
	sep := ","
	if len(inv.args) == 1 {
		sep = value.Or(inv.args[0]).String()
	}
	elements := asVec(inv.subject)
	parts := make([]string, 0, len(elements))
	for _, e := range elements {
		s, err := asText(fn, e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return value.Str(strings.Join(parts, sep)), nil
}

func distinct(fn Func, inv invocation) (value.Value, error) {
	if value.IsNone(inv.subject) {
		return value.Nil, nil
	}
	elements := asVec(inv.subject)
	out := make(value.Vec, 0, len(elements))
	for _, e := range elements {
		seen := false
		for _, kept := range out {
			if value.Equals(kept, e) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, e)
		}
	}
	return out, nil
}

func aggregate(reduce func(value.Vec, func() error) (value.Value, error)) func(Func, invocation) (value.Value, error) {
	return func(fn Func, inv invocation) (value.Value, error) {
		if _, ok := inv.subject.(value.Map); ok {
			return nil, fn.notSupported(inv.subject)()
		}
		return reduce(asVec(inv.subject), fn.notSupported(inv.subject))
	}
}

func text(transform func(string) string) func(Func, invocation) (value.Value, error) {
	return func(fn Func, inv invocation) (value.Value, error) {
		if value.IsNone(inv.subject) {
			return value.Nil, nil
		}
		s, err := asText(fn, inv.subject)
		if err != nil {
			return nil, err
		}
		return value.Str(transform(s)), nil
	}
}

func contains(fn Func, inv invocation) (value.Value, error) {
	switch t := inv.subject.(type) {
	case value.None:
		return value.Bool(false), nil
	case value.Vec:
		for _, e := range t {
			if value.Equals(e, inv.args[0]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	}
	s, err := asText(fn, inv.subject)
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.Contains(s, value.Or(inv.args[0]).String())), nil
}

func affix(test func(s, affix string) bool) func(Func, invocation) (value.Value, error) {
	return func(fn Func, inv invocation) (value.Value, error) {
		if value.IsNone(inv.subject) {
			return value.Bool(false), nil
		}
		s, err := asText(fn, inv.subject)
		if err != nil {
			return nil, err
		}
		return value.Bool(test(s, value.Or(inv.args[0]).String())), nil
	}
}

func indexOf(fn Func, inv invocation) (value.Value, error) {
	switch t := inv.subject.(type) {
	case value.None:
		return value.NumFromInt(-1), nil
	case value.Vec:
		for i, e := range t {
			if value.Equals(e, inv.args[0]) {
				return value.NumFromInt(int64(i)), nil
			}
		}
		return value.NumFromInt(-1), nil
	}
	s, err := asText(fn, inv.subject)
	if err != nil {
		return nil, err
	}
	i := strings.Index(s, value.Or(inv.args[0]).String())
	if i > 0 {
		i = utf8.RuneCountInString(s[:i])
	}
	return value.NumFromInt(int64(i)), nil
}

func replace(n int) func(Func, invocation) (value.Value, error) {
	return func(fn Func, inv invocation) (value.Value, error) {
		if value.IsNone(inv.subject) {
			return value.Nil, nil
		}
		s, err := asText(fn, inv.subject)
		if err != nil {
			return nil, err
		}
		old := value.Or(inv.args[0]).String()
		replacement := value.Or(inv.args[1]).String()
		return value.Str(strings.Replace(s, old, replacement, n)), nil
	}
}

func clamp(i, n int) int {
	if i < 0 {
		i += n
	}
	switch {
	case i < 0:
		return 0
	case i > n:
		return n
	}
	return i
}

func slice(fn Func, inv invocation) (value.Value, error) {
	if value.IsNone(inv.subject) {
		return value.Nil, nil
	}
	start, err := asInt(fn, inv.args[0])
	if err != nil {
		return nil, err
	}

	if vec, ok := inv.subject.(value.Vec); ok {
		end := len(vec)
		if len(inv.args) == 2 {
			if end, err = asInt(fn, inv.args[1]); err != nil {
				return nil, err
			}
		}
		from, to := clamp(start, len(vec)), clamp(end, len(vec))
		if from >= to {
			return value.Vec{}, nil
		}
		return append(value.Vec{}, vec[from:to]...), nil
	}

	s, err := asText(fn, inv.subject)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	end := len(runes)
	if len(inv.args) == 2 {
		if end, err = asInt(fn, inv.args[1]); err != nil {
			return nil, err
		}
	}
	from, to := clamp(start, len(runes)), clamp(end, len(runes))
	if from >= to {
		return value.Str(""), nil
	}
	return value.Str(string(runes[from:to])), nil
}

func predicate(test func(value.Value) bool, negate bool) func(Func, invocation) (value.Value, error) {
	return func(_ Func, inv invocation) (value.Value, error) {
		return value.Bool(test(inv.subject) != negate), nil
	}
}

func dateDiff(diff func(end, start time.Time) int) func(Func, invocation) (value.Value, error) {
	return func(fn Func, inv invocation) (value.Value, error) {
		if value.IsBlank(inv.subject) || value.IsBlank(inv.args[0]) {
			return value.Nil, nil
		}
		end, ok := value.ToDateTime(inv.subject)
		if !ok {
			return nil, mismatch(fn, inv.subject)
		}
		start, ok := value.ToDateTime(inv.args[0])
		if !ok {
			return nil, mismatch(fn, inv.args[0])
		}
		return value.NumFromInt(int64(diff(dateOnly(end), dateOnly(start)))), nil
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayDiff(end, start time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

// monthDiff counts whole months from start to end. An end on the last day of a shorter
// month completes the month.
func monthDiff(end, start time.Time) int {
	if end.Before(start) {
		return -monthDiff(start, end)
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() && !isLastDayOfMonth(end) {
		months--
	}
	return months
}

func yearDiff(end, start time.Time) int {
	return monthDiff(end, start) / 12
}

func now(_ Func, inv invocation) (value.Value, error) {
	return value.NewDateTime(inv.env.now()), nil
}

func old(_ Func, inv invocation) (value.Value, error) {
	return value.Or(inv.env.Previous), nil
}
