// Package value implements the topic value model: a closed set of variants that any datum
// inside a topic row can take. Values are immutable once constructed and are shared freely
// between executions; every transformation produces a new value.
package value

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindStr
	KindNum
	KindBool
	KindDateTime
	KindDate
	KindTime
	KindMap
	KindVec
)

var kindNames = [...]string{
	KindNone:     "none",
	KindStr:      "str",
	KindNum:      "num",
	KindBool:     "bool",
	KindDateTime: "datetime",
	KindDate:     "date",
	KindTime:     "time",
	KindMap:      "map",
	KindVec:      "vec",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a topic value. The set of implementations is closed to this package.
type Value interface {
	Kind() Kind
	String() string
	isValue()
}

type (
	// None is the absent value.
	None struct{}

	// Str is a string value.
	Str string

	// Num is an arbitrary-precision decimal.
	Num struct {
		d decimal.Decimal
	}

	// Bool is a boolean value.
	Bool bool

	// DateTime is a point in time with second (or finer) precision.
	DateTime struct {
		t time.Time
	}

	// Date is a calendar date, stored at midnight UTC.
	Date struct {
		t time.Time
	}

	// Time is a time of day, stored on the zero date in UTC.
	Time struct {
		t time.Time
	}

	// Map is a string keyed collection of values.
	Map map[string]Value

	// Vec is an ordered sequence of values.
	Vec []Value
)

// Nil is the shared None value.
var Nil Value = None{}

func (None) Kind() Kind     { return KindNone }
func (Str) Kind() Kind      { return KindStr }
func (Num) Kind() Kind      { return KindNum }
func (Bool) Kind() Kind     { return KindBool }
func (DateTime) Kind() Kind { return KindDateTime }
func (Date) Kind() Kind     { return KindDate }
func (Time) Kind() Kind     { return KindTime }
func (Map) Kind() Kind      { return KindMap }
func (Vec) Kind() Kind      { return KindVec }

func (None) isValue()     {}
func (Str) isValue()      {}
func (Num) isValue()      {}
func (Bool) isValue()     {}
func (DateTime) isValue() {}
func (Date) isValue()     {}
func (Time) isValue()     {}
func (Map) isValue()      {}
func (Vec) isValue()      {}

const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
)

func (None) String() string { return "" }
func (s Str) String() string { return string(s) }
func (n Num) String() string { return n.d.String() }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (d DateTime) String() string {
	if d.t.Nanosecond() != 0 {
		return d.t.Format("2006-01-02 15:04:05.999999999")
	}
	return d.t.Format(DateTimeLayout)
}

func (d Date) String() string { return d.t.Format(DateLayout) }

func (t Time) String() string {
	if t.t.Nanosecond() != 0 {
		return t.t.Format("15:04:05.999999999")
	}
	return t.t.Format(TimeLayout)
}

func (m Map) String() string {
	keys := m.Keys()
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(Or(m[k]).String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (v Vec) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(Or(e).String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Decimal returns the underlying decimal.
func (n Num) Decimal() decimal.Decimal { return n.d }

// Time returns the underlying instant.
func (d DateTime) Time() time.Time { return d.t }

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time { return d.t }

// Time returns the time of day on the zero date.
func (t Time) Time() time.Time { return t.t }

// Keys returns the map keys in ascending order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the entry for key, or None.
func (m Map) Get(key string) Value {
	if m == nil {
		return Nil
	}
	return Or(m[key])
}

// With returns a copy of m with key set to v.
func (m Map) With(key string, v Value) Map {
	out := make(Map, len(m)+1)
	for k, e := range m {
		out[k] = e
	}
	out[key] = Or(v)
	return out
}

// Without returns a copy of m without key.
func (m Map) Without(key string) Map {
	out := make(Map, len(m))
	for k, e := range m {
		if k != key {
			out[k] = e
		}
	}
	return out
}

// NewStr returns a string value.
func NewStr(s string) Value { return Str(s) }

// NewBool returns a boolean value.
func NewBool(b bool) Value { return Bool(b) }

// NewNum returns a decimal value.
func NewNum(d decimal.Decimal) Value { return Num{d: d} }

// NumFromInt returns a decimal value for an integer.
func NumFromInt(i int64) Value { return Num{d: decimal.NewFromInt(i)} }

// NumFromString parses a decimal literal.
func NumFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return Num{d: d}, nil
}

// MustNum parses a decimal literal and panics on failure. Intended for tests and constants.
func MustNum(s string) Value {
	v, err := NumFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// NewDateTime returns a datetime value.
func NewDateTime(t time.Time) Value { return DateTime{t: t} }

// NewDate returns the calendar date of t.
func NewDate(t time.Time) Value {
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// DateOf returns a date value.
func DateOf(year int, month time.Month, day int) Value {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// NewTime returns the time of day of t.
func NewTime(t time.Time) Value {
	return Time{t: time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}
}

// TimeOf returns a time of day value.
func TimeOf(hour, minute, second int) Value {
	return Time{t: time.Date(0, 1, 1, hour, minute, second, 0, time.UTC)}
}

// NewMap copies entries into a map value, replacing nil entries with None.
func NewMap(entries map[string]Value) Map {
	m := make(Map, len(entries))
	for k, v := range entries {
		m[k] = Or(v)
	}
	return m
}

// NewVec copies elements into a vec value, replacing nil elements with None.
func NewVec(elements ...Value) Vec {
	v := make(Vec, len(elements))
	for i, e := range elements {
		v[i] = Or(e)
	}
	return v
}

// Or maps a nil interface to None.
func Or(v Value) Value {
	if v == nil {
		return Nil
	}
	return v
}

// IsNone reports whether v is absent.
func IsNone(v Value) bool {
	return v == nil || v.Kind() == KindNone
}

// IsEmpty reports whether v is None, an empty string, an empty map or an empty vec.
func IsEmpty(v Value) bool {
	switch t := Or(v).(type) {
	case None:
		return true
	case Str:
		return len(t) == 0
	case Map:
		return len(t) == 0
	case Vec:
		return len(t) == 0
	default:
		return false
	}
}

// IsBlank reports whether v is empty or a string of whitespace only.
func IsBlank(v Value) bool {
	if s, ok := v.(Str); ok {
		return strings.TrimSpace(string(s)) == ""
	}
	return IsEmpty(v)
}
