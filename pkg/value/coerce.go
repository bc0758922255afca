package value

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
)

// NotConvertibleError carries the value that failed a coercion.
type NotConvertibleError struct {
	Value  Value
	Target Kind
}

func (e *NotConvertibleError) Error() string {
	return fmt.Sprintf("cannot convert %s value '%s' to %s", Or(e.Value).Kind(), Or(e.Value).String(), e.Target)
}

func notConvertible(v Value, target Kind) error {
	return flowerrors.With(&NotConvertibleError{Value: Or(v), Target: target}, flowerrors.ErrTypeMismatch)
}

// TryToBool coerces v to a boolean. On failure the returned error is a *NotConvertibleError
// holding the original value.
func TryToBool(v Value) (bool, error) {
	switch t := Or(v).(type) {
	case Bool:
		return bool(t), nil
	case Str:
		switch strings.ToLower(strings.TrimSpace(string(t))) {
		case "1", "true", "t", "yes", "y":
			return true, nil
		case "0", "false", "f", "no", "n":
			return false, nil
		}
	case Num:
		if t.d.Equal(decimal.NewFromInt(1)) {
			return true, nil
		}
		if t.d.IsZero() {
			return false, nil
		}
	}
	return false, notConvertible(v, KindBool)
}

// ToDecimal coerces numbers and numeric strings.
func ToDecimal(v Value) (decimal.Decimal, bool) {
	switch t := Or(v).(type) {
	case Num:
		return t.d, true
	case Str:
		s := strings.TrimSpace(string(t))
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

var (
	dateLayouts = []string{
		DateLayout,
		"2006/01/02",
		"20060102",
	}
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006/01/02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	}
	timeLayouts = []string{
		"15:04:05.999999999",
		"15:04",
	}
)

func parseWith(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate parses a string in one of the supported date layouts.
func ParseDate(s string) (Value, bool) {
	t, ok := parseWith(dateLayouts, strings.TrimSpace(s))
	if !ok {
		return nil, false
	}
	return NewDate(t), true
}

// ParseDateTime parses a string in one of the supported datetime layouts.
func ParseDateTime(s string) (Value, bool) {
	t, ok := parseWith(dateTimeLayouts, strings.TrimSpace(s))
	if !ok {
		return nil, false
	}
	return NewDateTime(t), true
}

// ParseTime parses a string in one of the supported time of day layouts.
func ParseTime(s string) (Value, bool) {
	t, ok := parseWith(timeLayouts, strings.TrimSpace(s))
	if !ok {
		return nil, false
	}
	return NewTime(t), true
}

// ToTemporal coerces v into one of Date, DateTime or Time. Strings are tried as datetime,
// then date, then time.
func ToTemporal(v Value) (Value, bool) {
	switch t := Or(v).(type) {
	case Date, DateTime, Time:
		return t, true
	case Str:
		if dt, ok := ParseDateTime(string(t)); ok {
			return dt, true
		}
		if d, ok := ParseDate(string(t)); ok {
			return d, true
		}
		if tm, ok := ParseTime(string(t)); ok {
			return tm, true
		}
	}
	return nil, false
}

// ToDateTime coerces dates (as midnight), datetimes and datetime or date strings.
func ToDateTime(v Value) (time.Time, bool) {
	tv, ok := ToTemporal(v)
	if !ok {
		return time.Time{}, false
	}
	switch t := tv.(type) {
	case DateTime:
		return t.t, true
	case Date:
		return t.t, true
	}
	return time.Time{}, false
}

// CastTo converts v to the target kind. None and blank strings cast to None for every kind
// but Str.
func CastTo(v Value, target Kind) (Value, error) {
	v = Or(v)
	if v.Kind() == target {
		return v, nil
	}
	if IsNone(v) {
		return Nil, nil
	}
	if target != KindStr && IsBlank(v) {
		return Nil, nil
	}

	switch target {
	case KindNone:
		return Nil, nil
	case KindStr:
		switch v.(type) {
		case Map, Vec:
			return nil, notConvertible(v, target)
		}
		return Str(v.String()), nil
	case KindNum:
		if d, ok := ToDecimal(v); ok {
			return Num{d: d}, nil
		}
		if b, ok := v.(Bool); ok {
			if b {
				return NumFromInt(1), nil
			}
			return NumFromInt(0), nil
		}
	case KindBool:
		b, err := TryToBool(v)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case KindDate:
		if t, ok := ToDateTime(v); ok {
			return NewDate(t), nil
		}
	case KindDateTime:
		if t, ok := ToDateTime(v); ok {
			return NewDateTime(t), nil
		}
	case KindTime:
		if tv, ok := ToTemporal(v); ok {
			switch t := tv.(type) {
			case Time:
				return t, nil
			case DateTime:
				return NewTime(t.t), nil
			}
		}
	case KindVec:
		return Vec{v}, nil
	}
	return nil, notConvertible(v, target)
}
