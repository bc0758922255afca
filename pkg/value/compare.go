package value

import (
	"fmt"
	"strings"
	"time"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
)

// NotComparableError reports two values that have no common ordering.
type NotComparableError struct {
	Left, Right Value
}

func (e *NotComparableError) Error() string {
	return fmt.Sprintf("cannot compare %s value '%s' with %s value '%s'",
		Or(e.Left).Kind(), Or(e.Left).String(), Or(e.Right).Kind(), Or(e.Right).String())
}

func isTemporal(v Value) bool {
	switch v.(type) {
	case Date, DateTime, Time:
		return true
	}
	return false
}

// Compare orders two values. Numbers and numeric strings compare as decimals, dates,
// datetimes and time-of-day values compare chronologically (a date against a datetime at
// date granularity), booleans compare false < true and strings compare lexicographically.
// Any other pairing fails with ErrNotSupported.
func Compare(a, b Value) (int, error) {
	a, b = Or(a), Or(b)

	if da, ok := ToDecimal(a); ok {
		if db, ok := ToDecimal(b); ok {
			return da.Cmp(db), nil
		}
	}

	if isTemporal(a) || isTemporal(b) {
		ta, okA := ToTemporal(a)
		tb, okB := ToTemporal(b)
		if okA && okB {
			if c, ok := compareTemporal(ta, tb); ok {
				return c, nil
			}
		}
		return 0, notComparable(a, b)
	}

	if ba, ok := a.(Bool); ok {
		bb, err := TryToBool(b)
		if err != nil {
			return 0, notComparable(a, b)
		}
		return compareBool(bool(ba), bb), nil
	}
	if bb, ok := b.(Bool); ok {
		ba, err := TryToBool(a)
		if err != nil {
			return 0, notComparable(a, b)
		}
		return compareBool(ba, bool(bb)), nil
	}

	sa, okA := a.(Str)
	sb, okB := b.(Str)
	if okA && okB {
		return strings.Compare(string(sa), string(sb)), nil
	}

	return 0, notComparable(a, b)
}

func notComparable(a, b Value) error {
	return flowerrors.With(&NotComparableError{Left: a, Right: b}, flowerrors.ErrNotSupported)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func compareTemporal(a, b Value) (int, bool) {
	switch ta := a.(type) {
	case Time:
		if tb, ok := b.(Time); ok {
			return compareTimes(ta.t, tb.t), true
		}
	case Date:
		switch tb := b.(type) {
		case Date:
			return compareTimes(ta.t, tb.t), true
		case DateTime:
			return compareTimes(ta.t, truncateToDate(tb.t)), true
		}
	case DateTime:
		switch tb := b.(type) {
		case DateTime:
			return compareTimes(ta.t, tb.t), true
		case Date:
			return compareTimes(truncateToDate(ta.t), tb.t), true
		}
	}
	return 0, false
}

// Equals reports whether two values are equal. Two empty values are equal; an empty value
// never equals a non-empty one. Maps and vecs compare element-wise.
func Equals(a, b Value) bool {
	a, b = Or(a), Or(b)
	emptyA, emptyB := IsEmpty(a), IsEmpty(b)
	if emptyA || emptyB {
		return emptyA && emptyB
	}

	switch ta := a.(type) {
	case Map:
		tb, ok := b.(Map)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, v := range ta {
			other, ok := tb[k]
			if !ok || !Equals(v, other) {
				return false
			}
		}
		return true
	case Vec:
		tb, ok := b.(Vec)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equals(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}

	if c, err := Compare(a, b); err == nil {
		return c == 0
	}
	return a.String() == b.String()
}
