package value

import (
	"time"

	"github.com/shopspring/decimal"
)

type family uint8

const (
	familyDecimal family = iota + 1
	familyDate
	familyTime
	familyDateTime
)

type candidate struct {
	value   Value
	family  family
	decimal decimal.Decimal
	instant time.Time
}

func classify(v Value) (candidate, bool) {
	switch t := v.(type) {
	case Num:
		return candidate{value: t, family: familyDecimal, decimal: t.d}, true
	case Date:
		return candidate{value: t, family: familyDate, instant: t.t}, true
	case DateTime:
		return candidate{value: t, family: familyDateTime, instant: t.t}, true
	case Time:
		return candidate{value: t, family: familyTime, instant: t.t}, true
	case Str:
		if d, ok := ToDecimal(t); ok {
			return candidate{value: Num{d: d}, family: familyDecimal, decimal: d}, true
		}
		if tv, ok := ToTemporal(t); ok {
			return classify(tv)
		}
	}
	return candidate{}, false
}

// collect drops None and blank strings and classifies what remains. The resolved family is
// familyDate when dates and datetimes are mixed.
func collect(vs Vec) ([]candidate, family, bool) {
	candidates := make([]candidate, 0, len(vs))
	seen := map[family]bool{}
	for _, v := range vs {
		v = Or(v)
		if IsNone(v) || IsBlank(v) {
			continue
		}
		c, ok := classify(v)
		if !ok {
			return nil, 0, false
		}
		seen[c.family] = true
		candidates = append(candidates, c)
	}

	switch len(seen) {
	case 0:
		return candidates, 0, true
	case 1:
		for f := range seen {
			return candidates, f, true
		}
	case 2:
		if seen[familyDate] && seen[familyDateTime] {
			return candidates, familyDate, true
		}
	}
	return nil, 0, false
}

func compareCandidates(a, b candidate, resolved family) int {
	switch resolved {
	case familyDecimal:
		return a.decimal.Cmp(b.decimal)
	case familyDate:
		return compareTimes(truncateToDate(a.instant), truncateToDate(b.instant))
	default:
		return compareTimes(a.instant, b.instant)
	}
}

// pick returns the minimum (or maximum) candidate; ties keep the first one encountered.
func pick(candidates []candidate, resolved family, max bool) candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		cmp := compareCandidates(c, best, resolved)
		if (!max && cmp < 0) || (max && cmp > 0) {
			best = c
		}
	}
	return best
}

func extreme(vs Vec, notSupported func() error, max bool) (Value, error) {
	candidates, resolved, ok := collect(vs)
	if !ok {
		return nil, notSupported()
	}
	if len(candidates) == 0 {
		return Nil, nil
	}
	return pick(candidates, resolved, max).value, nil
}

// MinOf returns the smallest element of vs. None and blank strings are ignored, an empty
// input yields None. Every remaining element must belong to one comparable family (decimal,
// date, time or datetime; dates and datetimes may be mixed and then compare at date
// granularity), otherwise the error produced by notSupported is returned.
func MinOf(vs Vec, notSupported func() error) (Value, error) {
	return extreme(vs, notSupported, false)
}

// MaxOf is the maximum counterpart of MinOf.
func MaxOf(vs Vec, notSupported func() error) (Value, error) {
	return extreme(vs, notSupported, true)
}

func narrowed(vs Vec, notSupported func() error, max bool, accepts func(family) bool, resolve family) (candidate, bool, error) {
	candidates, resolved, ok := collect(vs)
	if !ok {
		return candidate{}, false, notSupported()
	}
	if len(candidates) == 0 {
		return candidate{}, false, nil
	}
	for _, c := range candidates {
		if !accepts(c.family) {
			return candidate{}, false, notSupported()
		}
	}
	if resolve == 0 {
		resolve = resolved
	}
	return pick(candidates, resolve, max), true, nil
}

func decimalOf(vs Vec, notSupported func() error, max bool) (Value, error) {
	c, found, err := narrowed(vs, notSupported, max, func(f family) bool { return f == familyDecimal }, familyDecimal)
	if err != nil || !found {
		return Nil, err
	}
	return Num{d: c.decimal}, nil
}

func dateOf(vs Vec, notSupported func() error, max bool) (Value, error) {
	accepts := func(f family) bool { return f == familyDate || f == familyDateTime }
	c, found, err := narrowed(vs, notSupported, max, accepts, familyDate)
	if err != nil || !found {
		return Nil, err
	}
	return NewDate(c.instant), nil
}

func dateTimeOf(vs Vec, notSupported func() error, max bool) (Value, error) {
	accepts := func(f family) bool { return f == familyDate || f == familyDateTime }
	c, found, err := narrowed(vs, notSupported, max, accepts, familyDateTime)
	if err != nil || !found {
		return Nil, err
	}
	return NewDateTime(c.instant), nil
}

func timeOf(vs Vec, notSupported func() error, max bool) (Value, error) {
	c, found, err := narrowed(vs, notSupported, max, func(f family) bool { return f == familyTime }, familyTime)
	if err != nil || !found {
		return Nil, err
	}
	return Time{t: c.instant}, nil
}

// MinDecimalOf accepts numbers and numeric strings only and returns a Num.
func MinDecimalOf(vs Vec, notSupported func() error) (Value, error) {
	return decimalOf(vs, notSupported, false)
}

// MaxDecimalOf accepts numbers and numeric strings only and returns a Num.
func MaxDecimalOf(vs Vec, notSupported func() error) (Value, error) {
	return decimalOf(vs, notSupported, true)
}

// MinDateOf accepts dates and datetimes, compares at date granularity and returns a Date.
func MinDateOf(vs Vec, notSupported func() error) (Value, error) {
	return dateOf(vs, notSupported, false)
}

// MaxDateOf accepts dates and datetimes, compares at date granularity and returns a Date.
func MaxDateOf(vs Vec, notSupported func() error) (Value, error) {
	return dateOf(vs, notSupported, true)
}

// MinDateTimeOf accepts dates (as midnight) and datetimes and returns a DateTime.
func MinDateTimeOf(vs Vec, notSupported func() error) (Value, error) {
	return dateTimeOf(vs, notSupported, false)
}

// MaxDateTimeOf accepts dates (as midnight) and datetimes and returns a DateTime.
func MaxDateTimeOf(vs Vec, notSupported func() error) (Value, error) {
	return dateTimeOf(vs, notSupported, true)
}

// MinTimeOf accepts time of day values only.
func MinTimeOf(vs Vec, notSupported func() error) (Value, error) {
	return timeOf(vs, notSupported, false)
}

// MaxTimeOf accepts time of day values only.
func MaxTimeOf(vs Vec, notSupported func() error) (Value, error) {
	return timeOf(vs, notSupported, true)
}

// Sum adds every decimal-like element; None and blank strings are ignored.
func Sum(vs Vec, notSupported func() error) (Value, error) {
	total := decimal.Zero
	for _, v := range vs {
		if IsNone(v) || IsBlank(v) {
			continue
		}
		d, ok := ToDecimal(v)
		if !ok {
			return nil, notSupported()
		}
		total = total.Add(d)
	}
	return Num{d: total}, nil
}

// Avg averages every decimal-like element; an input without numbers yields None.
func Avg(vs Vec, notSupported func() error) (Value, error) {
	total := decimal.Zero
	count := int64(0)
	for _, v := range vs {
		if IsNone(v) || IsBlank(v) {
			continue
		}
		d, ok := ToDecimal(v)
		if !ok {
			return nil, notSupported()
		}
		total = total.Add(d)
		count++
	}
	if count == 0 {
		return Nil, nil
	}
	return Num{d: total.Div(decimal.NewFromInt(count))}, nil
}
