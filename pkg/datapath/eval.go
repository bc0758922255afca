package datapath

import (
	"fmt"
	"strings"
	"time"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

// Env is what a path is evaluated against.
type Env struct {
	// Roots are consulted in order for the first plain segment of a path; the first map
	// holding the name wins. Other segments start from the first root.
	Roots []value.Value
	// Previous is returned by &old.
	Previous value.Value
	// Clock backs &now; time.Now when nil.
	Clock func() time.Time
}

func (e Env) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e Env) root() value.Value {
	if len(e.Roots) == 0 {
		return value.Nil
	}
	return value.Or(e.Roots[0])
}

func (e Env) lookup(name string) value.Value {
	for _, root := range e.Roots {
		if m, ok := root.(value.Map); ok {
			if v, found := m[name]; found {
				return value.Or(v)
			}
		}
	}
	return nil
}

// SegmentError reports a segment that cannot apply to the value it was given.
type SegmentError struct {
	Segment string
	Value   value.Value
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment '%s' cannot apply to %s value", e.Segment, value.Or(e.Value).Kind())
}

func segmentMismatch(s Segment, v value.Value) error {
	return flowerrors.With(&SegmentError{Segment: s.String(), Value: v}, flowerrors.ErrTypeMismatch)
}

// Evaluate resolves path against a single root value.
func Evaluate(path *Path, root value.Value) (value.Value, error) {
	return path.Evaluate(Env{Roots: []value.Value{root}})
}

// Evaluate resolves the path in env. The result is a value, possibly None, or an error.
func (p *Path) Evaluate(env Env) (value.Value, error) {
	var current value.Value
	for i, segment := range p.Segments {
		var err error
		if i == 0 {
			current, err = first(segment, env)
		} else {
			current, err = apply(segment, current, env)
		}
		if err != nil {
			return nil, err
		}
	}
	return value.Or(current), nil
}

func first(s Segment, env Env) (value.Value, error) {
	switch t := s.(type) {
	case *PlainSegment:
		if v := env.lookup(t.Name); v != nil {
			return v, nil
		}
		return apply(s, env.root(), env)
	case *FuncSegment:
		return callFunc(t, nil, env)
	}
	return apply(s, env.root(), env)
}

func apply(s Segment, current value.Value, env Env) (value.Value, error) {
	current = value.Or(current)
	switch t := s.(type) {
	case *PlainSegment:
		return field(t, current)
	case *IndexSegment:
		switch c := current.(type) {
		case value.None:
			return value.Nil, nil
		case value.Vec:
			if t.Index < len(c) {
				return value.Or(c[t.Index]), nil
			}
			return value.Nil, nil
		}
		return nil, segmentMismatch(s, current)
	case *FuncSegment:
		return callFunc(t, current, env)
	}
	return nil, fmt.Errorf("unknown segment %T", s)
}

// field reads a map entry. On a vec it projects over the elements and flattens nested vecs.
func field(s *PlainSegment, current value.Value) (value.Value, error) {
	switch c := current.(type) {
	case value.None:
		return value.Nil, nil
	case value.Map:
		return c.Get(s.Name), nil
	case value.Vec:
		out := make(value.Vec, 0, len(c))
		for _, element := range c {
			v, err := field(s, value.Or(element))
			if err != nil {
				return nil, err
			}
			if nested, ok := v.(value.Vec); ok {
				out = append(out, nested...)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, segmentMismatch(s, current)
}

func callFunc(s *FuncSegment, current value.Value, env Env) (value.Value, error) {
	params := make([]value.Value, len(s.Params))
	for i, p := range s.Params {
		v, err := p.evaluate(env)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	return s.Func.invoke(env, s.Context, current, params)
}

func (p *PathParam) evaluate(env Env) (value.Value, error) { return p.Path.Evaluate(env) }

func (p *LiteralParam) evaluate(Env) (value.Value, error) { return p.Value, nil }

func (p *ConcatParam) evaluate(env Env) (value.Value, error) {
	return concat(p.Parts, env)
}

func concat(parts []Part, env Env) (value.Value, error) {
	var sb strings.Builder
	for _, part := range parts {
		if part.Path == nil {
			sb.WriteString(part.Literal)
			continue
		}
		v, err := part.Path.Evaluate(env)
		if err != nil {
			return nil, err
		}
		sb.WriteString(v.String())
	}
	return value.Str(sb.String()), nil
}

// Evaluate resolves the template. A single embed keeps the type of its value, anything
// else is concatenated into a string.
func (t *Template) Evaluate(env Env) (value.Value, error) {
	if path, ok := t.SinglePath(); ok {
		return path.Evaluate(env)
	}
	return concat(t.Parts, env)
}
