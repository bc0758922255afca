// Package datapath implements the data path language: dot separated addresses into topic
// values, with numeric indexes and calls to a closed set of functions.
//
//	amount
//	items.0.price
//	items.&sum
//	&dayDiff(endDate, startDate)
//	name.&replace(' ', '_')
//	&join(tags, 'id: '{code})
package datapath

import (
	"strconv"
	"strings"

	"github.com/topicflow/topicflow/pkg/value"
)

// Path is a parsed data path.
type Path struct {
	Segments []Segment
}

func (p *Path) String() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Names returns the plain segment names when the path consists of plain segments only.
func (p *Path) Names() ([]string, bool) {
	names := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		plain, ok := s.(*PlainSegment)
		if !ok {
			return nil, false
		}
		names = append(names, plain.Name)
	}
	return names, true
}

// Segment is one step of a path.
type Segment interface {
	String() string
	isSegment()
}

// PlainSegment addresses a map field by name.
type PlainSegment struct {
	Name string
}

// IndexSegment addresses a vec element by position.
type IndexSegment struct {
	Index int
}

// FuncSegment calls a function. Context is set when the call follows other segments and
// applies to the value they produced.
type FuncSegment struct {
	Func    Func
	Params  []Param
	Context bool

	parens bool
}

func (*PlainSegment) isSegment() {}
func (*IndexSegment) isSegment() {}
func (*FuncSegment) isSegment()  {}

func (s *PlainSegment) String() string { return s.Name }
func (s *IndexSegment) String() string { return strconv.Itoa(s.Index) }

func (s *FuncSegment) String() string {
	var sb strings.Builder
	sb.WriteByte('&')
	sb.WriteString(s.Func.String())
	if s.parens || len(s.Params) > 0 {
		sb.WriteByte('(')
		for i, p := range s.Params {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// Param is a function parameter.
type Param interface {
	String() string
	evaluate(env Env) (value.Value, error)
}

// PathParam is a nested path evaluated against the same environment as the call.
type PathParam struct {
	Path *Path
}

// LiteralParam is a constant string or number.
type LiteralParam struct {
	Value value.Value
}

// ConcatParam joins literal runs and embedded paths into one string.
type ConcatParam struct {
	Parts []Part
}

func (p *PathParam) String() string { return p.Path.String() }

func (p *LiteralParam) String() string {
	if s, ok := p.Value.(value.Str); ok {
		return quote(string(s))
	}
	return p.Value.String()
}

func (p *ConcatParam) String() string {
	var sb strings.Builder
	for _, part := range p.Parts {
		if part.Path != nil {
			sb.WriteByte('{')
			sb.WriteString(part.Path.String())
			sb.WriteByte('}')
			continue
		}
		sb.WriteString(quote(part.Literal))
	}
	return sb.String()
}

// Part is either literal text or an embedded path.
type Part struct {
	Literal string
	Path    *Path
}

// Template is literal text interleaved with {path} embeds.
type Template struct {
	Parts []Part
}

// SinglePath returns the embedded path when the template is exactly one embed.
func (t *Template) SinglePath() (*Path, bool) {
	if len(t.Parts) == 1 && t.Parts[0].Path != nil {
		return t.Parts[0].Path, true
	}
	return nil, false
}

// Literal returns the text when the template has no embeds.
func (t *Template) Literal() (string, bool) {
	var sb strings.Builder
	for _, part := range t.Parts {
		if part.Path != nil {
			return "", false
		}
		sb.WriteString(part.Literal)
	}
	return sb.String(), true
}

// Paths returns every embedded path in order.
func (t *Template) Paths() []*Path {
	var paths []*Path
	for _, part := range t.Parts {
		if part.Path != nil {
			paths = append(paths, part.Path)
		}
	}
	return paths
}

func (t *Template) String() string {
	var sb strings.Builder
	for _, part := range t.Parts {
		if part.Path != nil {
			sb.WriteByte('{')
			sb.WriteString(part.Path.String())
			sb.WriteByte('}')
			continue
		}
		for _, r := range part.Literal {
			if r == '{' || r == '}' || r == '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for _, r := range s {
		if r == '\'' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('\'')
	return sb.String()
}
