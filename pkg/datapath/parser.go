package datapath

import (
	"fmt"
	"strconv"
	"strings"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

// ParseError reports malformed path or template text.
type ParseError struct {
	Text   string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse '%s' at position %d: %s", e.Text, e.Pos, e.Reason)
}

type parser struct {
	text string
	pos  int
}

// Parse parses a data path.
func Parse(text string) (*Path, error) {
	p := &parser{text: text}
	path, err := p.parsePath(false)
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		if p.peek() == ')' {
			return nil, p.fail(p.pos, "unbalanced parentheses")
		}
		return nil, p.fail(p.pos, fmt.Sprintf("unexpected character %q", p.peek()))
	}
	return path, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Path {
	path, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return path
}

// ParseTemplate parses literal text with {path} embeds. A backslash escapes the next character.
func ParseTemplate(text string) (*Template, error) {
	p := &parser{text: text}
	t := &Template{}
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			t.Parts = append(t.Parts, Part{Literal: buf.String()})
			buf.Reset()
		}
	}

	for !p.eof() {
		c := p.peek()
		switch c {
		case '{':
			flush()
			open := p.pos
			p.pos++
			p.skipSpaces()
			path, err := p.parsePath(true)
			if err != nil {
				return nil, err
			}
			p.skipSpaces()
			if p.eof() || p.peek() != '}' {
				return nil, p.fail(open, "unbalanced braces")
			}
			p.pos++
			t.Parts = append(t.Parts, Part{Path: path})
		case '}':
			return nil, p.fail(p.pos, "unbalanced braces")
		case '\\':
			if p.pos+1 >= len(p.text) {
				return nil, p.fail(p.pos, "dangling escape")
			}
			buf.WriteByte(p.text[p.pos+1])
			p.pos += 2
		default:
			buf.WriteByte(c)
			p.pos++
		}
	}
	flush()
	return t, nil
}

func (p *parser) fail(pos int, reason string) error {
	return flowerrors.With(&ParseError{Text: p.text, Pos: pos, Reason: reason}, flowerrors.ErrParse)
}

func (p *parser) eof() bool  { return p.pos >= len(p.text) }
func (p *parser) peek() byte { return p.text[p.pos] }

func (p *parser) skipSpaces() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool { return isLetter(c) || c == '_' }

func isNameChar(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' || c == '-' }

// atBoundary reports whether the scan stands where a segment may end.
func (p *parser) atBoundary() bool {
	if p.eof() {
		return true
	}
	switch p.peek() {
	case '.', ',', ')', '}', ' ', '\t':
		return true
	}
	return false
}

func (p *parser) parsePath(nested bool) (*Path, error) {
	path := &Path{}
	for {
		segment, err := p.parseSegment(len(path.Segments) > 0, nested)
		if err != nil {
			return nil, err
		}
		path.Segments = append(path.Segments, segment)
		if p.eof() || p.peek() != '.' {
			return path, nil
		}
		p.pos++
	}
}

func (p *parser) parseSegment(context, nested bool) (Segment, error) {
	if p.eof() {
		return nil, p.fail(p.pos, "empty segment")
	}
	c := p.peek()
	switch {
	case c == '&':
		return p.parseFunc(context)
	case isDigit(c):
		return p.parseIndex()
	case isNameStart(c):
		return p.parseName()
	case c == '.' || (nested && (c == ',' || c == ')' || c == '}')):
		return nil, p.fail(p.pos, "empty segment")
	case c == '(' || c == ')':
		return nil, p.fail(p.pos, "unbalanced parentheses")
	}
	return nil, p.fail(p.pos, fmt.Sprintf("unexpected character %q", c))
}

func (p *parser) parseName() (Segment, error) {
	start := p.pos
	for !p.eof() && isNameChar(p.peek()) {
		p.pos++
	}
	if !p.atBoundary() {
		return nil, p.fail(p.pos, fmt.Sprintf("unexpected character %q", p.peek()))
	}
	return &PlainSegment{Name: p.text[start:p.pos]}, nil
}

func (p *parser) parseIndex() (Segment, error) {
	start := p.pos
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
	}
	if !p.atBoundary() {
		return nil, p.fail(start, "malformed index")
	}
	index, err := strconv.Atoi(p.text[start:p.pos])
	if err != nil {
		return nil, p.fail(start, "malformed index")
	}
	return &IndexSegment{Index: index}, nil
}

func (p *parser) parseFunc(context bool) (Segment, error) {
	start := p.pos
	p.pos++
	nameStart := p.pos
	for !p.eof() && (isLetter(p.peek()) || isDigit(p.peek())) {
		p.pos++
	}
	name := p.text[nameStart:p.pos]
	if name == "" {
		return nil, p.fail(nameStart, "missing function name")
	}
	fn, ok := LookupFunc(name)
	if !ok {
		return nil, p.fail(nameStart, fmt.Sprintf("unknown function %q", name))
	}

	segment := &FuncSegment{Func: fn, Context: context}
	if !p.eof() && p.peek() == '(' {
		segment.parens = true
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		segment.Params = params
	} else if !p.atBoundary() {
		return nil, p.fail(p.pos, fmt.Sprintf("unexpected character %q", p.peek()))
	}

	if !fn.accepts(len(segment.Params), context) {
		return nil, p.fail(start, fmt.Sprintf("function &%s does not accept %d parameter(s)", name, len(segment.Params)))
	}
	return segment, nil
}

func (p *parser) parseParams() ([]Param, error) {
	open := p.pos
	p.pos++
	p.skipSpaces()
	if !p.eof() && p.peek() == ')' {
		p.pos++
		return nil, nil
	}

	var params []Param
	for {
		param, err := p.parseParam(open)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
		p.skipSpaces()
		if p.eof() {
			return nil, p.fail(open, "unbalanced parentheses")
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return params, nil
		default:
			return nil, p.fail(p.pos, fmt.Sprintf("unexpected character %q", p.peek()))
		}
	}
}

func (p *parser) parseParam(open int) (Param, error) {
	p.skipSpaces()
	if p.eof() {
		return nil, p.fail(open, "unbalanced parentheses")
	}
	c := p.peek()
	switch {
	case c == ',' || c == ')':
		return nil, p.fail(p.pos, "empty parameter")
	case isNameStart(c) || c == '&':
		path, err := p.parsePath(true)
		if err != nil {
			return nil, err
		}
		return &PathParam{Path: path}, nil
	case isDigit(c) || (c == '-' && p.pos+1 < len(p.text) && isDigit(p.text[p.pos+1])):
		return p.parseNumber()
	}
	return p.parseConcat(open)
}

func (p *parser) parseNumber() (Param, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if !isDigit(c) && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			break
		}
		p.pos++
	}
	if !p.atBoundary() || (!p.eof() && (p.peek() == '.' || p.peek() == '}')) {
		return nil, p.fail(start, "malformed number")
	}
	n, err := value.NumFromString(p.text[start:p.pos])
	if err != nil {
		return nil, p.fail(start, "malformed number")
	}
	return &LiteralParam{Value: n}, nil
}

// parseConcat reads quoted runs, {path} embeds, escapes and bare text up to the next
// parameter boundary. Adjacent literal runs are coalesced.
func (p *parser) parseConcat(open int) (Param, error) {
	var parts []Part
	var buf strings.Builder
	literal := false
	flush := func() {
		if literal {
			parts = append(parts, Part{Literal: buf.String()})
			buf.Reset()
			literal = false
		}
	}

	for !p.eof() {
		c := p.peek()
		switch c {
		case ',', ')':
			flush()
			return concatOf(parts), nil
		case '\'', '"':
			if err := p.readQuoted(&buf); err != nil {
				return nil, err
			}
			literal = true
		case '{':
			flush()
			brace := p.pos
			p.pos++
			p.skipSpaces()
			path, err := p.parsePath(true)
			if err != nil {
				return nil, err
			}
			p.skipSpaces()
			if p.eof() || p.peek() != '}' {
				return nil, p.fail(brace, "unbalanced braces")
			}
			p.pos++
			parts = append(parts, Part{Path: path})
		case '}':
			return nil, p.fail(p.pos, "unbalanced braces")
		case '\\':
			if p.pos+1 >= len(p.text) {
				return nil, p.fail(p.pos, "dangling escape")
			}
			buf.WriteByte(p.text[p.pos+1])
			p.pos += 2
			literal = true
		default:
			buf.WriteByte(c)
			p.pos++
			literal = true
		}
	}
	return nil, p.fail(open, "unbalanced parentheses")
}

func (p *parser) readQuoted(buf *strings.Builder) error {
	start := p.pos
	q := p.peek()
	p.pos++
	for !p.eof() {
		c := p.peek()
		switch c {
		case q:
			p.pos++
			return nil
		case '\\':
			if p.pos+1 >= len(p.text) {
				return p.fail(p.pos, "dangling escape")
			}
			buf.WriteByte(p.text[p.pos+1])
			p.pos += 2
		default:
			buf.WriteByte(c)
			p.pos++
		}
	}
	return p.fail(start, "unterminated quote")
}

func concatOf(parts []Part) Param {
	if len(parts) == 1 && parts[0].Path == nil {
		return &LiteralParam{Value: value.Str(parts[0].Literal)}
	}
	return &ConcatParam{Parts: parts}
}
