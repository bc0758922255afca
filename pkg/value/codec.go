package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidJSON is returned by FromJSON for malformed documents.
var ErrInvalidJSON = errors.New("invalid json document")

// FromJSON parses a JSON document into a value. Numbers keep their exact decimal text;
// strings are not reinterpreted.
func FromJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data))
}

func fromResult(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.Null:
		return Nil, nil
	case gjson.True:
		return Bool(true), nil
	case gjson.False:
		return Bool(false), nil
	case gjson.Number:
		return NumFromString(r.Raw)
	case gjson.String:
		return Str(r.Str), nil
	}

	if r.IsArray() {
		items := r.Array()
		vec := make(Vec, 0, len(items))
		for _, item := range items {
			v, err := fromResult(item)
			if err != nil {
				return nil, err
			}
			vec = append(vec, v)
		}
		return vec, nil
	}

	m := Map{}
	var err error
	r.ForEach(func(key, item gjson.Result) bool {
		var v Value
		v, err = fromResult(item)
		if err != nil {
			return false
		}
		m[key.String()] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalJSON renders v as JSON. Temporal values become strings in their canonical layout.
func MarshalJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, Or(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case None:
		buf.WriteString("null")
	case Num:
		buf.WriteString(t.d.String())
	case Bool:
		buf.WriteString(t.String())
	case Map:
		buf.WriteByte('{')
		for i, k := range t.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, Or(t[k])); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Vec:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, Or(e)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		s, err := json.Marshal(v.String())
		if err != nil {
			return err
		}
		buf.Write(s)
	}
	return nil
}

// wire is the kind preserving binary form of a value.
type wire struct {
	K Kind             `msgpack:"k"`
	S string           `msgpack:"s,omitempty"`
	B bool             `msgpack:"b,omitempty"`
	M map[string]*wire `msgpack:"m,omitempty"`
	V []*wire          `msgpack:"v,omitempty"`
}

const wireTimeLayout = time.RFC3339Nano

func toWire(v Value) *wire {
	switch t := Or(v).(type) {
	case Str:
		return &wire{K: KindStr, S: string(t)}
	case Num:
		return &wire{K: KindNum, S: t.d.String()}
	case Bool:
		return &wire{K: KindBool, B: bool(t)}
	case DateTime:
		return &wire{K: KindDateTime, S: t.t.Format(wireTimeLayout)}
	case Date:
		return &wire{K: KindDate, S: t.t.Format(wireTimeLayout)}
	case Time:
		return &wire{K: KindTime, S: t.t.Format(wireTimeLayout)}
	case Map:
		m := make(map[string]*wire, len(t))
		for k, e := range t {
			m[k] = toWire(e)
		}
		return &wire{K: KindMap, M: m}
	case Vec:
		vs := make([]*wire, len(t))
		for i, e := range t {
			vs[i] = toWire(e)
		}
		return &wire{K: KindVec, V: vs}
	default:
		return &wire{K: KindNone}
	}
}

func fromWire(w *wire) (Value, error) {
	if w == nil {
		return Nil, nil
	}
	switch w.K {
	case KindNone:
		return Nil, nil
	case KindStr:
		return Str(w.S), nil
	case KindNum:
		return NumFromString(w.S)
	case KindBool:
		return Bool(w.B), nil
	case KindDateTime, KindDate, KindTime:
		t, err := time.Parse(wireTimeLayout, w.S)
		if err != nil {
			return nil, err
		}
		switch w.K {
		case KindDateTime:
			return NewDateTime(t), nil
		case KindDate:
			return NewDate(t), nil
		default:
			return NewTime(t), nil
		}
	case KindMap:
		m := make(Map, len(w.M))
		for k, e := range w.M {
			v, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case KindVec:
		vs := make(Vec, len(w.V))
		for i, e := range w.V {
			v, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
		return vs, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", w.K)
}

// Encode serializes v into a binary form that keeps every variant distinct.
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(toWire(v))
}

// Decode reverses Encode.
func Decode(data []byte) (Value, error) {
	var w wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}
