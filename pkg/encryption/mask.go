package encryption

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/topicflow/topicflow/pkg/value"
)

const maskRune = '*'

// masks are irreversible and idempotent, so none of them reports values as encrypted.
type mask struct {
	method string
	apply  func(v value.Value) value.Value
}

var _ Encryptor = (*mask)(nil)

func (m *mask) Accepts(method string) bool {
	return method == m.method
}

func (m *mask) IsEncrypted(value.Value) bool {
	return false
}

func (m *mask) Encrypt(v value.Value) (value.Value, error) {
	if value.IsBlank(v) {
		return nil, nil
	}
	return m.apply(v), nil
}

func (m *mask) Decrypt(value.Value) (value.Value, error) {
	return nil, nil
}

func stars(n int) string {
	return strings.Repeat(string(maskRune), n)
}

// NewMailMask masks the local part of a mail address but its first character:
// john@example.com becomes j***@example.com. Text without '@' is masked entirely.
func NewMailMask() Encryptor {
	return &mask{method: MethodMaskMail, apply: func(v value.Value) value.Value {
		s, ok := v.(value.Str)
		if !ok {
			return nil
		}
		local, domain, found := strings.Cut(string(s), "@")
		if !found {
			return value.Str(stars(utf8.RuneCountInString(local)))
		}
		runes := []rune(local)
		if len(runes) <= 1 {
			return value.Str(stars(len(runes)) + "@" + domain)
		}
		return value.Str(string(runes[0]) + stars(len(runes)-1) + "@" + domain)
	}}
}

// NewCenterMask masks n characters in the middle of a text. Texts of at most n characters
// are masked entirely.
func NewCenterMask(method string, n int) Encryptor {
	return &mask{method: method, apply: func(v value.Value) value.Value {
		runes := []rune(v.String())
		if len(runes) <= n {
			return value.Str(stars(len(runes)))
		}
		start := (len(runes) - n) / 2
		for i := start; i < start+n; i++ {
			runes[i] = maskRune
		}
		return value.Str(string(runes))
	}}
}

// NewLastMask masks the last n characters of a text.
func NewLastMask(method string, n int) Encryptor {
	return &mask{method: method, apply: func(v value.Value) value.Value {
		runes := []rune(v.String())
		if len(runes) <= n {
			return value.Str(stars(len(runes)))
		}
		for i := len(runes) - n; i < len(runes); i++ {
			runes[i] = maskRune
		}
		return value.Str(string(runes))
	}}
}

// NewDateMask moves dates and datetimes to January and/or the first day of the month. Date
// text is parsed and the kind it parses to is kept.
func NewDateMask(method string, month, day bool) Encryptor {
	return &mask{method: method, apply: func(v value.Value) value.Value {
		temporal, ok := value.ToTemporal(v)
		if !ok {
			return nil
		}
		var t time.Time
		switch tv := temporal.(type) {
		case value.Date:
			t = tv.Time()
		case value.DateTime:
			t = tv.Time()
		default:
			return nil
		}

		m, d := t.Month(), t.Day()
		if month {
			m = time.January
		}
		if day {
			d = 1
		}
		masked := time.Date(t.Year(), m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		if temporal.Kind() == value.KindDate {
			return value.NewDate(masked)
		}
		return value.NewDateTime(masked)
	}}
}
