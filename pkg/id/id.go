// Package id generates the identifiers the engine hands out: monotonic ULIDs for stored rows
// and random UUIDs for trace ids.
package id

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mutex   sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewStringFromTime returns a ULID for t. Ids generated within the same millisecond are
// monotonically increasing.
func NewStringFromTime(t time.Time) (string, error) {
	mutex.Lock()
	defer mutex.Unlock()

	id, err := ulid.New(uint64(t.UnixMilli()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewString returns a ULID for the current time.
func NewString() (string, error) {
	return NewStringFromTime(time.Now())
}

// MustNewString is NewString that panics on entropy exhaustion.
func MustNewString() string {
	s, err := NewString()
	if err != nil {
		panic(err)
	}
	return s
}

// IsValid reports whether s is a well formed ULID.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the timestamp encoded in the ULID s.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}

// NewTraceID returns a random trace id.
func NewTraceID() string {
	return uuid.NewString()
}
