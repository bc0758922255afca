package id

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIsValid(t *testing.T) {
	t.Run("generated_id", func(t *testing.T) {
		require.True(t, IsValid(MustNewString()))
	})

	t.Run("not_an_id", func(t *testing.T) {
		require.False(t, IsValid("foobar"))
	})
}

func TestTime(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	s, err := NewStringFromTime(now)
	require.NoError(t, err)

	got, err := Time(s)
	require.NoError(t, err)
	require.True(t, now.Equal(got))

	_, err = Time("foobar")
	require.Error(t, err)
}

func TestThatProbablyNoCollisionsHappen(t *testing.T) {
	now := time.Now()
	length := 10000
	m := make(map[string]struct{}, length)
	for i := 0; i < length; i++ {
		id, err := NewStringFromTime(now)
		require.NoError(t, err)
		m[id] = struct{}{}
	}

	require.Len(t, m, length)
}

func TestNewTraceID(t *testing.T) {
	_, err := uuid.Parse(NewTraceID())
	require.NoError(t, err)
	require.NotEqual(t, NewTraceID(), NewTraceID())
}
