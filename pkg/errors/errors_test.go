package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type positionError struct {
	Pos int
}

func (e *positionError) Error() string {
	return fmt.Sprintf("bad character at %d", e.Pos)
}

func TestWith(t *testing.T) {
	t.Run("nil_stays_nil", func(t *testing.T) {
		require.NoError(t, With(nil, ErrParse))
	})

	t.Run("both_sides_are_visible", func(t *testing.T) {
		err := With(&positionError{Pos: 3}, ErrParse)
		require.ErrorIs(t, err, ErrParse)

		var target *positionError
		require.ErrorAs(t, err, &target)
		require.Equal(t, 3, target.Pos)
		require.NotErrorIs(t, err, ErrCompile)
	})

	t.Run("layered_kinds", func(t *testing.T) {
		err := With(With(&positionError{Pos: 1}, ErrParse), ErrCompile)
		require.ErrorIs(t, err, ErrCompile)
		require.ErrorIs(t, err, ErrParse)
	})
}
