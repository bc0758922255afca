package concurrency

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMap(t *testing.T) {
	t.Run("keeps_input_order", func(t *testing.T) {
		out := Map(4, []int{5, 1, 3, 2}, func(i int) int {
			time.Sleep(time.Duration(i) * time.Millisecond)
			return i * 10
		})
		require.Equal(t, []int{50, 10, 30, 20}, out)
	})

	t.Run("bounded", func(t *testing.T) {
		var running, peak atomic.Int32
		Map(2, make([]struct{}, 8), func(struct{}) bool {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return true
		})
		require.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("empty", func(t *testing.T) {
		require.Empty(t, Map(1, []int(nil), func(i int) int { return i }))
	})

	t.Run("repanics", func(t *testing.T) {
		require.Panics(t, func() {
			Map(1, []int{1}, func(int) int { panic("boom") })
		})
	})
}
