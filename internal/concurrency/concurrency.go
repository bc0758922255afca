// Package concurrency holds the bounded worker pool the engine runs rounds on.
package concurrency

import (
	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a pool running at most maxGoroutines tasks at once. A panic in a task is
// repanicked by Wait.
func NewPool(maxGoroutines int) *pool.Pool {
	if maxGoroutines < 1 {
		maxGoroutines = 1
	}
	return pool.New().WithMaxGoroutines(maxGoroutines)
}

// Map calls fn for every input on a pool of maxGoroutines and returns the outputs in input
// order.
func Map[T, R any](maxGoroutines int, inputs []T, fn func(T) R) []R {
	out := make([]R, len(inputs))
	p := NewPool(maxGoroutines)
	for i, in := range inputs {
		p.Go(func() {
			out[i] = fn(in)
		})
	}
	p.Wait()
	return out
}
