package condition

import (
	"time"

	"github.com/topicflow/topicflow/pkg/value"
)

// Bindings is an Env over plain maps.
type Bindings struct {
	Rows  map[string]value.Map
	Vars  value.Map
	Prev  value.Map
	Clock func() time.Time
}

func (b *Bindings) Row(topicID string) (value.Map, bool) {
	row, ok := b.Rows[topicID]
	return row, ok
}

func (b *Bindings) Variables() value.Map { return b.Vars }

func (b *Bindings) Previous() value.Map { return b.Prev }

func (b *Bindings) Now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

type bound struct {
	Env
	topicID string
	row     value.Map
}

// Bind returns env with row bound to topicID, shadowing any row env already binds there.
func Bind(env Env, topicID string, row value.Map) Env {
	return &bound{Env: env, topicID: topicID, row: row}
}

func (b *bound) Row(topicID string) (value.Map, bool) {
	if topicID == b.topicID {
		return b.row, true
	}
	return b.Env.Row(topicID)
}
