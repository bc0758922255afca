// Package external delivers pipeline events to systems outside the engine.
//
//go:generate mockgen -source external.go -destination ../../internal/mocks/mock_external.go -package mocks Writer
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/topicflow/topicflow/pkg/value"
)

var ErrWriterNotFound = errors.New("external writer not found")

// Event is what a write-to-external action sends.
type Event struct {
	Code      string
	TenantID  string
	TopicID   string
	TraceID   string
	Previous  value.Map
	Current   value.Map
	Variables value.Map
}

// MarshalJSON encodes the event with its values in their JSON form.
func (e *Event) MarshalJSON() ([]byte, error) {
	encode := func(m value.Map) (json.RawMessage, error) {
		if m == nil {
			return json.RawMessage("null"), nil
		}
		return value.MarshalJSON(m)
	}

	previous, err := encode(e.Previous)
	if err != nil {
		return nil, err
	}
	current, err := encode(e.Current)
	if err != nil {
		return nil, err
	}
	variables, err := encode(e.Variables)
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		Code      string          `json:"code"`
		TenantID  string          `json:"tenantId"`
		TopicID   string          `json:"topicId"`
		TraceID   string          `json:"traceId,omitempty"`
		Previous  json.RawMessage `json:"previous"`
		Current   json.RawMessage `json:"current"`
		Variables json.RawMessage `json:"variables"`
	}{e.Code, e.TenantID, e.TopicID, e.TraceID, previous, current, variables})
}

// Writer sends events to one external system.
type Writer interface {
	Write(ctx context.Context, event *Event) error
}

// Registry holds the writers actions refer to by id.
type Registry struct {
	mu      sync.RWMutex
	writers map[string]Writer
}

func NewRegistry() *Registry {
	return &Registry{writers: map[string]Writer{}}
}

// Register adds w under id, replacing any writer registered before.
func (r *Registry) Register(id string, w Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[id] = w
}

// Find returns the writer registered under id or ErrWriterNotFound.
func (r *Registry) Find(id string) (Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrWriterNotFound, id)
	}
	return w, nil
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.writers))
	for id := range r.writers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
