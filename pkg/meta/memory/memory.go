// Package memory is an in-memory meta.ReadWriter used by tests and single process setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/model"
)

type tenant struct {
	topics    map[string]*model.Topic
	pipelines map[string]*model.Pipeline
}

// Meta keeps schemas per tenant. Saved schemas replace earlier ones with the same id.
type Meta struct {
	mu      sync.RWMutex
	tenants map[string]*tenant
	hooks   []meta.InvalidationHook
}

var (
	_ meta.ReadWriter = (*Meta)(nil)
	_ meta.Lister     = (*Meta)(nil)
)

// New returns an empty Meta. The hooks run after every save with the tenant that changed.
func New(hooks ...meta.InvalidationHook) *Meta {
	return &Meta{tenants: map[string]*tenant{}, hooks: hooks}
}

// OnChange registers another invalidation hook.
func (m *Meta) OnChange(hook meta.InvalidationHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

func (m *Meta) tenant(tenantID string) *tenant {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenant{topics: map[string]*model.Topic{}, pipelines: map[string]*model.Pipeline{}}
		m.tenants[tenantID] = t
	}
	return t
}

func (m *Meta) SaveTopic(_ context.Context, topic *model.Topic) error {
	if topic == nil || topic.TopicID == "" {
		return fmt.Errorf("topic id is required")
	}
	m.mu.Lock()
	m.tenant(topic.TenantID).topics[topic.TopicID] = topic
	hooks := m.hooks
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(topic.TenantID)
	}
	return nil
}

func (m *Meta) SavePipeline(_ context.Context, pipeline *model.Pipeline) error {
	if pipeline == nil || pipeline.PipelineID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	m.mu.Lock()
	m.tenant(pipeline.TenantID).pipelines[pipeline.PipelineID] = pipeline
	hooks := m.hooks
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(pipeline.TenantID)
	}
	return nil
}

func (m *Meta) FindTopic(_ context.Context, tenantID, idOrName string) (*model.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, meta.ErrNotFound
	}
	if topic, ok := t.topics[idOrName]; ok {
		return topic, nil
	}
	for _, topic := range t.topics {
		if topic.Name == idOrName {
			return topic, nil
		}
	}
	return nil, meta.ErrNotFound
}

func (m *Meta) FindPipeline(_ context.Context, tenantID, pipelineID string) (*model.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.tenants[tenantID]; ok {
		if p, ok := t.pipelines[pipelineID]; ok {
			return p, nil
		}
	}
	return nil, meta.ErrNotFound
}

func (m *Meta) FindPipelinesByTopic(_ context.Context, tenantID, topicID string) ([]*model.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var pipelines []*model.Pipeline
	for _, p := range t.pipelines {
		if p.TopicID == topicID {
			pipelines = append(pipelines, p)
		}
	}
	sortPipelines(pipelines)
	return pipelines, nil
}

func (m *Meta) ListTenants(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		tenants = append(tenants, id)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *Meta) ListPipelines(_ context.Context, tenantID string) ([]*model.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	pipelines := make([]*model.Pipeline, 0, len(t.pipelines))
	for _, p := range t.pipelines {
		pipelines = append(pipelines, p)
	}
	sortPipelines(pipelines)
	return pipelines, nil
}

func sortPipelines(pipelines []*model.Pipeline) {
	sort.Slice(pipelines, func(i, j int) bool {
		return pipelines[i].PipelineID < pipelines[j].PipelineID
	})
}

// ReplaceTenant swaps every schema of tenantID for the given ones and runs the hooks.
func (m *Meta) ReplaceTenant(tenantID string, topics []*model.Topic, pipelines []*model.Pipeline) {
	t := &tenant{
		topics:    make(map[string]*model.Topic, len(topics)),
		pipelines: make(map[string]*model.Pipeline, len(pipelines)),
	}
	for _, topic := range topics {
		t.topics[topic.TopicID] = topic
	}
	for _, p := range pipelines {
		t.pipelines[p.PipelineID] = p
	}

	m.mu.Lock()
	m.tenants[tenantID] = t
	hooks := m.hooks
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(tenantID)
	}
}

// RemoveTenant drops every schema of tenantID and runs the hooks.
func (m *Meta) RemoveTenant(tenantID string) {
	m.mu.Lock()
	delete(m.tenants, tenantID)
	hooks := m.hooks
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(tenantID)
	}
}
