// Package memory is an in-process implementation of storage.Datastore. It keeps every row in
// maps guarded by a single lock and is meant for tests and single node evaluation setups.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/topicflow/topicflow/pkg/id"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

var tracer = otel.Tracer("pkg/storage/memory")

type topicKey struct {
	tenantID string
	topicID  string
}

// MemoryBackend implements storage.Datastore. Rows are copied in and out so callers never
// share a *storage.Row with the backend.
type MemoryBackend struct {
	mu    sync.RWMutex
	rows  map[topicKey]map[string]*storage.Row
	logs  map[string][]*model.MonitorLog
	clock func() time.Time
}

var _ storage.Datastore = (*MemoryBackend)(nil)

type Option func(*MemoryBackend)

// WithClock replaces the clock stamping rows.
func WithClock(clock func() time.Time) Option {
	return func(m *MemoryBackend) {
		m.clock = clock
	}
}

// New creates a new empty MemoryBackend.
func New(opts ...Option) *MemoryBackend {
	m := &MemoryBackend{
		rows:  map[topicKey]map[string]*storage.Row{},
		logs:  map[string][]*model.MonitorLog{},
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryBackend) Insert(ctx context.Context, tenantID, topicID string, data value.Map) (*storage.Row, error) {
	_, span := tracer.Start(ctx, "memory.Insert")
	defer span.End()

	rowID, err := id.NewString()
	if err != nil {
		return nil, err
	}
	now := m.clock()
	row := &storage.Row{
		ID:        rowID,
		TenantID:  tenantID,
		TopicID:   topicID,
		Version:   1,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := topicKey{tenantID, topicID}
	if m.rows[key] == nil {
		m.rows[key] = map[string]*storage.Row{}
	}
	m.rows[key][row.ID] = row
	return row.Clone(), nil
}

func (m *MemoryBackend) Update(ctx context.Context, row *storage.Row) (*storage.Row, error) {
	_, span := tracer.Start(ctx, "memory.Update")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rows[topicKey{row.TenantID, row.TopicID}][row.ID]
	if !ok {
		return nil, storage.NotFoundError(row.TopicID, row.ID)
	}
	if stored.Version != row.Version {
		return nil, storage.VersionConflictError(row.TopicID, row.ID, row.Version)
	}

	updated := stored.Clone()
	updated.Data = row.Data
	updated.Version++
	updated.UpdatedAt = m.clock()
	m.rows[topicKey{row.TenantID, row.TopicID}][row.ID] = updated
	return updated.Clone(), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, tenantID, topicID, rowID string) error {
	_, span := tracer.Start(ctx, "memory.Delete")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[topicKey{tenantID, topicID}]
	if _, ok := rows[rowID]; !ok {
		return storage.NotFoundError(topicID, rowID)
	}
	delete(rows, rowID)
	return nil
}

func (m *MemoryBackend) FindByID(ctx context.Context, tenantID, topicID, rowID string) (*storage.Row, error) {
	_, span := tracer.Start(ctx, "memory.FindByID")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[topicKey{tenantID, topicID}][rowID]
	if !ok {
		return nil, storage.NotFoundError(topicID, rowID)
	}
	return row.Clone(), nil
}

func (m *MemoryBackend) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	_, span := tracer.Start(ctx, "memory.Find")
	defer span.End()

	m.mu.RLock()
	candidates := make([]*storage.Row, 0, len(m.rows[topicKey{tenantID, topicID}]))
	for _, row := range m.rows[topicKey{tenantID, topicID}] {
		candidates = append(candidates, row.Clone())
	}
	m.mu.RUnlock()

	// ulids sort by creation time
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	var rows []*storage.Row
	for _, row := range candidates {
		ok, err := filter(row.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *MemoryBackend) AppendMonitorLog(_ context.Context, log *model.MonitorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *log
	key := log.TenantID + "/" + log.TraceID
	m.logs[key] = append(m.logs[key], &c)
	return nil
}

func (m *MemoryBackend) ReadMonitorLogs(_ context.Context, tenantID, traceID string) ([]*model.MonitorLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := m.logs[tenantID+"/"+traceID]
	out := make([]*model.MonitorLog, len(logs))
	for i, log := range logs {
		c := *log
		out[i] = &c
	}
	return out, nil
}

// IsReady see [storage.Datastore].IsReady.
func (m *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}

// Close see [storage.Datastore].Close.
func (m *MemoryBackend) Close() {}
