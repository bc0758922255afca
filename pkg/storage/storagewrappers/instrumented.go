package storagewrappers

import (
	"context"
	"sync/atomic"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

var _ storage.TopicDataBackend = (*InstrumentedStorage)(nil)

// InstrumentedStorage counts the queries one trigger issues. It is safe for concurrent use but
// should not be shared across triggers.
type InstrumentedStorage struct {
	storage.TopicDataBackend
	reads  atomic.Uint32
	writes atomic.Uint32
}

func NewInstrumentedStorage(wrapped storage.TopicDataBackend) *InstrumentedStorage {
	return &InstrumentedStorage{TopicDataBackend: wrapped}
}

type Metrics struct {
	DatastoreReadCount  uint32
	DatastoreWriteCount uint32
}

func (m *InstrumentedStorage) GetMetrics() Metrics {
	return Metrics{
		DatastoreReadCount:  m.reads.Load(),
		DatastoreWriteCount: m.writes.Load(),
	}
}

func (m *InstrumentedStorage) Insert(ctx context.Context, tenantID, topicID string, data value.Map) (*storage.Row, error) {
	m.writes.Add(1)
	return m.TopicDataBackend.Insert(ctx, tenantID, topicID, data)
}

func (m *InstrumentedStorage) Update(ctx context.Context, row *storage.Row) (*storage.Row, error) {
	m.writes.Add(1)
	return m.TopicDataBackend.Update(ctx, row)
}

func (m *InstrumentedStorage) Delete(ctx context.Context, tenantID, topicID, id string) error {
	m.writes.Add(1)
	return m.TopicDataBackend.Delete(ctx, tenantID, topicID, id)
}

func (m *InstrumentedStorage) FindByID(ctx context.Context, tenantID, topicID, id string) (*storage.Row, error) {
	m.reads.Add(1)
	return m.TopicDataBackend.FindByID(ctx, tenantID, topicID, id)
}

func (m *InstrumentedStorage) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	m.reads.Add(1)
	return m.TopicDataBackend.Find(ctx, tenantID, topicID, filter)
}
