package mocks

import (
	"context"
	"time"

	"github.com/topicflow/topicflow/pkg/storage"
)

// slowDataStorage is a proxy to the actual ds except the reads are slowed by readDelay.
type slowDataStorage struct {
	readDelay time.Duration
	storage.Datastore
}

// NewMockSlowDataStorage returns a wrapper of a datastore that adds artificial delays into the reads of rows.
func NewMockSlowDataStorage(ds storage.Datastore, readDelay time.Duration) storage.Datastore {
	return &slowDataStorage{
		readDelay: readDelay,
		Datastore: ds,
	}
}

func (m *slowDataStorage) Close() {}

func (m *slowDataStorage) FindByID(ctx context.Context, tenantID, topicID, id string) (*storage.Row, error) {
	time.Sleep(m.readDelay)
	return m.Datastore.FindByID(ctx, tenantID, topicID, id)
}

func (m *slowDataStorage) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	time.Sleep(m.readDelay)
	return m.Datastore.Find(ctx, tenantID, topicID, filter)
}
