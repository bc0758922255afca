// Package storage contains the topic row and monitor log storage interfaces and their
// implementations.
//
//go:generate mockgen -source storage.go -destination ../../internal/mocks/mock_storage.go -package mocks Datastore
package storage

import (
	"context"
	"time"

	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

// Row is one stored row of a topic.
type Row struct {
	ID       string
	TenantID string
	TopicID  string
	// Version starts at 1 and grows by one on every update.
	Version   int64
	Data      value.Map
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy of r sharing the immutable data.
func (r *Row) Clone() *Row {
	c := *r
	return &c
}

// Filter selects rows. Backends scan a tenant's topic and apply it in process.
type Filter func(data value.Map) (bool, error)

// All selects every row.
func All(value.Map) (bool, error) { return true, nil }

// TopicDataBackend stores topic rows.
type TopicDataBackend interface {
	// Insert stores data as a new row with version 1 and returns it.
	Insert(ctx context.Context, tenantID, topicID string, data value.Map) (*Row, error)

	// Update replaces the data of row if its stored version still equals row.Version and
	// returns the row with the next version. A stale version fails with ErrVersionConflict,
	// a missing row with ErrNotFound.
	Update(ctx context.Context, row *Row) (*Row, error)

	// Delete removes a row. A missing row fails with ErrNotFound.
	Delete(ctx context.Context, tenantID, topicID, id string) error

	// FindByID returns a row or ErrNotFound.
	FindByID(ctx context.Context, tenantID, topicID, id string) (*Row, error)

	// Find returns the rows accepted by filter, oldest first.
	Find(ctx context.Context, tenantID, topicID string, filter Filter) ([]*Row, error)
}

// MonitorLogBackend stores monitor logs.
type MonitorLogBackend interface {
	AppendMonitorLog(ctx context.Context, log *model.MonitorLog) error

	// ReadMonitorLogs returns the logs of one trace in the order they were appended.
	ReadMonitorLogs(ctx context.Context, tenantID, traceID string) ([]*model.MonitorLog, error)
}

// ReadinessStatus reports whether a datastore can serve requests.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current datastore status.
	Message string
	IsReady bool
}

// Datastore is the full storage backend.
type Datastore interface {
	TopicDataBackend
	MonitorLogBackend

	// IsReady reports whether the datastore is reachable and migrated.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the datastore and cleans up any residual resources.
	Close()
}
