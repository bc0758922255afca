// Package storagewrappers decorates a storage.Datastore.
package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/topicflow/topicflow/pkg/storage"
)

var _ storage.Datastore = (*BoundedConcurrencyDatastore)(nil)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "topicflow",
	Name:      "time_waiting_for_datastore_reads_ms",
	Help:      "Time (in ms) spent waiting for Find and FindByID calls to the datastore",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000},
})

// BoundedConcurrencyDatastore makes sure that there are, at most, N concurrent Find and
// FindByID calls to the wrapped datastore.
type BoundedConcurrencyDatastore struct {
	storage.Datastore
	limiter chan struct{}
}

// NewBoundedConcurrencyDatastore returns a wrapper over a datastore that bounds concurrent reads to n.
func NewBoundedConcurrencyDatastore(wrapped storage.Datastore, n uint32) *BoundedConcurrencyDatastore {
	return &BoundedConcurrencyDatastore{
		Datastore: wrapped,
		limiter:   make(chan struct{}, n),
	}
}

func (b *BoundedConcurrencyDatastore) acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("time_waiting", timeWaiting))
	return nil
}

func (b *BoundedConcurrencyDatastore) release() {
	<-b.limiter
}

// FindByID see [storage.TopicDataBackend].FindByID.
func (b *BoundedConcurrencyDatastore) FindByID(ctx context.Context, tenantID, topicID, id string) (*storage.Row, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	return b.Datastore.FindByID(ctx, tenantID, topicID, id)
}

// Find see [storage.TopicDataBackend].Find.
func (b *BoundedConcurrencyDatastore) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	return b.Datastore.Find(ctx, tenantID, topicID, filter)
}
