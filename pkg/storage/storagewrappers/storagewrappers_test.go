package storagewrappers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/topicflow/topicflow/internal/mocks"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/memory"
	"github.com/topicflow/topicflow/pkg/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBoundedConcurrencyDatastore(t *testing.T) {
	ctx := context.Background()
	ds := NewBoundedConcurrencyDatastore(memory.New(), 1)

	row, err := ds.Insert(ctx, "t1", "orders", value.Map{})
	require.NoError(t, err)

	t.Run("reads_pass_through", func(t *testing.T) {
		got, err := ds.FindByID(ctx, "t1", "orders", row.ID)
		require.NoError(t, err)
		require.Equal(t, row.ID, got.ID)
	})

	t.Run("waits_for_a_slot", func(t *testing.T) {
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ds.Find(ctx, "t1", "orders", func(value.Map) (bool, error) {
				<-release
				return true, nil
			})
		}()

		// the blocked Find holds the only slot
		require.Eventually(t, func() bool { return len(ds.limiter) == 1 }, time.Second, time.Millisecond)

		timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := ds.FindByID(timeout, "t1", "orders", row.ID)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		wg.Wait()
	})
}

func TestBoundedConcurrencySerializesSlowReads(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	row, err := backend.Insert(ctx, "t1", "orders", value.Map{})
	require.NoError(t, err)

	const delay = 20 * time.Millisecond
	ds := NewBoundedConcurrencyDatastore(mocks.NewMockSlowDataStorage(backend, delay), 1)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ds.FindByID(ctx, "t1", "orders", row.ID)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.GreaterOrEqual(t, time.Since(start), 3*delay)
}

func TestInstrumentedStorage(t *testing.T) {
	ctx := context.Background()
	ds := NewInstrumentedStorage(memory.New())

	row, err := ds.Insert(ctx, "t1", "orders", value.Map{})
	require.NoError(t, err)
	_, err = ds.Update(ctx, row)
	require.NoError(t, err)
	_, err = ds.Find(ctx, "t1", "orders", storage.All)
	require.NoError(t, err)
	_, err = ds.FindByID(ctx, "t1", "orders", row.ID)
	require.NoError(t, err)
	require.NoError(t, ds.Delete(ctx, "t1", "orders", row.ID))

	require.Equal(t, Metrics{DatastoreReadCount: 2, DatastoreWriteCount: 3}, ds.GetMetrics())
}
