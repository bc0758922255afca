package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/test"
	"github.com/topicflow/topicflow/pkg/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemdbStorage(t *testing.T) {
	ds := New()
	t.Cleanup(ds.Close)
	test.RunAllTests(t, ds)
}

func TestRowsAreCopied(t *testing.T) {
	ctx := context.Background()
	ds := New()

	row, err := ds.Insert(ctx, "t1", "orders", value.Map{"a": value.NumFromInt(1)})
	require.NoError(t, err)

	row.Version = 42
	got, err := ds.FindByID(ctx, "t1", "orders", row.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)
}

func TestWithClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ds := New(WithClock(func() time.Time { return now }))

	row, err := ds.Insert(context.Background(), "t1", "orders", value.Map{})
	require.NoError(t, err)
	require.Equal(t, now, row.CreatedAt)

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, storage.ReadinessStatus{IsReady: true}, status)
}
