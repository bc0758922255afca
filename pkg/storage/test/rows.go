package test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/id"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

func order(customer string, amount string) value.Map {
	return value.Map{
		"customerId": value.NewStr(customer),
		"amount":     value.MustNum(amount),
		"items":      value.Vec{value.NewStr("a"), value.NewStr("b")},
	}
}

func InsertAndFindByIDTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenantID := id.MustNewString()

	row, err := ds.Insert(ctx, tenantID, "orders", order("c1", "12.50"))
	require.NoError(t, err)
	require.True(t, id.IsValid(row.ID))
	require.Equal(t, int64(1), row.Version)
	require.Equal(t, tenantID, row.TenantID)
	require.Equal(t, "orders", row.TopicID)
	require.False(t, row.CreatedAt.IsZero())

	t.Run("found", func(t *testing.T) {
		got, err := ds.FindByID(ctx, tenantID, "orders", row.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(row, got, cmpOpts...); diff != "" {
			t.Errorf("row mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := ds.FindByID(ctx, tenantID, "orders", id.MustNewString())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("wrong_topic", func(t *testing.T) {
		_, err := ds.FindByID(ctx, tenantID, "totals", row.ID)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func UpdateTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenantID := id.MustNewString()

	row, err := ds.Insert(ctx, tenantID, "orders", order("c1", "1"))
	require.NoError(t, err)

	t.Run("bumps_version", func(t *testing.T) {
		changed := row.Clone()
		changed.Data = row.Data.With("amount", value.MustNum("2"))

		updated, err := ds.Update(ctx, changed)
		require.NoError(t, err)
		require.Equal(t, int64(2), updated.Version)

		got, err := ds.FindByID(ctx, tenantID, "orders", row.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), got.Version)
		require.True(t, value.Equals(value.MustNum("2"), got.Data.Get("amount")))
	})

	t.Run("stale_version_conflicts", func(t *testing.T) {
		_, err := ds.Update(ctx, row)
		require.ErrorIs(t, err, storage.ErrVersionConflict)

		got, err := ds.FindByID(ctx, tenantID, "orders", row.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), got.Version)
	})

	t.Run("missing_row", func(t *testing.T) {
		missing := row.Clone()
		missing.ID = id.MustNewString()
		_, err := ds.Update(ctx, missing)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func DeleteTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenantID := id.MustNewString()

	row, err := ds.Insert(ctx, tenantID, "orders", order("c1", "1"))
	require.NoError(t, err)

	require.NoError(t, ds.Delete(ctx, tenantID, "orders", row.ID))

	_, err = ds.FindByID(ctx, tenantID, "orders", row.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = ds.Delete(ctx, tenantID, "orders", row.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func FindTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenantID := id.MustNewString()

	var inserted []*storage.Row
	for _, customer := range []string{"c1", "c2", "c1"} {
		row, err := ds.Insert(ctx, tenantID, "orders", order(customer, "1"))
		require.NoError(t, err)
		inserted = append(inserted, row)
	}

	t.Run("all_in_insertion_order", func(t *testing.T) {
		rows, err := ds.Find(ctx, tenantID, "orders", storage.All)
		require.NoError(t, err)
		if diff := cmp.Diff(inserted, rows, cmpOpts...); diff != "" {
			t.Errorf("rows mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		rows, err := ds.Find(ctx, tenantID, "orders", func(data value.Map) (bool, error) {
			return value.Equals(data.Get("customerId"), value.NewStr("c1")), nil
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, inserted[0].ID, rows[0].ID)
		require.Equal(t, inserted[2].ID, rows[1].ID)
	})

	t.Run("filter_error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := ds.Find(ctx, tenantID, "orders", func(value.Map) (bool, error) {
			return false, boom
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("empty_topic", func(t *testing.T) {
		rows, err := ds.Find(ctx, tenantID, "nothing", storage.All)
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TenantIsolationTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenant1, tenant2 := id.MustNewString(), id.MustNewString()

	row, err := ds.Insert(ctx, tenant1, "orders", order("c1", "1"))
	require.NoError(t, err)

	_, err = ds.FindByID(ctx, tenant2, "orders", row.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	rows, err := ds.Find(ctx, tenant2, "orders", storage.All)
	require.NoError(t, err)
	require.Empty(t, rows)

	err = ds.Delete(ctx, tenant2, "orders", row.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
