// Package test holds the behavioral suite every [storage.Datastore] implementation must pass.
package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

var cmpOpts = []cmp.Option{
	cmp.Comparer(value.Equals),
	cmpopts.IgnoreFields(storage.Row{}, "CreatedAt", "UpdatedAt"),
}

// RunAllTests runs the suite against ds. ds must be migrated and otherwise empty.
func RunAllTests(t *testing.T, ds storage.Datastore) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})

	// Topic rows.
	t.Run("TestInsertAndFindByID", func(t *testing.T) { InsertAndFindByIDTest(t, ds) })
	t.Run("TestUpdate", func(t *testing.T) { UpdateTest(t, ds) })
	t.Run("TestDelete", func(t *testing.T) { DeleteTest(t, ds) })
	t.Run("TestFind", func(t *testing.T) { FindTest(t, ds) })
	t.Run("TestTenantIsolation", func(t *testing.T) { TenantIsolationTest(t, ds) })

	// Monitor logs.
	t.Run("TestMonitorLogs", func(t *testing.T) { MonitorLogTest(t, ds) })
}
