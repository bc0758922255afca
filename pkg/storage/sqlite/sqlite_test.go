package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/storage/test"
)

func newDatastore(t *testing.T) (*Datastore, string) {
	t.Helper()

	uri := filepath.Join(t.TempDir(), "topicflow.db")
	err := NewMigrationProvider().RunMigrations(context.Background(), storage.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	ds, err := New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds, uri
}

func TestSQLiteDatastore(t *testing.T) {
	ds, _ := newDatastore(t)
	test.RunAllTests(t, ds)
}

func TestIsReadyBeforeMigration(t *testing.T) {
	ds, err := New(filepath.Join(t.TempDir(), "empty.db"), sqlcommon.NewConfig())
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.False(t, status.IsReady)
	require.Contains(t, status.Message, "topicflow migrate")
}

func TestPrepareDSN(t *testing.T) {
	var tests = []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "defaults",
			uri:  "file.db",
			want: "file.db?_pragma=journal_mode%28WAL%29&_pragma=busy_timeout%28100%29&_txlock=immediate",
		},
		{
			name: "keeps_explicit_pragmas",
			uri:  "file.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(500)&_txlock=deferred",
			want: "file.db?_pragma=journal_mode%28DELETE%29&_pragma=busy_timeout%28500%29&_txlock=deferred",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := PrepareDSN(test.uri)
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}

	t.Run("malformed_query", func(t *testing.T) {
		_, err := PrepareDSN("file.db?%zz")
		require.ErrorContains(t, err, "error parsing dsn")
	})
}

func TestBusyRetry(t *testing.T) {
	t.Run("passes_through_other_errors", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := busyRetry(func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, busyRetry(func() error { return nil }))
	})
}

func TestHandleSQLError(t *testing.T) {
	err := HandleSQLError(fmt.Errorf("wrapped: %w", errors.New("disk full")))
	require.ErrorContains(t, err, "sql error")
	require.NotErrorIs(t, err, storage.ErrCollision)
}
