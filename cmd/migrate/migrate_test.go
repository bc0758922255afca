package migrate

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/storage/sqlite"
)

func TestMigrateCommand(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("missing_engine", func(t *testing.T) {
		viper.Reset()
		cmd := NewMigrateCommand()
		cmd.SetArgs([]string{})
		require.ErrorContains(t, cmd.Execute(), "missing datastore engine type")
	})

	t.Run("memory_is_a_noop", func(t *testing.T) {
		viper.Reset()
		cmd := NewMigrateCommand()
		cmd.SetArgs([]string{"--datastore-engine", "memory"})
		require.NoError(t, cmd.Execute())
	})

	t.Run("unknown_engine", func(t *testing.T) {
		viper.Reset()
		cmd := NewMigrateCommand()
		cmd.SetArgs([]string{"--datastore-engine", "oracle", "--datastore-uri", "x"})
		require.ErrorContains(t, cmd.Execute(), "no migration provider registered for engine: oracle")
	})

	t.Run("sqlite", func(t *testing.T) {
		viper.Reset()
		uri := filepath.Join(t.TempDir(), "topicflow.db")
		cmd := NewMigrateCommand()
		cmd.SetArgs([]string{"--datastore-engine", "sqlite", "--datastore-uri", uri})
		cmd.SetContext(context.Background())
		require.NoError(t, cmd.Execute())

		ds, err := sqlite.New(uri, sqlcommon.NewConfig())
		require.NoError(t, err)
		defer ds.Close()

		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)

		viper.Reset()
		out := &bytes.Buffer{}
		statusCmd := NewMigrateCommand()
		statusCmd.SetOut(out)
		statusCmd.SetArgs([]string{"--datastore-engine", "sqlite", "--datastore-uri", uri, "--status"})
		statusCmd.SetContext(context.Background())
		require.NoError(t, statusCmd.Execute())
		require.Equal(t, "sqlite schema revision 1 (minimum 1)\n", out.String())
	})

	t.Run("status_of_unmigrated_sqlite", func(t *testing.T) {
		viper.Reset()
		uri := filepath.Join(t.TempDir(), "empty.db")
		out := &bytes.Buffer{}
		cmd := NewMigrateCommand()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--datastore-engine", "sqlite", "--datastore-uri", uri, "--status"})
		cmd.SetContext(context.Background())
		require.ErrorIs(t, cmd.Execute(), storage.ErrSchemaBehind)
		require.Contains(t, out.String(), "sqlite schema revision 0")
	})
}
