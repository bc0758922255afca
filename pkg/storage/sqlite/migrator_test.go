package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/storage"
)

func TestMigrationProvider(t *testing.T) {
	provider := NewMigrationProvider()

	t.Run("supported_engine", func(t *testing.T) {
		require.Equal(t, "sqlite", provider.GetSupportedEngine())
		require.Implements(t, (*storage.MigrationProvider)(nil), provider)
	})

	t.Run("invalid_path", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "/invalid/path/that/does/not/exist/db.sqlite",
			Timeout: 1 * time.Second,
		}

		err := provider.RunMigrations(context.Background(), config)
		require.Error(t, err)
	})

	t.Run("up_then_down", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     filepath.Join(t.TempDir(), "db.sqlite"),
			Timeout: 5 * time.Second,
		}

		require.NoError(t, provider.RunMigrations(context.Background(), config))
		version, err := provider.GetCurrentVersion(context.Background(), config)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)

		// a zero target means latest, so target the current version
		config.TargetVersion = 1
		require.NoError(t, provider.RunMigrations(context.Background(), config))
		version, err = provider.GetCurrentVersion(context.Background(), config)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)
	})
}
