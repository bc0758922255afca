package sqlite

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/topicflow/topicflow/assets"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
)

// MigrationProvider implements [storage.MigrationProvider] for SQLite.
type MigrationProvider struct{}

// NewMigrationProvider creates a new SQLite migration provider.
func NewMigrationProvider() *MigrationProvider {
	return &MigrationProvider{}
}

// GetSupportedEngine returns the database engine this provider supports.
func (s *MigrationProvider) GetSupportedEngine() string {
	return "sqlite"
}

// RunMigrations executes SQLite database migrations.
func (s *MigrationProvider) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	uri, err := PrepareDSN(config.URI)
	if err != nil {
		return err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "sqlite", "sqlite", uri, config)
	if err != nil {
		return err
	}
	defer db.Close()

	return sqlcommon.ExecuteMigrations(db, "sqlite", assets.SqliteMigrationDir, config)
}

// GetCurrentVersion returns the current migration version.
func (s *MigrationProvider) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	uri, err := PrepareDSN(config.URI)
	if err != nil {
		return 0, err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "sqlite", "sqlite", uri, config)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return goose.GetDBVersionContext(ctx, db)
}
