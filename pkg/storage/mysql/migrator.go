package mysql

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/topicflow/topicflow/assets"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
)

// MigrationProvider implements [storage.MigrationProvider] for MySQL.
type MigrationProvider struct{}

// NewMigrationProvider creates a new MySQL migration provider.
func NewMigrationProvider() *MigrationProvider {
	return &MigrationProvider{}
}

// GetSupportedEngine returns the database engine this provider supports.
func (m *MigrationProvider) GetSupportedEngine() string {
	return "mysql"
}

// RunMigrations executes MySQL database migrations.
func (m *MigrationProvider) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	uri, err := PrepareDSN(config.URI, config.Username, config.Password)
	if err != nil {
		return err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "mysql", "mysql", uri, config)
	if err != nil {
		return err
	}
	defer db.Close()

	return sqlcommon.ExecuteMigrations(db, "mysql", assets.MySQLMigrationDir, config)
}

// GetCurrentVersion returns the current migration version.
func (m *MigrationProvider) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	uri, err := PrepareDSN(config.URI, config.Username, config.Password)
	if err != nil {
		return 0, err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "mysql", "mysql", uri, config)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return goose.GetDBVersionContext(ctx, db)
}
