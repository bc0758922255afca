package postgres

import (
	"context"
	"net/url"

	"github.com/pressly/goose/v3"

	"github.com/topicflow/topicflow/assets"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
)

// MigrationProvider implements [storage.MigrationProvider] for PostgreSQL.
type MigrationProvider struct{}

// NewMigrationProvider creates a new PostgreSQL migration provider.
func NewMigrationProvider() *MigrationProvider {
	return &MigrationProvider{}
}

// GetSupportedEngine returns the database engine this provider supports.
func (p *MigrationProvider) GetSupportedEngine() string {
	return "postgres"
}

// RunMigrations executes PostgreSQL database migrations.
func (p *MigrationProvider) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	uri, err := prepareURI(config)
	if err != nil {
		return err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "postgres", "pgx", uri, config)
	if err != nil {
		return err
	}
	defer db.Close()

	return sqlcommon.ExecuteMigrations(db, "postgres", assets.PostgresMigrationDir, config)
}

// GetCurrentVersion returns the current migration version.
func (p *MigrationProvider) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	uri, err := prepareURI(config)
	if err != nil {
		return 0, err
	}

	db, err := sqlcommon.OpenForMigration(ctx, "postgres", "pgx", uri, config)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return goose.GetDBVersionContext(ctx, db)
}

func prepareURI(config storage.MigrationConfig) (string, error) {
	if config.Username == "" && config.Password == "" {
		return config.URI, nil
	}

	parsed, err := url.Parse(config.URI)
	if err != nil {
		return "", err
	}

	username := config.Username
	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
	}
	password := config.Password
	if password == "" && parsed.User != nil {
		password, _ = parsed.User.Password()
	}
	if password != "" {
		parsed.User = url.UserPassword(username, password)
	} else {
		parsed.User = url.User(username)
	}
	return parsed.String(), nil
}
