package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/assets"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/storage"
)

// OpenForMigration opens db through goose and waits for it to answer a ping.
func OpenForMigration(ctx context.Context, engine, driver, uri string, config storage.MigrationConfig) (*sql.DB, error) {
	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(config.Verbose)

	if err := goose.SetDialect(engine); err != nil {
		return nil, fmt.Errorf("failed to set %s dialect: %w", engine, err)
	}

	db, err := goose.OpenDBWithDriver(driver, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", engine, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = config.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s connection: %w", engine, err)
	}

	goose.SetBaseFS(assets.EmbedMigrations)
	return db, nil
}

// ExecuteMigrations migrates db up, or up or down to config.TargetVersion when it is set.
func ExecuteMigrations(db *sql.DB, engine, migrationsPath string, config storage.MigrationConfig) error {
	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", engine, err)
	}

	log.Info("current schema version", zap.String("engine", engine), zap.Int64("version", currentVersion))

	if config.TargetVersion == 0 {
		if err := goose.Up(db, migrationsPath); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", engine, err)
		}
		log.Info("migration done", zap.String("engine", engine))
		return nil
	}

	target := int64(config.TargetVersion)
	switch {
	case target < currentVersion:
		if err := goose.DownTo(db, migrationsPath, target); err != nil {
			return fmt.Errorf("failed to run %s migrations down to %v: %w", engine, target, err)
		}
	case target > currentVersion:
		if err := goose.UpTo(db, migrationsPath, target); err != nil {
			return fmt.Errorf("failed to run %s migrations up to %v: %w", engine, target, err)
		}
	default:
		log.Info("nothing to migrate", zap.String("engine", engine))
		return nil
	}

	log.Info("migration done", zap.String("engine", engine), zap.Int64("version", target))
	return nil
}
