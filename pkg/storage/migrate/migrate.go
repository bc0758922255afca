// Package migrate runs the schema migrations of the SQL datastores.
package migrate

import (
	"context"
	"sync"

	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/mysql"
	"github.com/topicflow/topicflow/pkg/storage/postgres"
	"github.com/topicflow/topicflow/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig = storage.MigrationConfig

const memoryEngine = "memory"

// DefaultRegistry holds the providers of the built-in SQL engines.
var DefaultRegistry = sync.OnceValue(func() *storage.MigratorRegistry {
	return storage.NewMigratorRegistry(
		postgres.NewMigrationProvider(),
		mysql.NewMigrationProvider(),
		sqlite.NewMigrationProvider(),
	)
})

// RunMigrations migrates the datastore of cfg to cfg.TargetVersion. The memory engine has no
// schema and is accepted as a noop.
func RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	if cfg.Engine == memoryEngine {
		if cfg.Logger != nil {
			cfg.Logger.Info("no migrations to run for `memory` datastore")
		}
		return nil
	}
	return DefaultRegistry().Migrate(ctx, cfg)
}

// CurrentRevision reports the schema revision of the datastore of cfg. See
// [storage.MigratorRegistry.CheckRevision].
func CurrentRevision(ctx context.Context, cfg MigrationConfig) (int64, error) {
	if cfg.Engine == memoryEngine {
		return 0, nil
	}
	return DefaultRegistry().CheckRevision(ctx, cfg)
}
