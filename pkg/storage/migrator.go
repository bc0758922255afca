package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/topicflow/topicflow/internal/build"
	"github.com/topicflow/topicflow/pkg/logger"
)

var (
	// ErrUnknownEngine is returned when no migration provider serves an engine.
	ErrUnknownEngine = errors.New("no migration provider registered for engine")

	// ErrSchemaBehind is returned when a datastore has not been migrated far enough.
	ErrSchemaBehind = errors.New("datastore schema is behind the supported revision")
)

// MigrationProvider migrates the schema of one SQL engine.
type MigrationProvider interface {
	RunMigrations(ctx context.Context, config MigrationConfig) error
	GetCurrentVersion(ctx context.Context, config MigrationConfig) (int64, error)
	// GetSupportedEngine is the datastore engine name, e.g. "postgres".
	GetSupportedEngine() string
}

// MigrationConfig is what a provider needs to reach its database.
type MigrationConfig struct {
	Engine string
	URI    string
	// TargetVersion of zero migrates to the latest revision.
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
	Logger        logger.Logger
}

// MigratorRegistry resolves a datastore engine to its MigrationProvider.
type MigratorRegistry struct {
	providers map[string]MigrationProvider
}

// NewMigratorRegistry indexes providers by the engine they support. A later provider for the
// same engine replaces an earlier one.
func NewMigratorRegistry(providers ...MigrationProvider) *MigratorRegistry {
	r := &MigratorRegistry{providers: make(map[string]MigrationProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *MigratorRegistry) Register(provider MigrationProvider) {
	r.providers[provider.GetSupportedEngine()] = provider
}

// Lookup returns the provider of engine, or ErrUnknownEngine.
func (r *MigratorRegistry) Lookup(engine string) (MigrationProvider, error) {
	provider, ok := r.providers[engine]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
	}
	return provider, nil
}

// Engines lists the registered engines in lexical order.
func (r *MigratorRegistry) Engines() []string {
	return slices.Sorted(maps.Keys(r.providers))
}

// Migrate runs the migrations of cfg.Engine.
func (r *MigratorRegistry) Migrate(ctx context.Context, cfg MigrationConfig) error {
	provider, err := r.Lookup(cfg.Engine)
	if err != nil {
		return err
	}
	return provider.RunMigrations(ctx, cfg)
}

// CheckRevision returns the schema revision of the database behind cfg, and ErrSchemaBehind
// when it is older than the revision this build reads and writes.
func (r *MigratorRegistry) CheckRevision(ctx context.Context, cfg MigrationConfig) (int64, error) {
	provider, err := r.Lookup(cfg.Engine)
	if err != nil {
		return 0, err
	}
	revision, err := provider.GetCurrentVersion(ctx, cfg)
	if err != nil {
		return 0, err
	}
	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return revision, fmt.Errorf("%w: found %d, need %d", ErrSchemaBehind, revision, build.MinimumSupportedDatastoreSchemaRevision)
	}
	return revision, nil
}
