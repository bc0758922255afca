// Package postgres is the PostgreSQL datastore, backed by the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/value"
)

const uniqueViolation = "23505"

// Datastore provides a PostgreSQL based implementation of [storage.Datastore].
type Datastore struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

var _ storage.Datastore = (*Datastore)(nil)

// initDB initializes a new postgres database connection.
func initDB(uri string, cfg *sqlcommon.Config) (*sql.DB, error) {
	if cfg.Username != "" || cfg.Password != "" {
		parsed, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse postgres connection uri: %w", err)
		}

		username := ""
		if cfg.Username != "" {
			username = cfg.Username
		} else if parsed.User != nil {
			username = parsed.User.Username()
		}

		switch {
		case cfg.Password != "":
			parsed.User = url.UserPassword(username, cfg.Password)
		case parsed.User != nil:
			if password, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(username, password)
			} else {
				parsed.User = url.User(username)
			}
		default:
			parsed.User = url.User(username)
		}

		uri = parsed.String()
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns) // default is 2, not retaining connections(0) would be detrimental for performance
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	db, err := initDB(uri, cfg)
	if err != nil {
		return nil, err
	}

	return NewWithDB(db, cfg)
}

// configureDB waits for the database to answer and registers its metrics.
func configureDB(db *sql.DB, cfg *sqlcommon.Config) (prometheus.Collector, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "topicflow")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return collector, nil
}

// NewWithDB creates a new [Datastore] storage with the provided database connection.
func NewWithDB(db *sql.DB, cfg *sqlcommon.Config) (*Datastore, error) {
	collector, err := configureDB(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure db: %w", err)
	}

	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db)
	return &Datastore{
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "postgres"),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// Close see [storage.Datastore].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// Insert see [storage.TopicDataBackend].Insert.
func (s *Datastore) Insert(ctx context.Context, tenantID, topicID string, data value.Map) (*storage.Row, error) {
	return sqlcommon.Insert(ctx, s.dbInfo, tenantID, topicID, data)
}

// Update see [storage.TopicDataBackend].Update.
func (s *Datastore) Update(ctx context.Context, row *storage.Row) (*storage.Row, error) {
	return sqlcommon.Update(ctx, s.dbInfo, row)
}

// Delete see [storage.TopicDataBackend].Delete.
func (s *Datastore) Delete(ctx context.Context, tenantID, topicID, id string) error {
	return sqlcommon.Delete(ctx, s.dbInfo, tenantID, topicID, id)
}

// FindByID see [storage.TopicDataBackend].FindByID.
func (s *Datastore) FindByID(ctx context.Context, tenantID, topicID, id string) (*storage.Row, error) {
	return sqlcommon.FindByID(ctx, s.dbInfo, tenantID, topicID, id)
}

// Find see [storage.TopicDataBackend].Find.
func (s *Datastore) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	return sqlcommon.Find(ctx, s.dbInfo, tenantID, topicID, filter)
}

// AppendMonitorLog see [storage.MonitorLogBackend].AppendMonitorLog.
func (s *Datastore) AppendMonitorLog(ctx context.Context, log *model.MonitorLog) error {
	return sqlcommon.AppendMonitorLog(ctx, s.dbInfo, log)
}

// ReadMonitorLogs see [storage.MonitorLogBackend].ReadMonitorLogs.
func (s *Datastore) ReadMonitorLogs(ctx context.Context, tenantID, traceID string) ([]*model.MonitorLog, error) {
	return sqlcommon.ReadMonitorLogs(ctx, s.dbInfo, tenantID, traceID)
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrCollision
	}
	if strings.Contains(err.Error(), "duplicate key value") {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
