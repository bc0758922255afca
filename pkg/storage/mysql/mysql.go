// Package mysql is the MySQL datastore.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/value"
)

const duplicateEntry = 1062

// Datastore provides a MySQL based implementation of [storage.Datastore].
type Datastore struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

var _ storage.Datastore = (*Datastore)(nil)

// PrepareDSN applies the configured credentials to uri.
func PrepareDSN(uri, username, password string) (string, error) {
	if username == "" && password == "" {
		return uri, nil
	}

	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}

	return dsnCfg.FormatDSN(), nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for mysql", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "topicflow")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	return &Datastore{
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "mysql"),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// Close closes the datastore and cleans up any residual resources.
func (m *Datastore) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.db.Close()
}

func (m *Datastore) Insert(ctx context.Context, tenantID, topicID string, data value.Map) (*storage.Row, error) {
	return sqlcommon.Insert(ctx, m.dbInfo, tenantID, topicID, data)
}

func (m *Datastore) Update(ctx context.Context, row *storage.Row) (*storage.Row, error) {
	return sqlcommon.Update(ctx, m.dbInfo, row)
}

func (m *Datastore) Delete(ctx context.Context, tenantID, topicID, id string) error {
	return sqlcommon.Delete(ctx, m.dbInfo, tenantID, topicID, id)
}

func (m *Datastore) FindByID(ctx context.Context, tenantID, topicID, id string) (*storage.Row, error) {
	return sqlcommon.FindByID(ctx, m.dbInfo, tenantID, topicID, id)
}

func (m *Datastore) Find(ctx context.Context, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	return sqlcommon.Find(ctx, m.dbInfo, tenantID, topicID, filter)
}

func (m *Datastore) AppendMonitorLog(ctx context.Context, log *model.MonitorLog) error {
	return sqlcommon.AppendMonitorLog(ctx, m.dbInfo, log)
}

func (m *Datastore) ReadMonitorLogs(ctx context.Context, tenantID, traceID string) ([]*model.MonitorLog, error) {
	return sqlcommon.ReadMonitorLogs(ctx, m.dbInfo, tenantID, traceID)
}

// IsReady see [sqlcommon.IsReady].
func (m *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, m.versionReady, m.db)
	if err != nil {
		return versionReady, err
	}
	m.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == duplicateEntry {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
