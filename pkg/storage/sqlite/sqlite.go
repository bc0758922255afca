// Package sqlite is the SQLite datastore, backed by the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/value"
)

// Datastore provides a SQLite based implementation of [storage.Datastore].
type Datastore struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

var _ storage.Datastore = (*Datastore)(nil)

// PrepareDSN prepares a raw DSN for use with SQLite, specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	// Set transaction mode to immediate if not specified
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "topicflow")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "sqlite")
	dbInfo.Retry = busyRetry

	return &Datastore{
		db:               db,
		dbInfo:           dbInfo,
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

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			return storage.ErrCollision
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
