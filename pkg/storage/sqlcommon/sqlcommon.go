// Package sqlcommon holds the SQL shared by the sqlite, postgres and mysql datastores. Rows
// are stored with their data in the binary value encoding; timestamps are unix milliseconds.
package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"

	"github.com/topicflow/topicflow/internal/build"
	"github.com/topicflow/topicflow/pkg/id"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

var tracer = otel.Tracer("pkg/storage/sqlcommon")

const (
	topicDataTable  = "topic_data"
	monitorLogTable = "monitor_log"
)

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username string
	Password string
	Logger   logger.Logger

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}

type errorHandlerFn func(error, ...interface{}) error

// DBInfo bundles a connection with its statement builder and dialect specific error
// translation. Retry wraps every write; dialects that need no retry leave it nil.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	HandleSQLError errorHandlerFn
	Retry          func(func() error) error
	clock          func() time.Time
}

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler errorHandlerFn, dialect string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		HandleSQLError: errorHandler,
		clock:          time.Now,
	}
}

func (d *DBInfo) retry(fn func() error) error {
	if d.Retry == nil {
		return fn()
	}
	return d.Retry(fn)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Insert see [storage.TopicDataBackend].Insert.
func Insert(ctx context.Context, dbInfo *DBInfo, tenantID, topicID string, data value.Map) (*storage.Row, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Insert")
	defer span.End()

	encoded, err := value.Encode(data)
	if err != nil {
		return nil, err
	}
	rowID, err := id.NewString()
	if err != nil {
		return nil, err
	}
	now := dbInfo.clock().UTC().Truncate(time.Millisecond)

	err = dbInfo.retry(func() error {
		_, err := dbInfo.stbl.
			Insert(topicDataTable).
			Columns("id", "tenant_id", "topic_id", "version", "data", "created_at", "updated_at").
			Values(rowID, tenantID, topicID, 1, encoded, millis(now), millis(now)).
			ExecContext(ctx)
		return err
	})
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}

	return &storage.Row{
		ID:        rowID,
		TenantID:  tenantID,
		TopicID:   topicID,
		Version:   1,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update see [storage.TopicDataBackend].Update.
func Update(ctx context.Context, dbInfo *DBInfo, row *storage.Row) (*storage.Row, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Update")
	defer span.End()

	encoded, err := value.Encode(row.Data)
	if err != nil {
		return nil, err
	}
	now := dbInfo.clock().UTC().Truncate(time.Millisecond)

	var affected int64
	err = dbInfo.retry(func() error {
		res, err := dbInfo.stbl.
			Update(topicDataTable).
			Set("data", encoded).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", millis(now)).
			Where(sq.Eq{
				"tenant_id": row.TenantID,
				"topic_id":  row.TopicID,
				"id":        row.ID,
				"version":   row.Version,
			}).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}

	if affected == 0 {
		if _, err := FindByID(ctx, dbInfo, row.TenantID, row.TopicID, row.ID); err != nil {
			return nil, err
		}
		return nil, storage.VersionConflictError(row.TopicID, row.ID, row.Version)
	}

	updated := row.Clone()
	updated.Version++
	updated.UpdatedAt = now
	return updated, nil
}

// Delete see [storage.TopicDataBackend].Delete.
func Delete(ctx context.Context, dbInfo *DBInfo, tenantID, topicID, rowID string) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.Delete")
	defer span.End()

	var affected int64
	err := dbInfo.retry(func() error {
		res, err := dbInfo.stbl.
			Delete(topicDataTable).
			Where(sq.Eq{"tenant_id": tenantID, "topic_id": topicID, "id": rowID}).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	if affected == 0 {
		return storage.NotFoundError(topicID, rowID)
	}
	return nil
}

var rowColumns = []string{"id", "tenant_id", "topic_id", "version", "data", "created_at", "updated_at"}

func scanRow(scanner sq.RowScanner) (*storage.Row, error) {
	var (
		row                  storage.Row
		encoded              []byte
		createdAt, updatedAt int64
	)
	if err := scanner.Scan(&row.ID, &row.TenantID, &row.TopicID, &row.Version, &encoded, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	decoded, err := value.Decode(encoded)
	if err != nil {
		return nil, err
	}
	data, ok := decoded.(value.Map)
	if !ok {
		data = value.Map{}
	}
	row.Data = data
	row.CreatedAt = fromMillis(createdAt)
	row.UpdatedAt = fromMillis(updatedAt)
	return &row, nil
}

// FindByID see [storage.TopicDataBackend].FindByID.
func FindByID(ctx context.Context, dbInfo *DBInfo, tenantID, topicID, rowID string) (*storage.Row, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.FindByID")
	defer span.End()

	row, err := scanRow(dbInfo.stbl.
		Select(rowColumns...).
		From(topicDataTable).
		Where(sq.Eq{"tenant_id": tenantID, "topic_id": topicID, "id": rowID}).
		QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFoundError(topicID, rowID)
		}
		return nil, dbInfo.HandleSQLError(err)
	}
	return row, nil
}

// Find see [storage.TopicDataBackend].Find.
func Find(ctx context.Context, dbInfo *DBInfo, tenantID, topicID string, filter storage.Filter) ([]*storage.Row, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Find")
	defer span.End()

	rows, err := dbInfo.stbl.
		Select(rowColumns...).
		From(topicDataTable).
		Where(sq.Eq{"tenant_id": tenantID, "topic_id": topicID}).
		OrderBy("id").
		QueryContext(ctx)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	var found []*storage.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		ok, err := filter(row.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	return found, nil
}

// AppendMonitorLog see [storage.MonitorLogBackend].AppendMonitorLog.
func AppendMonitorLog(ctx context.Context, dbInfo *DBInfo, log *model.MonitorLog) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.AppendMonitorLog")
	defer span.End()

	logID, err := id.NewString()
	if err != nil {
		return err
	}
	err = dbInfo.retry(func() error {
		_, err := dbInfo.stbl.
			Insert(monitorLogTable).
			Columns("id", "tenant_id", "trace_id", "round", "pipeline_id", "topic_id", "data_id",
				"stage_id", "unit_id", "action_id", "status", "start_time", "spent_in_mills", "error").
			Values(logID, log.TenantID, log.TraceID, log.Round, log.PipelineID, log.TopicID, log.DataID,
				log.StageID, log.UnitID, log.ActionID, string(log.Status), millis(log.StartTime), log.SpentInMills, log.Error).
			ExecContext(ctx)
		return err
	})
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	return nil
}

// ReadMonitorLogs see [storage.MonitorLogBackend].ReadMonitorLogs.
func ReadMonitorLogs(ctx context.Context, dbInfo *DBInfo, tenantID, traceID string) ([]*model.MonitorLog, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.ReadMonitorLogs")
	defer span.End()

	rows, err := dbInfo.stbl.
		Select("tenant_id", "trace_id", "round", "pipeline_id", "topic_id", "data_id",
			"stage_id", "unit_id", "action_id", "status", "start_time", "spent_in_mills", "error").
		From(monitorLogTable).
		Where(sq.Eq{"tenant_id": tenantID, "trace_id": traceID}).
		OrderBy("id").
		QueryContext(ctx)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	var logs []*model.MonitorLog
	for rows.Next() {
		var (
			log       model.MonitorLog
			status    string
			startTime int64
		)
		err := rows.Scan(&log.TenantID, &log.TraceID, &log.Round, &log.PipelineID, &log.TopicID, &log.DataID,
			&log.StageID, &log.UnitID, &log.ActionID, &status, &startTime, &log.SpentInMills, &log.Error)
		if err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		log.Status = model.MonitorStatus(status)
		log.StartTime = fromMillis(startTime)
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	return logs, nil
}

// IsReady returns true if connection to datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'topicflow migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}
