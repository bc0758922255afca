package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/topicflow/topicflow/internal/engine"
	"github.com/topicflow/topicflow/internal/pipelinecache"
	"github.com/topicflow/topicflow/pkg/encryption"
	"github.com/topicflow/topicflow/pkg/external"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/monitor"
	"github.com/topicflow/topicflow/pkg/principal"
	serverconfig "github.com/topicflow/topicflow/pkg/server/config"
	serverErrors "github.com/topicflow/topicflow/pkg/server/errors"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/storagewrappers"
	"github.com/topicflow/topicflow/pkg/value"
)

const (
	TenantIDTraceTag = "tenant_id"
	TopicIDTraceTag  = "topic_id"
)

var tracer = otel.Tracer("pkg/server")

// A Server stores topic rows and runs the pipelines their changes trigger.
type Server struct {
	logger     logger.Logger
	meta       meta.Reader
	datastore  storage.Datastore
	encryption *encryption.Registry
	resolver   *pipelinecache.Resolver
	engine     *engine.Engine
	config     *Config
}

type Dependencies struct {
	Meta       meta.Reader
	Datastore  storage.Datastore
	Logger     logger.Logger
	Encryption *encryption.Registry
	Externals  *external.Registry
	Sink       monitor.Sink
}

type Config struct {
	MaxConcurrentTasks int
	MaxRounds          int
	MergeRetries       uint64
	PipelineCacheSize  int64
	MaxConcurrentReads uint32
}

// DefaultConfig returns the defaults of the standalone server config.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentTasks: serverconfig.DefaultMaxConcurrentTasks,
		MaxRounds:          serverconfig.DefaultMaxRounds,
		MergeRetries:       serverconfig.DefaultMergeRetries,
		PipelineCacheSize:  serverconfig.DefaultPipelineCacheSize,
		MaxConcurrentReads: serverconfig.DefaultMaxConcurrentReads,
	}
}

// New creates a new Server which uses the supplied backends
// for managing data. Close releases the compiled pipeline cache.
func New(dependencies *Dependencies, config *Config) (*Server, error) {
	if dependencies.Meta == nil || dependencies.Datastore == nil {
		return nil, errors.New("a meta reader and a datastore are required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		logger:     dependencies.Logger,
		meta:       dependencies.Meta,
		datastore:  dependencies.Datastore,
		encryption: dependencies.Encryption,
		config:     config,
	}
	if s.logger == nil {
		s.logger = logger.NewNoopLogger()
	}
	if s.encryption == nil {
		s.encryption = encryption.NewRegistry()
	}

	resolver, err := pipelinecache.NewResolver(s.meta,
		pipelinecache.WithMaxCacheSize(config.PipelineCacheSize),
		pipelinecache.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.resolver = resolver

	sink := dependencies.Sink
	if sink == nil {
		sink = monitor.NewLoggerSink(s.logger)
	}
	externals := dependencies.Externals
	if externals == nil {
		externals = external.NewRegistry()
	}

	reads := config.MaxConcurrentReads
	if reads == 0 {
		reads = DefaultConfig().MaxConcurrentReads
	}
	s.engine = engine.New(s.meta, resolver,
		storagewrappers.NewBoundedConcurrencyDatastore(s.datastore, reads),
		engine.WithEncryption(s.encryption),
		engine.WithExternalWriters(externals),
		engine.WithMonitorSink(sink),
		engine.WithLogger(s.logger),
		engine.WithMaxConcurrentTasks(config.MaxConcurrentTasks),
		engine.WithMaxRounds(config.MaxRounds),
		engine.WithMergeRetries(config.MergeRetries),
	)
	return s, nil
}

// TriggerRequest is a change to a topic row.
type TriggerRequest struct {
	// Topic is the id or the name of the topic.
	Topic string
	Type  model.PipelineTriggerType
	// DataID identifies the row of a merge or a delete.
	DataID string
	Data   value.Map
}

// TriggerResponse is the outcome of a trigger.
type TriggerResponse struct {
	DataID string
	// Type is the change applied; an insert-or-merge resolves to one of the two.
	Type   model.PipelineTriggerType
	Report *engine.Report
}

// Trigger applies req to storage and runs the cascade it starts. The principal in ctx selects
// the tenant.
func (s *Server) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	p, ok := principal.FromContext(ctx)
	if !ok {
		return nil, serverErrors.Unauthenticated
	}
	ctx = logger.WithTenant(ctx, p.TenantID)

	ctx, span := tracer.Start(ctx, "Trigger", trace.WithAttributes(
		attribute.String(TenantIDTraceTag, p.TenantID),
		attribute.String("trigger_type", string(req.Type)),
	))
	defer span.End()

	topic, err := s.meta.FindTopic(ctx, p.TenantID, req.Topic)
	if err != nil {
		if errors.Is(err, meta.ErrNotFound) {
			return nil, serverErrors.TopicNotFound(req.Topic)
		}
		return nil, serverErrors.HandleError("", err)
	}
	span.SetAttributes(attribute.String(TopicIDTraceTag, topic.TopicID))

	data, err := s.prepare(topic, req.Data)
	if err != nil {
		return nil, err
	}

	var trigger *engine.Trigger
	switch req.Type {
	case model.TriggerInsert:
		trigger, err = s.insert(ctx, p.TenantID, topic, data)
	case model.TriggerMerge:
		trigger, err = s.merge(ctx, p.TenantID, topic, req.DataID, data)
	case model.TriggerInsertOrMerge:
		trigger, err = s.merge(ctx, p.TenantID, topic, req.DataID, data)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && trigger == nil) {
			trigger, err = s.insert(ctx, p.TenantID, topic, data)
		}
	case model.TriggerDelete:
		trigger, err = s.delete(ctx, p.TenantID, topic, req.DataID)
	default:
		return nil, serverErrors.InvalidArgument("unknown trigger type '%s'", req.Type)
	}
	if err != nil {
		return nil, serverErrors.HandleError("", err)
	}

	report, err := s.engine.Run(ctx, trigger)
	if err != nil {
		return nil, serverErrors.HandleError("", err)
	}
	if len(report.Failed()) > 0 || report.Dropped > 0 {
		s.logger.WarnWithContext(ctx, "cascade finished with failures",
			zap.String("trace_id", report.TraceID),
			zap.Int("failed", len(report.Failed())),
			zap.Int("dropped", report.Dropped),
		)
	}
	return &TriggerResponse{DataID: trigger.DataID, Type: trigger.Type, Report: report}, nil
}

// prepare casts the declared factors of data and drops bookkeeping keys callers may not set.
func (s *Server) prepare(topic *model.Topic, data value.Map) (value.Map, error) {
	if data == nil {
		data = value.Map{}
	}
	data = data.Without(engine.AggregateAssist)
	for _, f := range topic.Factors {
		path := value.SplitName(f.Name)
		current := data.GetPath(path)
		if value.IsNone(current) && f.DefaultValue == "" {
			continue
		}
		cast, err := engine.CastToFactor(f, current)
		if err != nil {
			return nil, serverErrors.InvalidArgument("%s", err.Error())
		}
		data = data.SetPath(path, cast)
	}
	return data, nil
}

func (s *Server) insert(ctx context.Context, tenantID string, topic *model.Topic, data value.Map) (*engine.Trigger, error) {
	encrypted, err := s.encryption.EncryptRow(topic, data)
	if err != nil {
		return nil, err
	}
	row, err := s.datastore.Insert(ctx, tenantID, topic.TopicID, encrypted)
	if err != nil {
		return nil, err
	}
	return &engine.Trigger{
		TenantID: tenantID,
		TopicID:  topic.TopicID,
		Type:     model.TriggerInsert,
		Current:  data,
		DataID:   row.ID,
	}, nil
}

// merge overlays data on the stored row. It returns a nil trigger when dataID is empty.
func (s *Server) merge(ctx context.Context, tenantID string, topic *model.Topic, dataID string, data value.Map) (*engine.Trigger, error) {
	if dataID == "" {
		return nil, nil
	}
	row, err := s.datastore.FindByID(ctx, tenantID, topic.TopicID, dataID)
	if err != nil {
		return nil, err
	}
	previous, err := s.encryption.DecryptRow(topic, row.Data)
	if err != nil {
		return nil, err
	}

	merged := maps.Clone(previous)
	if merged == nil {
		merged = value.Map{}
	}
	maps.Copy(merged, data)
	encrypted, err := s.encryption.EncryptRow(topic, merged)
	if err != nil {
		return nil, err
	}
	updated := row.Clone()
	updated.Data = encrypted
	if _, err := s.datastore.Update(ctx, updated); err != nil {
		return nil, err
	}

	return &engine.Trigger{
		TenantID: tenantID,
		TopicID:  topic.TopicID,
		Type:     model.TriggerMerge,
		Previous: previous.Without(engine.AggregateAssist),
		Current:  merged.Without(engine.AggregateAssist),
		DataID:   row.ID,
	}, nil
}

func (s *Server) delete(ctx context.Context, tenantID string, topic *model.Topic, dataID string) (*engine.Trigger, error) {
	if dataID == "" {
		return nil, serverErrors.InvalidArgument("a data id is required to delete a row")
	}
	row, err := s.datastore.FindByID(ctx, tenantID, topic.TopicID, dataID)
	if err != nil {
		return nil, err
	}
	previous, err := s.encryption.DecryptRow(topic, row.Data)
	if err != nil {
		return nil, err
	}
	if err := s.datastore.Delete(ctx, tenantID, topic.TopicID, dataID); err != nil {
		return nil, err
	}
	return &engine.Trigger{
		TenantID: tenantID,
		TopicID:  topic.TopicID,
		Type:     model.TriggerDelete,
		Previous: previous.Without(engine.AggregateAssist),
		DataID:   dataID,
	}, nil
}

// MonitorLogs returns the monitor logs of a trace of the caller's tenant.
func (s *Server) MonitorLogs(ctx context.Context, traceID string) ([]*model.MonitorLog, error) {
	p, ok := principal.FromContext(ctx)
	if !ok {
		return nil, serverErrors.Unauthenticated
	}
	ctx, span := tracer.Start(ctx, "MonitorLogs", trace.WithAttributes(attribute.String(TenantIDTraceTag, p.TenantID)))
	defer span.End()

	logs, err := s.datastore.ReadMonitorLogs(ctx, p.TenantID, traceID)
	if err != nil {
		return nil, serverErrors.HandleError("", err)
	}
	return logs, nil
}

// InvalidateTenant drops the compiled pipelines of a tenant. It is the meta invalidation hook.
func (s *Server) InvalidateTenant(tenantID string) {
	s.resolver.InvalidateTenant(tenantID)
}

// IsReady reports whether this server instance is ready to accept
// traffic.
func (s *Server) IsReady(ctx context.Context) (bool, error) {
	// for now we only depend on the datastore being ready
	status, err := s.datastore.IsReady(ctx)
	if err != nil {
		return false, fmt.Errorf("datastore is not ready: %w", err)
	}
	if !status.IsReady {
		s.logger.WarnWithContext(ctx, "datastore is not ready", zap.String("status", status.Message))
	}
	return status.IsReady, nil
}

// Close releases the compiled pipeline cache. The datastore is owned by the caller.
func (s *Server) Close() {
	s.resolver.Close()
}
