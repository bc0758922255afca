// Package pipelinecache memoizes compiled pipelines per tenant. An entry is reused only while
// the pipeline schema it was compiled from is unchanged; topic changes are signalled through
// InvalidateTenant.
package pipelinecache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Yiling-J/theine-go"
	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/topicflow/topicflow/internal/pipeline"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/telemetry"
)

const defaultMaxCacheSize = 10000

var tracer = otel.Tracer("internal/pipelinecache")

var (
	pipelineCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "pipeline_cache_total_count",
		Help:      "The total number of compiled pipeline lookups.",
	})

	pipelineCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "pipeline_cache_hit_count",
		Help:      "The total number of compiled pipeline lookups served from cache.",
	})

	pipelineCompileErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topicflow",
		Name:      "pipeline_compile_error_count",
		Help:      "The total number of pipelines that failed to compile.",
	})
)

type entry struct {
	fingerprint uint64
	compiled    *pipeline.Compiled
}

// Resolver resolves compiled pipelines through the meta collaborator, compiling on a miss.
// Concurrent misses for the same pipeline may compile it twice; the last store wins.
type Resolver struct {
	meta         meta.Reader
	cache        *theine.Cache[string, *entry]
	maxCacheSize int64
	logger       logger.Logger
}

type ResolverOpt func(*Resolver)

// WithMaxCacheSize sets the number of compiled pipelines kept before the least valuable
// ones are evicted.
func WithMaxCacheSize(size int64) ResolverOpt {
	return func(r *Resolver) {
		r.maxCacheSize = size
	}
}

func WithLogger(l logger.Logger) ResolverOpt {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver returns a Resolver reading schemas from reader. Close releases the cache.
func NewResolver(reader meta.Reader, opts ...ResolverOpt) (*Resolver, error) {
	r := &Resolver{
		meta:         reader,
		maxCacheSize: defaultMaxCacheSize,
		logger:       logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := theine.NewBuilder[string, *entry](r.maxCacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

func cacheKey(tenantID, pipelineID string) string {
	return fmt.Sprintf("%s/%s", tenantID, pipelineID)
}

// Fingerprint hashes the schema of p.
func Fingerprint(p *model.Pipeline) (uint64, error) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// Resolve returns the compiled form of p for tenantID.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, p *model.Pipeline) (*pipeline.Compiled, error) {
	pipelineCacheTotalCounter.Inc()

	fingerprint, err := Fingerprint(p)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint pipeline '%s': %w", p.PipelineID, err)
	}
	key := cacheKey(tenantID, p.PipelineID)
	if e, ok := r.cache.Get(key); ok && e.fingerprint == fingerprint {
		pipelineCacheHitCounter.Inc()
		return e.compiled, nil
	}

	compiled, err := r.compile(ctx, tenantID, p)
	if err != nil {
		pipelineCompileErrorCounter.Inc()
		r.cache.Delete(key)
		return nil, err
	}
	r.cache.Set(key, &entry{fingerprint: fingerprint, compiled: compiled}, 1)
	return compiled, nil
}

// ResolveByID looks the pipeline up through meta and resolves it.
func (r *Resolver) ResolveByID(ctx context.Context, tenantID, pipelineID string) (*pipeline.Compiled, error) {
	p, err := r.meta.FindPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		if errors.Is(err, meta.ErrNotFound) {
			return nil, flowerrors.With(fmt.Errorf("pipeline '%s' not found", pipelineID), flowerrors.ErrSchemaNotFound)
		}
		return nil, fmt.Errorf("failed to FindPipeline: %w", err)
	}
	return r.Resolve(ctx, tenantID, p)
}

func (r *Resolver) compile(ctx context.Context, tenantID string, p *model.Pipeline) (*pipeline.Compiled, error) {
	ctx, span := tracer.Start(ctx, "compilePipeline", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("pipeline_id", p.PipelineID),
	))
	defer span.End()

	topics := make(map[string]*model.Topic)
	for _, topicID := range p.ReferencedTopicIDs() {
		topic, err := r.meta.FindTopic(ctx, tenantID, topicID)
		if err != nil {
			if errors.Is(err, meta.ErrNotFound) {
				// reported with its node path by the compiler
				continue
			}
			telemetry.TraceError(span, err)
			return nil, flowerrors.With(fmt.Errorf("failed to FindTopic '%s': %w", topicID, err), flowerrors.ErrRuntime)
		}
		topics[topicID] = topic
	}

	compiled, err := pipeline.Compile(p, topics, tenantID)
	if err != nil {
		telemetry.TraceError(span, err)
		r.logger.WarnWithContext(ctx, "pipeline failed to compile",
			zap.String("tenant_id", tenantID),
			zap.String("pipeline_id", p.PipelineID),
			zap.Error(err))
		return nil, err
	}
	return compiled, nil
}

// Invalidate drops the compiled form of one pipeline.
func (r *Resolver) Invalidate(tenantID, pipelineID string) {
	r.cache.Delete(cacheKey(tenantID, pipelineID))
}

// InvalidateTenant drops every compiled pipeline of tenantID.
func (r *Resolver) InvalidateTenant(tenantID string) {
	prefix := tenantID + "/"
	var keys []string
	r.cache.Range(func(key string, _ *entry) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		r.cache.Delete(key)
	}
}

// Len returns the number of cached pipelines.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// Close releases the cache. The resolver must not be used afterwards.
func (r *Resolver) Close() {
	r.cache.Close()
}
