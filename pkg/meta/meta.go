// Package meta defines how the engine looks up the topics and pipelines of a tenant.
package meta

import (
	"context"
	"errors"

	"github.com/topicflow/topicflow/pkg/model"
)

// ErrNotFound is returned when a topic or pipeline does not exist for the tenant.
var ErrNotFound = errors.New("not found")

// Reader looks up schemas. Implementations must be safe for concurrent use.
type Reader interface {
	// FindTopic returns the topic whose id or name is idOrName.
	FindTopic(ctx context.Context, tenantID, idOrName string) (*model.Topic, error)

	FindPipeline(ctx context.Context, tenantID, pipelineID string) (*model.Pipeline, error)

	// FindPipelinesByTopic returns every pipeline triggered by topicID, enabled or not, in
	// a stable order.
	FindPipelinesByTopic(ctx context.Context, tenantID, topicID string) ([]*model.Pipeline, error)
}

// Writer stores schemas.
type Writer interface {
	SaveTopic(ctx context.Context, topic *model.Topic) error
	SavePipeline(ctx context.Context, pipeline *model.Pipeline) error
}

// ReadWriter is a Reader that also accepts schema changes.
type ReadWriter interface {
	Reader
	Writer
}

// Lister enumerates tenants and their pipelines; it backs offline validation.
type Lister interface {
	ListTenants(ctx context.Context) ([]string, error)
	ListPipelines(ctx context.Context, tenantID string) ([]*model.Pipeline, error)
}

// InvalidationHook is invoked with a tenant id whenever the schemas of that tenant change.
type InvalidationHook func(tenantID string)
