package pipelinecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/internal/pipeline"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/meta/memory"
	"github.com/topicflow/topicflow/pkg/model"
)

func seed(t *testing.T) (*memory.Meta, *model.Pipeline) {
	t.Helper()
	ctx := context.Background()
	m := memory.New()
	require.NoError(t, m.SaveTopic(ctx, &model.Topic{
		TopicID:  "orders",
		TenantID: "acme",
		Name:     "orders",
		Factors:  []*model.Factor{{FactorID: "f1", Name: "amount", Type: model.FactorTypeNumber}},
	}))
	p := &model.Pipeline{
		PipelineID: "p1",
		TenantID:   "acme",
		TopicID:    "orders",
		Type:       model.TriggerInsert,
		Enabled:    true,
		Stages: []*model.Stage{{
			StageID: "s1",
			Units: []*model.Unit{{
				UnitID: "u1",
				Do: []*model.Action{{
					ActionID:     "a1",
					Type:         model.ActionCopyToMemory,
					VariableName: "amount",
					Source:       model.TopicFactor("orders", "f1"),
				}},
			}},
		}},
	}
	require.NoError(t, m.SavePipeline(ctx, p))
	return m, p
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m, p := seed(t)

	r, err := NewResolver(m, WithMaxCacheSize(100))
	require.NoError(t, err)
	t.Cleanup(r.Close)

	first, err := r.Resolve(ctx, "acme", p)
	require.NoError(t, err)
	require.Equal(t, "p1", first.ID())

	t.Run("hit_returns_the_same_compiled_pipeline", func(t *testing.T) {
		again, err := r.Resolve(ctx, "acme", p)
		require.NoError(t, err)
		require.Same(t, first, again)

		byID, err := r.ResolveByID(ctx, "acme", "p1")
		require.NoError(t, err)
		require.Same(t, first, byID)
	})

	t.Run("changed_schema_is_recompiled", func(t *testing.T) {
		changed := *p
		changed.Name = "renamed"
		recompiled, err := r.Resolve(ctx, "acme", &changed)
		require.NoError(t, err)
		require.NotSame(t, first, recompiled)
		require.Equal(t, "renamed", recompiled.Pipeline.Name)
	})

	t.Run("tenants_are_cached_apart", func(t *testing.T) {
		other, err := r.Resolve(ctx, "globex", p)
		// globex has no topics
		require.ErrorIs(t, err, flowerrors.ErrCompile)
		require.ErrorIs(t, err, flowerrors.ErrSchemaNotFound)
		require.Nil(t, other)
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	m, p := seed(t)

	r, err := NewResolver(m)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	first, err := r.Resolve(ctx, "acme", p)
	require.NoError(t, err)

	r.InvalidateTenant("acme")
	second, err := r.Resolve(ctx, "acme", p)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	r.Invalidate("acme", "p1")
	third, err := r.Resolve(ctx, "acme", p)
	require.NoError(t, err)
	require.NotSame(t, second, third)

	r.InvalidateTenant("acm")
	fourth, err := r.Resolve(ctx, "acme", p)
	require.NoError(t, err)
	require.Same(t, third, fourth)
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	m, p := seed(t)

	r, err := NewResolver(m)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	t.Run("unknown_pipeline", func(t *testing.T) {
		_, err := r.ResolveByID(ctx, "acme", "nope")
		require.ErrorIs(t, err, flowerrors.ErrSchemaNotFound)
	})

	t.Run("unknown_factor_names_the_node", func(t *testing.T) {
		broken := *p
		broken.Stages = []*model.Stage{{
			StageID: "s1",
			Units: []*model.Unit{{
				UnitID: "u1",
				Do: []*model.Action{{
					ActionID:     "a1",
					Type:         model.ActionCopyToMemory,
					VariableName: "amount",
					Source:       model.TopicFactor("orders", "missing"),
				}},
			}},
		}}
		_, err := r.Resolve(ctx, "acme", &broken)
		require.ErrorIs(t, err, flowerrors.ErrCompile)

		var compileErr *pipeline.CompileError
		require.ErrorAs(t, err, &compileErr)
		require.Equal(t, "stage[s1]/unit[u1]/action[a1]", compileErr.Node)
	})
}

func TestFingerprint(t *testing.T) {
	_, p := seed(t)

	a, err := Fingerprint(p)
	require.NoError(t, err)
	b, err := Fingerprint(p)
	require.NoError(t, err)
	require.Equal(t, a, b)

	changed := *p
	changed.Enabled = false
	c, err := Fingerprint(&changed)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
