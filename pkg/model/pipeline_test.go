package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerTypeMatches(t *testing.T) {
	require.True(t, TriggerInsert.Matches(TriggerInsert))
	require.True(t, TriggerInsertOrMerge.Matches(TriggerInsert))
	require.True(t, TriggerInsertOrMerge.Matches(TriggerMerge))
	require.False(t, TriggerInsertOrMerge.Matches(TriggerDelete))
	require.False(t, TriggerMerge.Matches(TriggerInsert))
	require.True(t, TriggerDelete.Matches(TriggerDelete))
}

func TestReferencedTopicIDs(t *testing.T) {
	pipeline := &Pipeline{
		PipelineID: "p1",
		TopicID:    "orders",
		On:         Expression(TopicFactor("orders", "f1"), OperatorNotEmpty, nil),
		Stages: []*Stage{{
			StageID: "s1",
			Units: []*Unit{{
				UnitID: "u1",
				Do: []*Action{
					{
						ActionID: "a1",
						Type:     ActionReadRow,
						TopicID:  "customers",
						By: Joint(JointAnd,
							Expression(TopicFactor("customers", "id"), OperatorEquals, TopicFactor("orders", "customerId")),
						),
					},
					{
						ActionID: "a2",
						Type:     ActionInsertRow,
						TopicID:  "totals",
						Mapping: []*MappingFactor{{
							FactorID: "amount",
							Source:   Computed(ComputedAdd, TopicFactor("orders", "amount"), TopicFactor("refunds", "amount")),
						}},
					},
				},
			}},
		}},
	}

	require.Equal(t, []string{"orders", "customers", "totals", "refunds"}, pipeline.ReferencedTopicIDs())
}

func TestTopicFactors(t *testing.T) {
	topic := &Topic{
		TopicID: "t1",
		Type:    TopicTypeAggregate,
		Factors: []*Factor{
			{FactorID: "f1", Name: "address.city", Type: FactorTypeText},
			{FactorID: "f2", Name: "email", Type: FactorTypeEmail, Encrypt: "MASK-MAIL"},
		},
	}

	f, ok := topic.FindFactor("f1")
	require.True(t, ok)
	require.Equal(t, "address.city", f.Name)

	_, ok = topic.FindFactorByName("nope")
	require.False(t, ok)

	require.True(t, topic.IsAggregate())
	require.Len(t, topic.EncryptedFactors(), 1)
}
