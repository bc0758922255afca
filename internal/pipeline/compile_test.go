package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/internal/condition"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
)

func testTopics() map[string]*model.Topic {
	return map[string]*model.Topic{
		"orders": {
			TopicID: "orders",
			Name:    "orders",
			Factors: []*model.Factor{
				{FactorID: "o-id", Name: "orderId", Type: model.FactorTypeText},
				{FactorID: "o-customer", Name: "customerId", Type: model.FactorTypeText},
				{FactorID: "o-amount", Name: "amount", Type: model.FactorTypeNumber},
			},
		},
		"totals": {
			TopicID: "totals",
			Name:    "totals",
			Type:    model.TopicTypeAggregate,
			Factors: []*model.Factor{
				{FactorID: "t-customer", Name: "customerId", Type: model.FactorTypeText},
				{FactorID: "t-amount", Name: "amount", Type: model.FactorTypeNumber},
			},
		},
	}
}

func byCustomer() *model.ParameterCondition {
	return model.Joint(model.JointAnd,
		model.Expression(model.TopicFactor("totals", "t-customer"), model.OperatorEquals, model.TopicFactor("orders", "o-customer")),
	)
}

func testPipeline() *model.Pipeline {
	return &model.Pipeline{
		PipelineID:  "p1",
		TopicID:     "orders",
		Type:        model.TriggerInsert,
		Enabled:     true,
		Conditional: true,
		On:          model.Joint(model.JointAnd, model.Expression(model.TopicFactor("orders", "o-amount"), model.OperatorNotEmpty, nil)),
		Stages: []*model.Stage{
			{
				StageID: "s1",
				Units: []*model.Unit{
					{
						UnitID: "u1",
						Do: []*model.Action{
							{ActionID: "a1", Type: model.ActionAlarm, Message: "order {orderId} arrived"},
							{ActionID: "a2", Type: model.ActionCopyToMemory, VariableName: "doubled", Source: model.Computed(model.ComputedMultiply, model.TopicFactor("orders", "o-amount"), model.Constant("2"))},
							{ActionID: "a3", Type: model.ActionReadRow, TopicID: "totals", VariableName: "total", By: byCustomer()},
							{ActionID: "a4", Type: model.ActionReadFactor, TopicID: "totals", FactorID: "t-amount", Arithmetic: model.ArithmeticSum, VariableName: "sum", By: byCustomer()},
						},
					},
				},
			},
			{
				StageID:     "s2",
				Conditional: true,
				On:          model.Joint(model.JointOr),
				Units: []*model.Unit{
					{
						UnitID:           "u2",
						LoopVariableName: " items ",
						Do: []*model.Action{
							{
								ActionID: "a5",
								Type:     model.ActionInsertOrMergeRow,
								TopicID:  "totals",
								By:       byCustomer(),
								Mapping: []*model.MappingFactor{
									{FactorID: "t-customer", Source: model.TopicFactor("orders", "o-customer")},
									{FactorID: "t-amount", Source: model.TopicFactor("orders", "o-amount"), Arithmetic: model.ArithmeticSum},
								},
							},
							{ActionID: "a6", Type: model.ActionWriteToExternal, ExternalWriterID: "hook", EventCode: "order-created"},
							{ActionID: "a7", Type: model.ActionDeleteRows, TopicID: "totals", By: byCustomer()},
						},
					},
				},
			},
		},
	}
}

func TestCompile(t *testing.T) {
	compiled, err := Compile(testPipeline(), testTopics(), "tenant1")
	require.NoError(t, err)

	require.Equal(t, "p1", compiled.ID())
	require.Equal(t, "tenant1", compiled.TenantID)
	require.Equal(t, "orders", compiled.Topic.TopicID)
	require.NotEqual(t, condition.Always, compiled.Prerequisite)
	require.Len(t, compiled.Stages, 2)
	require.Equal(t, condition.Always, compiled.Stages[0].Prerequisite)
	require.Equal(t, 7, compiled.ActionCount())

	actions := compiled.Stages[0].Units[0].Actions
	require.Equal(t, model.SeverityMedium, actions[0].Severity)
	require.Equal(t, "order {orderId} arrived", actions[0].Message.String())
	require.Equal(t, "doubled", actions[1].VariableName)
	require.NotNil(t, actions[1].Source)
	require.Equal(t, "totals", actions[2].Topic.TopicID)
	require.NotNil(t, actions[2].By)
	require.Equal(t, "t-amount", actions[3].Factor.FactorID)
	require.Equal(t, model.ArithmeticSum, actions[3].Arithmetic)

	unit := compiled.Stages[1].Units[0]
	require.Equal(t, "items", unit.LoopVariable)
	require.Len(t, unit.Actions[0].Mapping, 2)
	require.Equal(t, model.ArithmeticNone, unit.Actions[0].Mapping[0].Arithmetic)
	require.Equal(t, model.ArithmeticSum, unit.Actions[0].Mapping[1].Arithmetic)
	require.Equal(t, "hook", unit.Actions[1].ExternalWriterID)
	require.Equal(t, model.ActionDeleteRows, unit.Actions[2].Type)
}

func TestCompileErrors(t *testing.T) {
	var tests = []struct {
		name   string
		modify func(p *model.Pipeline)
		kind   error
		node   string
	}{
		{
			name:   "unknown_trigger_topic",
			modify: func(p *model.Pipeline) { p.TopicID = "nope" },
			kind:   flowerrors.ErrSchemaNotFound,
			node:   "",
		},
		{
			name: "unknown_action_topic",
			modify: func(p *model.Pipeline) {
				p.Stages[0].Units[0].Do[2].TopicID = "nope"
			},
			kind: flowerrors.ErrSchemaNotFound,
			node: "stage[s1]/unit[u1]/action[a3]",
		},
		{
			name: "missing_by",
			modify: func(p *model.Pipeline) {
				p.Stages[1].Units[0].Do[2].By = nil
			},
			kind: flowerrors.ErrMissingParameter,
			node: "stage[s2]/unit[u2]/action[a7]",
		},
		{
			name: "missing_variable",
			modify: func(p *model.Pipeline) {
				p.Stages[0].Units[0].Do[1].VariableName = ""
			},
			kind: flowerrors.ErrMissingParameter,
			node: "stage[s1]/unit[u1]/action[a2]",
		},
		{
			name: "computed_arity",
			modify: func(p *model.Pipeline) {
				p.Stages[0].Units[0].Do[1].Source = model.Computed(model.ComputedYearOf)
			},
			kind: flowerrors.ErrMissingParameter,
			node: "stage[s1]/unit[u1]/action[a2]",
		},
		{
			name: "unknown_mapping_factor",
			modify: func(p *model.Pipeline) {
				p.Stages[1].Units[0].Do[0].Mapping[0].FactorID = "nope"
			},
			kind: flowerrors.ErrSchemaNotFound,
			node: "stage[s2]/unit[u2]/action[a5]",
		},
		{
			name: "unknown_arithmetic",
			modify: func(p *model.Pipeline) {
				p.Stages[1].Units[0].Do[0].Mapping[1].Arithmetic = "median"
			},
			kind: flowerrors.ErrNotSupported,
			node: "stage[s2]/unit[u2]/action[a5]",
		},
		{
			name: "unknown_action_type",
			modify: func(p *model.Pipeline) {
				p.Stages[0].Units[0].Do[0].Type = "teleport"
			},
			kind: flowerrors.ErrNotSupported,
			node: "stage[s1]/unit[u1]/action[a1]",
		},
		{
			name: "broken_stage_prerequisite",
			modify: func(p *model.Pipeline) {
				p.Stages[1].On = model.Expression(model.Constant(""), model.OperatorEmpty, nil)
			},
			kind: flowerrors.ErrMissingParameter,
			node: "stage[s2]",
		},
		{
			name:   "nil_stage",
			modify: func(p *model.Pipeline) { p.Stages = append(p.Stages, nil) },
			kind:   flowerrors.ErrMissingParameter,
			node:   "",
		},
		{
			name:   "nil_unit",
			modify: func(p *model.Pipeline) { p.Stages[0].Units = append([]*model.Unit{nil}, p.Stages[0].Units...) },
			kind:   flowerrors.ErrMissingParameter,
			node:   "stage[s1]",
		},
		{
			name:   "nil_action",
			modify: func(p *model.Pipeline) { p.Stages[0].Units[0].Do[1] = nil },
			kind:   flowerrors.ErrMissingParameter,
			node:   "stage[s1]/unit[u1]",
		},
		{
			name: "malformed_alarm_message",
			modify: func(p *model.Pipeline) {
				p.Stages[0].Units[0].Do[0].Message = "order {orderId"
			},
			kind: flowerrors.ErrParse,
			node: "stage[s1]/unit[u1]/action[a1]",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := testPipeline()
			test.modify(p)

			_, err := Compile(p, testTopics(), "tenant1")
			require.ErrorIs(t, err, flowerrors.ErrCompile)
			require.ErrorIs(t, err, test.kind)

			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr))
			require.Equal(t, "p1", compileErr.PipelineID)
			require.Equal(t, test.node, compileErr.Node)
		})
	}
}
