package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/topicflow/topicflow/internal/pipeline"
	"github.com/topicflow/topicflow/pkg/encryption"
	metamemory "github.com/topicflow/topicflow/pkg/meta/memory"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
	storagememory "github.com/topicflow/topicflow/pkg/storage/memory"
	"github.com/topicflow/topicflow/pkg/value"
)

const tenant = "acme"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testTopics() []*model.Topic {
	return []*model.Topic{
		{
			TopicID:  "orders",
			TenantID: tenant,
			Name:     "orders",
			Factors: []*model.Factor{
				{FactorID: "f-order", Name: "orderId", Type: model.FactorTypeText},
				{FactorID: "f-customer", Name: "customerId", Type: model.FactorTypeText},
				{FactorID: "f-amount", Name: "amount", Type: model.FactorTypeNumber},
				{FactorID: "f-items", Name: "items", Type: model.FactorTypeArray},
			},
		},
		{
			TopicID:  "totals",
			TenantID: tenant,
			Name:     "totals",
			Type:     model.TopicTypeAggregate,
			Factors: []*model.Factor{
				{FactorID: "t-customer", Name: "customerId", Type: model.FactorTypeText, Encrypt: encryption.MethodAES256GCM},
				{FactorID: "t-amount", Name: "amount", Type: model.FactorTypeNumber},
				{FactorID: "t-count", Name: "orderCount", Type: model.FactorTypeUnsigned},
				{FactorID: "t-avg", Name: "avgAmount", Type: model.FactorTypeNumber},
				{FactorID: "t-max", Name: "maxAmount", Type: model.FactorTypeNumber},
			},
		},
		{
			TopicID:  "audit",
			TenantID: tenant,
			Name:     "audit",
			Factors: []*model.Factor{
				{FactorID: "a-customer", Name: "customerId", Type: model.FactorTypeText},
				{FactorID: "a-total", Name: "total", Type: model.FactorTypeNumber},
				{FactorID: "a-note", Name: "note", Type: model.FactorTypeText, DefaultValue: "none"},
			},
		},
	}
}

// compiler compiles every pipeline afresh against a fixed topic set.
type compiler map[string]*model.Topic

func (c compiler) Resolve(_ context.Context, tenantID string, p *model.Pipeline) (*pipeline.Compiled, error) {
	return pipeline.Compile(p, c, tenantID)
}

// recorder is a monitor sink keeping every log.
type recorder struct {
	mu   sync.Mutex
	logs []*model.MonitorLog
}

func (r *recorder) Accept(_ context.Context, log *model.MonitorLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
}

// trail returns level:node:status for the logs of one pipeline, in emission order.
func (r *recorder) trail(pipelineID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, log := range r.logs {
		if log.PipelineID != pipelineID {
			continue
		}
		id := log.PipelineID
		switch log.Level() {
		case "stage":
			id = log.StageID
		case "unit":
			id = log.UnitID
		case "action":
			id = log.ActionID
		}
		out = append(out, log.Level()+":"+id+":"+string(log.Status))
	}
	return out
}

type fixture struct {
	meta       *metamemory.Meta
	ds         *storagememory.MemoryBackend
	sink       *recorder
	encryption *encryption.Registry
	engine     *Engine
}

func newFixture(t *testing.T, pipelines []*model.Pipeline, opts ...EngineOpt) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		meta: metamemory.New(),
		ds:   storagememory.New(),
		sink: &recorder{},
	}
	topics := compiler{}
	for _, topic := range testTopics() {
		require.NoError(t, f.meta.SaveTopic(ctx, topic))
		topics[topic.TopicID] = topic
	}
	for _, p := range pipelines {
		p.TenantID = tenant
		require.NoError(t, f.meta.SavePipeline(ctx, p))
	}

	var err error
	f.encryption, err = encryption.NewDefaultRegistry("secret")
	require.NoError(t, err)

	opts = append([]EngineOpt{WithEncryption(f.encryption), WithMonitorSink(f.sink)}, opts...)
	f.engine = New(f.meta, topics, f.ds, opts...)
	return f
}

// rows returns the decrypted rows of a topic, oldest first.
func (f *fixture) rows(t *testing.T, topicID string) []value.Map {
	t.Helper()
	var topic *model.Topic
	for _, candidate := range testTopics() {
		if candidate.TopicID == topicID {
			topic = candidate
		}
	}
	rows, err := f.ds.Find(context.Background(), tenant, topicID, storage.All)
	require.NoError(t, err)

	out := make([]value.Map, 0, len(rows))
	for _, row := range rows {
		data, err := f.encryption.DecryptRow(topic, row.Data)
		require.NoError(t, err)
		out = append(out, data)
	}
	return out
}

func requireValue(t *testing.T, expected, actual value.Value) {
	t.Helper()
	require.Truef(t, value.Equals(expected, actual), "expected %v, got %v", expected, actual)
}

func sameCustomer(topicID, factorID string) *model.ParameterCondition {
	return model.Joint(model.JointAnd,
		model.Expression(model.TopicFactor(topicID, factorID), model.OperatorEquals, model.TopicFactor("orders", "f-customer")),
	)
}

func singleUnit(pipelineID, topicID string, trigger model.PipelineTriggerType, actions ...*model.Action) *model.Pipeline {
	return &model.Pipeline{
		PipelineID: pipelineID,
		TopicID:    topicID,
		Type:       trigger,
		Enabled:    true,
		Stages: []*model.Stage{{
			StageID: "s1",
			Units:   []*model.Unit{{UnitID: "u1", Do: actions}},
		}},
	}
}

func accumulateTotals() *model.Pipeline {
	amount := model.TopicFactor("orders", "f-amount")
	return singleUnit("accumulate", "orders", model.TriggerInsertOrMerge, &model.Action{
		ActionID: "a1",
		Type:     model.ActionInsertOrMergeRow,
		TopicID:  "totals",
		By:       sameCustomer("totals", "t-customer"),
		Mapping: []*model.MappingFactor{
			{FactorID: "t-customer", Source: model.TopicFactor("orders", "f-customer")},
			{FactorID: "t-amount", Source: amount, Arithmetic: model.ArithmeticSum},
			{FactorID: "t-count", Source: amount, Arithmetic: model.ArithmeticCount},
			{FactorID: "t-avg", Source: amount, Arithmetic: model.ArithmeticAvg},
			{FactorID: "t-max", Source: amount, Arithmetic: model.ArithmeticMax},
		},
	})
}

func auditTotals() *model.Pipeline {
	return singleUnit("audit", "totals", model.TriggerInsertOrMerge, &model.Action{
		ActionID: "a1",
		Type:     model.ActionInsertRow,
		TopicID:  "audit",
		Mapping: []*model.MappingFactor{
			{FactorID: "a-customer", Source: model.TopicFactor("totals", "t-customer")},
			{FactorID: "a-total", Source: model.TopicFactor("totals", "t-amount")},
		},
	})
}

func order(id, customer, amount string) value.Map {
	return value.Map{
		"orderId":    value.NewStr(id),
		"customerId": value.NewStr(customer),
		"amount":     value.MustNum(amount),
	}
}

func inserted(data value.Map) *Trigger {
	return &Trigger{TenantID: tenant, TopicID: "orders", Type: model.TriggerInsert, Current: data, DataID: data.Get("orderId").String()}
}
