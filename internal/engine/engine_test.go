package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/topicflow/topicflow/internal/mocks"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/external"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/principal"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/value"
)

func TestRunCascade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*model.Pipeline{accumulateTotals(), auditTotals()})

	report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
	require.NoError(t, err)
	require.NotEmpty(t, report.TraceID)
	require.Equal(t, 2, report.Rounds)
	require.Len(t, report.Tasks, 2)
	require.Empty(t, report.Failed())
	require.Empty(t, report.Errors)

	require.Equal(t, "accumulate", report.Tasks[0].PipelineID)
	require.Equal(t, 0, report.Tasks[0].Round)
	require.Equal(t, model.MonitorDone, report.Tasks[0].Status)
	require.Equal(t, uint32(1), report.Tasks[0].Reads)
	require.Equal(t, uint32(1), report.Tasks[0].Writes)
	require.Equal(t, "audit", report.Tasks[1].PipelineID)
	require.Equal(t, 1, report.Tasks[1].Round)

	t.Run("aggregates_start_from_the_first_order", func(t *testing.T) {
		totals := f.rows(t, "totals")
		require.Len(t, totals, 1)
		requireValue(t, value.NewStr("c1"), totals[0].Get("customerId"))
		requireValue(t, value.MustNum("10"), totals[0].Get("amount"))
		requireValue(t, value.MustNum("1"), totals[0].Get("orderCount"))
		requireValue(t, value.MustNum("10"), totals[0].Get("avgAmount"))
		requireValue(t, value.MustNum("10"), totals[0].Get("maxAmount"))
	})

	t.Run("encrypted_factors_are_stored_encrypted", func(t *testing.T) {
		rows, err := f.ds.Find(ctx, tenant, "totals", storage.All)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.True(t, strings.HasPrefix(rows[0].Data.Get("customerId").String(), "{AES}"))
		require.Contains(t, rows[0].Data, AggregateAssist)
	})

	t.Run("second_order_merges", func(t *testing.T) {
		report, err := f.engine.Run(ctx, inserted(order("o2", "c1", "30")))
		require.NoError(t, err)
		require.Empty(t, report.Failed())

		totals := f.rows(t, "totals")
		require.Len(t, totals, 1)
		requireValue(t, value.MustNum("40"), totals[0].Get("amount"))
		requireValue(t, value.MustNum("2"), totals[0].Get("orderCount"))
		requireValue(t, value.MustNum("20"), totals[0].Get("avgAmount"))
		requireValue(t, value.MustNum("30"), totals[0].Get("maxAmount"))

		audit := f.rows(t, "audit")
		require.Len(t, audit, 2)
		requireValue(t, value.MustNum("10"), audit[0].Get("total"))
		requireValue(t, value.MustNum("40"), audit[1].Get("total"))
		requireValue(t, value.NewStr("c1"), audit[1].Get("customerId"))
	})

	t.Run("merge_trigger_replaces_the_previous_contribution", func(t *testing.T) {
		report, err := f.engine.Run(ctx, &Trigger{
			TenantID: tenant,
			TopicID:  "orders",
			Type:     model.TriggerMerge,
			Previous: order("o1", "c1", "10"),
			Current:  order("o1", "c1", "15"),
			DataID:   "o1",
		})
		require.NoError(t, err)
		require.Empty(t, report.Failed())

		totals := f.rows(t, "totals")
		requireValue(t, value.MustNum("45"), totals[0].Get("amount"))
		requireValue(t, value.MustNum("2"), totals[0].Get("orderCount"))
		requireValue(t, value.MustNum("22.5"), totals[0].Get("avgAmount"))
		requireValue(t, value.MustNum("30"), totals[0].Get("maxAmount"))
	})

	t.Run("other_customers_get_their_own_row", func(t *testing.T) {
		_, err := f.engine.Run(ctx, inserted(order("o3", "c2", "5")))
		require.NoError(t, err)
		require.Len(t, f.rows(t, "totals"), 2)
	})
}

func TestRunSkipsDisabledAndMismatchedPipelines(t *testing.T) {
	disabled := accumulateTotals()
	disabled.PipelineID = "disabled"
	disabled.Enabled = false
	deletes := accumulateTotals()
	deletes.PipelineID = "deletes"
	deletes.Type = model.TriggerDelete

	f := newFixture(t, []*model.Pipeline{disabled, deletes})
	report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
	require.NoError(t, err)
	require.Equal(t, 0, report.Rounds)
	require.Empty(t, report.Tasks)
	require.Empty(t, f.rows(t, "totals"))
}

func TestPrerequisites(t *testing.T) {
	large := model.Joint(model.JointAnd,
		model.Expression(model.TopicFactor("orders", "f-amount"), model.OperatorMore, model.Constant("100")),
	)
	p := &model.Pipeline{
		PipelineID: "p",
		TopicID:    "orders",
		Type:       model.TriggerInsert,
		Enabled:    true,
		Stages: []*model.Stage{
			{
				StageID:     "large",
				Conditional: true,
				On:          large,
				Units: []*model.Unit{{UnitID: "u1", Do: []*model.Action{
					{ActionID: "a1", Type: model.ActionAlarm, Severity: model.SeverityHigh, Message: "large order {orderId}"},
				}}},
			},
			{
				StageID: "always",
				Units: []*model.Unit{{UnitID: "u2", Do: []*model.Action{
					{ActionID: "a2", Type: model.ActionAlarm, Conditional: true, On: large, Message: "skipped"},
					{ActionID: "a3", Type: model.ActionCopyToMemory, VariableName: "amount", Source: model.TopicFactor("orders", "f-amount")},
				}}},
			},
		},
	}

	t.Run("false_prerequisites_ignore_their_subtree", func(t *testing.T) {
		f := newFixture(t, []*model.Pipeline{p})
		report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Len(t, report.Tasks, 1)
		require.Equal(t, model.MonitorDone, report.Tasks[0].Status)

		require.Equal(t, []string{
			"stage:large:IGNORED",
			"action:a2:IGNORED",
			"action:a3:DONE",
			"unit:u2:DONE",
			"stage:always:DONE",
			"pipeline:p:DONE",
		}, f.sink.trail("p"))
	})

	t.Run("false_pipeline_prerequisite_ignores_the_task", func(t *testing.T) {
		gated := singleUnit("gated", "orders", model.TriggerInsert, &model.Action{ActionID: "a1", Type: model.ActionAlarm, Message: "never"})
		gated.Conditional = true
		gated.On = large

		f := newFixture(t, []*model.Pipeline{gated})
		report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Equal(t, model.MonitorIgnored, report.Tasks[0].Status)
		require.NoError(t, report.Tasks[0].Err)
		require.Equal(t, []string{"pipeline:gated:IGNORED"}, f.sink.trail("gated"))
	})
}

func TestFailureIsolation(t *testing.T) {
	failing := singleUnit("failing", "orders", model.TriggerInsert,
		&model.Action{
			ActionID: "a1",
			Type:     model.ActionInsertRow,
			TopicID:  "totals",
			Mapping: []*model.MappingFactor{
				{FactorID: "t-customer", Source: model.TopicFactor("orders", "f-customer")},
				{FactorID: "t-amount", Source: model.TopicFactor("orders", "f-amount")},
			},
		},
		&model.Action{ActionID: "a2", Type: model.ActionWriteToExternal, ExternalWriterID: "missing"},
		&model.Action{ActionID: "a3", Type: model.ActionAlarm, Message: "unreachable"},
	)
	healthy := singleUnit("healthy", "orders", model.TriggerInsert,
		&model.Action{ActionID: "a1", Type: model.ActionAlarm, Severity: model.SeverityLow, Message: "order {orderId}"},
	)

	f := newFixture(t, []*model.Pipeline{failing, healthy, auditTotals()})
	report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "failing", failed[0].PipelineID)
	require.ErrorIs(t, failed[0].Err, flowerrors.ErrRuntime)
	require.ErrorIs(t, failed[0].Err, external.ErrWriterNotFound)

	var runtimeErr *RuntimeError
	require.True(t, errors.As(failed[0].Err, &runtimeErr))
	require.Equal(t, "stage[s1]/unit[u1]/action[a2]", runtimeErr.Node)

	require.Equal(t, []string{
		"action:a1:DONE",
		"action:a2:ERROR",
		"unit:u1:ERROR",
		"stage:s1:ERROR",
		"pipeline:failing:ERROR",
	}, f.sink.trail("failing"))
	require.Equal(t, []string{"action:a1:DONE", "unit:u1:DONE", "stage:s1:DONE", "pipeline:healthy:DONE"}, f.sink.trail("healthy"))

	// the row written before the failure still cascades
	require.Equal(t, 2, report.Rounds)
	require.Len(t, f.rows(t, "audit"), 1)
}

func TestUnitLoop(t *testing.T) {
	p := &model.Pipeline{
		PipelineID: "loop",
		TopicID:    "orders",
		Type:       model.TriggerInsert,
		Enabled:    true,
		Stages: []*model.Stage{{
			StageID: "s1",
			Units: []*model.Unit{
				{UnitID: "u1", Do: []*model.Action{
					{ActionID: "a1", Type: model.ActionCopyToMemory, VariableName: "items", Source: model.TopicFactor("orders", "f-items")},
				}},
				{UnitID: "u2", LoopVariableName: "items", Do: []*model.Action{
					{
						ActionID: "a2",
						Type:     model.ActionInsertRow,
						TopicID:  "audit",
						Mapping: []*model.MappingFactor{
							{FactorID: "a-customer", Source: model.TopicFactor("orders", "f-customer")},
							{FactorID: "a-total", Source: model.Constant("{items}")},
						},
					},
				}},
			},
		}},
	}

	var tests = []struct {
		name   string
		items  value.Value
		totals []string
	}{
		{name: "one_iteration_per_element", items: value.NewVec(value.MustNum("1"), value.MustNum("2"), value.MustNum("3")), totals: []string{"1", "2", "3"}},
		{name: "absent_variable_runs_nothing", items: value.Nil},
		{name: "scalar_runs_once", items: value.MustNum("7"), totals: []string{"7"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, []*model.Pipeline{p})
			data := order("o1", "c1", "10").With("items", test.items)
			report, err := f.engine.Run(context.Background(), inserted(data))
			require.NoError(t, err)
			require.Empty(t, report.Failed())

			rows := f.rows(t, "audit")
			require.Len(t, rows, len(test.totals))
			for i, total := range test.totals {
				requireValue(t, value.MustNum(total), rows[i].Get("total"))
			}
		})
	}
}

func TestRoundLimit(t *testing.T) {
	ping := singleUnit("ping", "orders", model.TriggerInsert, &model.Action{
		ActionID: "a1",
		Type:     model.ActionInsertRow,
		TopicID:  "audit",
		Mapping:  []*model.MappingFactor{{FactorID: "a-customer", Source: model.TopicFactor("orders", "f-customer")}},
	})
	pong := singleUnit("pong", "audit", model.TriggerInsert, &model.Action{
		ActionID: "a1",
		Type:     model.ActionInsertRow,
		TopicID:  "orders",
		Mapping:  []*model.MappingFactor{{FactorID: "f-customer", Source: model.TopicFactor("audit", "a-customer")}},
	})

	f := newFixture(t, []*model.Pipeline{ping, pong}, WithMaxRounds(4))
	report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
	require.NoError(t, err)
	require.Equal(t, 4, report.Rounds)
	require.Len(t, report.Tasks, 4)
	require.Equal(t, 1, report.Dropped)
	require.Len(t, report.Errors, 1)
	require.ErrorIs(t, report.Errors[0], ErrRoundLimit)
}

func TestReadActionsAndExternalWriter(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockWriter(ctrl)
	externals := external.NewRegistry()
	externals.Register("hook", writer)

	byCustomer := sameCustomer("totals", "t-customer")
	p := singleUnit("reads", "orders", model.TriggerInsert,
		&model.Action{ActionID: "a1", Type: model.ActionExists, TopicID: "totals", VariableName: "known", By: byCustomer},
		&model.Action{ActionID: "a2", Type: model.ActionReadRow, TopicID: "totals", VariableName: "total", By: byCustomer},
		&model.Action{ActionID: "a3", Type: model.ActionReadFactor, TopicID: "totals", FactorID: "t-amount", VariableName: "amount", By: byCustomer},
		&model.Action{ActionID: "a4", Type: model.ActionReadFactors, TopicID: "totals", FactorID: "t-amount", VariableName: "amounts", By: byCustomer},
		&model.Action{ActionID: "a5", Type: model.ActionReadFactor, TopicID: "totals", FactorID: "t-amount", Arithmetic: model.ArithmeticCount, VariableName: "count", By: byCustomer},
		&model.Action{ActionID: "a6", Type: model.ActionReadRows, TopicID: "totals", VariableName: "stats.rows", By: byCustomer},
		&model.Action{ActionID: "a7", Type: model.ActionWriteToExternal, ExternalWriterID: "hook", EventCode: "order-seen"},
	)

	f := newFixture(t, []*model.Pipeline{p}, WithExternalWriters(externals))
	encrypted, err := f.encryption.EncryptRow(testTopics()[1], value.Map{"customerId": value.NewStr("c1"), "amount": value.MustNum("12")})
	require.NoError(t, err)
	_, err = f.ds.Insert(context.Background(), tenant, "totals", encrypted)
	require.NoError(t, err)

	var event *external.Event
	writer.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e *external.Event) error {
		event = e
		return nil
	})

	ctx := principal.NewContext(context.Background(), &principal.Principal{TenantID: tenant, UserID: "u1"})
	report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
	require.NoError(t, err)
	require.Empty(t, report.Failed())

	require.NotNil(t, event)
	require.Equal(t, "order-seen", event.Code)
	require.Equal(t, tenant, event.TenantID)
	require.Equal(t, "orders", event.TopicID)
	require.Equal(t, report.TraceID, event.TraceID)
	requireValue(t, value.NewStr("o1"), event.Current.Get("orderId"))

	vars := event.Variables
	requireValue(t, value.NewBool(true), vars.Get("known"))
	requireValue(t, value.NewStr("c1"), vars.Get("total").(value.Map).Get("customerId"))
	requireValue(t, value.MustNum("12"), vars.Get("amount"))
	requireValue(t, value.NewVec(value.MustNum("12")), vars.Get("amounts"))
	requireValue(t, value.MustNum("1"), vars.Get("count"))
	require.Len(t, vars.GetPath([]string{"stats", "rows"}), 1)
}

func TestWriteActions(t *testing.T) {
	ctx := context.Background()
	byCustomer := sameCustomer("audit", "a-customer")

	seed := func(t *testing.T, f *fixture, customers ...string) {
		for _, c := range customers {
			_, err := f.ds.Insert(ctx, tenant, "audit", value.Map{"customerId": value.NewStr(c), "total": value.MustNum("1")})
			require.NoError(t, err)
		}
	}

	t.Run("write_factor_updates_every_match", func(t *testing.T) {
		f := newFixture(t, []*model.Pipeline{singleUnit("p", "orders", model.TriggerInsert, &model.Action{
			ActionID:   "a1",
			Type:       model.ActionWriteFactor,
			TopicID:    "audit",
			FactorID:   "a-total",
			Source:     model.TopicFactor("orders", "f-amount"),
			Arithmetic: model.ArithmeticSum,
			By:         byCustomer,
		})})
		seed(t, f, "c1", "c1", "c2")

		report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Empty(t, report.Failed())

		rows := f.rows(t, "audit")
		requireValue(t, value.MustNum("11"), rows[0].Get("total"))
		requireValue(t, value.MustNum("11"), rows[1].Get("total"))
		requireValue(t, value.MustNum("1"), rows[2].Get("total"))
	})

	t.Run("write_factor_without_match_fails", func(t *testing.T) {
		f := newFixture(t, []*model.Pipeline{singleUnit("p", "orders", model.TriggerInsert, &model.Action{
			ActionID: "a1",
			Type:     model.ActionWriteFactor,
			TopicID:  "audit",
			FactorID: "a-total",
			Source:   model.TopicFactor("orders", "f-amount"),
			By:       byCustomer,
		})})

		report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Len(t, report.Failed(), 1)
	})

	t.Run("merge_row_requires_exactly_one_match", func(t *testing.T) {
		f := newFixture(t, []*model.Pipeline{singleUnit("p", "orders", model.TriggerInsert, &model.Action{
			ActionID: "a1",
			Type:     model.ActionMergeRow,
			TopicID:  "audit",
			By:       byCustomer,
			Mapping:  []*model.MappingFactor{{FactorID: "a-total", Source: model.TopicFactor("orders", "f-amount")}},
		})})

		report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Len(t, report.Failed(), 1)

		seed(t, f, "c1")
		report, err = f.engine.Run(ctx, inserted(order("o2", "c1", "10")))
		require.NoError(t, err)
		require.Empty(t, report.Failed())
		requireValue(t, value.MustNum("10"), f.rows(t, "audit")[0].Get("total"))

		seed(t, f, "c1")
		report, err = f.engine.Run(ctx, inserted(order("o3", "c1", "10")))
		require.NoError(t, err)
		require.Len(t, report.Failed(), 1)
	})

	t.Run("delete_row_refuses_many_matches", func(t *testing.T) {
		f := newFixture(t, []*model.Pipeline{singleUnit("p", "orders", model.TriggerInsert, &model.Action{
			ActionID: "a1", Type: model.ActionDeleteRow, TopicID: "audit", By: byCustomer,
		})})
		seed(t, f, "c1", "c1")

		report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Len(t, report.Failed(), 1)
		require.Len(t, f.rows(t, "audit"), 2)
	})

	t.Run("delete_rows_cascades_deletes", func(t *testing.T) {
		onDelete := singleUnit("on-delete", "audit", model.TriggerDelete, &model.Action{
			ActionID: "a1", Type: model.ActionCopyToMemory, VariableName: "gone", Source: model.TopicFactor("audit", "a-customer"),
		})
		f := newFixture(t, []*model.Pipeline{
			singleUnit("p", "orders", model.TriggerInsert, &model.Action{
				ActionID: "a1", Type: model.ActionDeleteRows, TopicID: "audit", By: byCustomer,
			}),
			onDelete,
		})
		seed(t, f, "c1", "c1", "c2")

		report, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
		require.NoError(t, err)
		require.Empty(t, report.Failed())
		require.Len(t, f.rows(t, "audit"), 1)
		require.Equal(t, 2, report.Rounds)
		require.Len(t, report.Tasks, 3)
	})
}

// conflicting fails the first n updates with a version conflict.
type conflicting struct {
	storage.TopicDataBackend
	remaining atomic.Int32
	updates   atomic.Int32
}

func (c *conflicting) Update(ctx context.Context, row *storage.Row) (*storage.Row, error) {
	c.updates.Add(1)
	if c.remaining.Add(-1) >= 0 {
		return nil, storage.VersionConflictError(row.TopicID, row.ID, row.Version)
	}
	return c.TopicDataBackend.Update(ctx, row)
}

func TestMergeRetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*model.Pipeline{accumulateTotals()})
	_, err := f.engine.Run(ctx, inserted(order("o1", "c1", "10")))
	require.NoError(t, err)

	t.Run("conflicts_within_the_budget_are_retried", func(t *testing.T) {
		ds := &conflicting{TopicDataBackend: f.ds}
		ds.remaining.Store(2)
		e := New(f.meta, f.engine.resolver, ds, WithEncryption(f.encryption))

		report, err := e.Run(ctx, inserted(order("o2", "c1", "5")))
		require.NoError(t, err)
		require.Empty(t, report.Failed())
		require.Equal(t, int32(3), ds.updates.Load())
		requireValue(t, value.MustNum("15"), f.rows(t, "totals")[0].Get("amount"))
	})

	t.Run("conflicts_beyond_the_budget_fail", func(t *testing.T) {
		ds := &conflicting{TopicDataBackend: f.ds}
		ds.remaining.Store(10)
		e := New(f.meta, f.engine.resolver, ds, WithEncryption(f.encryption), WithMergeRetries(1))

		report, err := e.Run(ctx, inserted(order("o3", "c1", "5")))
		require.NoError(t, err)
		failed := report.Failed()
		require.Len(t, failed, 1)
		require.ErrorIs(t, failed[0].Err, storage.ErrVersionConflict)
		requireValue(t, value.MustNum("15"), f.rows(t, "totals")[0].Get("amount"))
	})
}

func TestResolveFailureFailsTheTask(t *testing.T) {
	broken := singleUnit("broken", "orders", model.TriggerInsert, &model.Action{ActionID: "a1", Type: "teleport"})
	f := newFixture(t, []*model.Pipeline{broken, accumulateTotals()})

	report, err := f.engine.Run(context.Background(), inserted(order("o1", "c1", "10")))
	require.NoError(t, err)
	failed := report.Failed()
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0].Err, flowerrors.ErrCompile)
	require.Equal(t, []string{"pipeline:broken:ERROR"}, f.sink.trail("broken"))
	require.Len(t, f.rows(t, "totals"), 1)
}

func TestStorageFailureFailsTheTask(t *testing.T) {
	f := newFixture(t, []*model.Pipeline{accumulateTotals()})

	ctrl := gomock.NewController(t)
	backend := mocks.NewMockTopicDataBackend(ctrl)
	backend.EXPECT().Find(gomock.Any(), tenant, "totals", gomock.Any()).Return(nil, errors.New("disk on fire"))

	e := New(f.meta, f.engine.resolver, backend, WithEncryption(f.encryption), WithMonitorSink(f.sink))
	report, err := e.Run(context.Background(), inserted(order("o1", "c1", "10")))
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	require.ErrorContains(t, failed[0].Err, "disk on fire")
	require.Equal(t, uint32(0), failed[0].Writes)
}
