package test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/pkg/id"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/storage"
)

func MonitorLogTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tenantID := id.MustNewString()
	traceID := id.NewTraceID()
	start := time.Now().UTC().Truncate(time.Millisecond)

	logs := []*model.MonitorLog{
		{TenantID: tenantID, TraceID: traceID, PipelineID: "p1", TopicID: "orders", DataID: "d1", StageID: "s1", UnitID: "u1", ActionID: "a1", Status: model.MonitorDone, StartTime: start, SpentInMills: 3},
		{TenantID: tenantID, TraceID: traceID, PipelineID: "p1", TopicID: "orders", DataID: "d1", StageID: "s1", UnitID: "u1", Status: model.MonitorDone, StartTime: start, SpentInMills: 4},
		{TenantID: tenantID, TraceID: traceID, Round: 1, PipelineID: "p2", TopicID: "totals", DataID: "d2", Status: model.MonitorError, StartTime: start, SpentInMills: 1, Error: "boom"},
	}
	for _, log := range logs {
		require.NoError(t, ds.AppendMonitorLog(ctx, log))
	}

	// another trace of the same tenant
	require.NoError(t, ds.AppendMonitorLog(ctx, &model.MonitorLog{TenantID: tenantID, TraceID: id.NewTraceID(), PipelineID: "p1", Status: model.MonitorIgnored, StartTime: start}))

	got, err := ds.ReadMonitorLogs(ctx, tenantID, traceID)
	require.NoError(t, err)
	if diff := cmp.Diff(logs, got); diff != "" {
		t.Errorf("monitor logs mismatch (-want +got):\n%s", diff)
	}

	got, err = ds.ReadMonitorLogs(ctx, id.MustNewString(), traceID)
	require.NoError(t, err)
	require.Empty(t, got)
}
