package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/dwhagent/agent/internal/model"
)

const defaultLogsLimit = 100

// opsTask is the unit of work ops_runner processes: every route except the
// Snowflake execute path lands here, as does the synthesized push_metrics
// event.
type opsTask struct {
	OperationID string
	Path        string
	Body        map[string]any
}

func (a *Agent) handleOpsTask(t opsTask) {
	switch {
	case t.Path == pathPushMetrics:
		a.pushMetricsNow()

	case strings.HasPrefix(t.Path, pathStorageExecutePrefix):
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: t.OperationID,
			Result:      a.storage.ExecuteOperation(t.Body),
		})

	case t.Path == pathTestHealth:
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: t.OperationID,
			Result:      model.NewResultEnvelope(a.HealthInformation()),
		})

	case t.Path == pathSnowflakeLogs:
		a.handleLogsTask(t)

	case t.Path == pathSnowflakeMetrics:
		a.handleMetricsTask(t)

	case t.Path == pathUpgrade:
		a.handleUpgradeTask(t)

	default:
		a.logger.Error("router: ops task has unrecognized path", "path", t.Path, "operation_id", t.OperationID)
	}
}

func (a *Agent) pushMetricsNow() {
	ctx := context.Background()
	lines, err := a.Metrics(ctx)
	if err != nil {
		a.logger.Error("router: fetching metrics for push failed", "error", err)
		return
	}
	if err := a.orchestrator.PushMetrics(ctx, lines); err != nil {
		a.logger.Error("router: pushing metrics failed", "error", err)
	}
}

// refreshLocalMetrics snapshots queue depth, ACK backlog, and warehouse pool
// in-use counts into the local Prometheus registry.
func (a *Agent) refreshLocalMetrics() {
	a.localMetrics.SetQueueDepth("queries_runner", a.queriesRunner.Len())
	a.localMetrics.SetQueueDepth("ops_runner", a.opsRunner.Len())
	a.localMetrics.SetQueueDepth("results_publisher", a.publisher.Len())
	a.localMetrics.SetAckBacklog(a.acks.Pending())
	for pool, inUse := range a.executor.PoolStats() {
		a.localMetrics.SetPoolInUse(pool, inUse)
	}
}

// Metrics refreshes and gathers the local registry, fans out to every
// discovered address via MetricsFetcher, and concatenates both into one
// line set. Used by both the push_metrics tick and the admin metrics route.
func (a *Agent) Metrics(ctx context.Context) ([]string, error) {
	a.refreshLocalMetrics()

	local, err := a.localMetrics.Gather()
	if err != nil {
		return nil, fmt.Errorf("router: gathering local metrics: %w", err)
	}

	scraped, err := a.metrics.FetchMetrics(ctx)
	if err != nil {
		return nil, err
	}

	return append(local, scraped...), nil
}

func (a *Agent) handleLogsTask(t opsTask) {
	limit := intFieldDefault(t.Body, "limit", defaultLogsLimit)
	entries, err := a.logs.FetchLogs(context.Background(), limit)
	if err != nil {
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: t.OperationID,
			Result:      model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, ""),
		})
		return
	}
	a.publisher.Schedule(model.AgentOperationResult{
		OperationID: t.OperationID,
		Result:      model.NewResultEnvelope(map[string]any{"entries": entries}),
	})
}

func (a *Agent) handleMetricsTask(t opsTask) {
	lines, err := a.Metrics(context.Background())
	if err != nil {
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: t.OperationID,
			Result:      model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, ""),
		})
		return
	}
	a.publisher.Schedule(model.AgentOperationResult{
		OperationID: t.OperationID,
		Result:      model.NewResultEnvelope(map[string]any{"metrics": lines}),
	})
}

// handleUpgradeTask merges operation.parameters into the config store,
// acknowledges the upgrade, and dispatches a restart. No final result is
// ever published for the restart itself — only the {"updated": true}
// acknowledgment above it.
func (a *Agent) handleUpgradeTask(t opsTask) {
	params, _ := t.Body["parameters"].(map[string]any)
	values := make(map[string]string, len(params))
	for k, v := range params {
		values[k] = fmt.Sprintf("%v", v)
	}

	if err := a.configStore.SetValues(values); err != nil {
		a.logger.Error("router: upgrade failed to merge config", "operation_id", t.OperationID, "error", err)
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: t.OperationID,
			Result:      model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, ""),
		})
		return
	}

	traceID := stringField(t.Body, "trace_id")
	if traceID == "" {
		traceID = t.OperationID
	}

	a.publisher.Schedule(model.AgentOperationResult{
		OperationID: t.OperationID,
		Result:      model.NewResultEnvelope(map[string]any{"updated": true}).WithTraceID(traceID),
	})

	if err := a.executor.RestartService(context.Background()); err != nil {
		a.logger.Error("router: restart dispatch failed", "operation_id", t.OperationID, "error", err)
	}
}
