// Package router implements the agent's central dispatcher. It
// demultiplexes inbound events into ACK scheduling, Snowflake query
// execution, storage operations, and internal housekeeping routes, then
// republishes every result back through the orchestrator client. Routes are
// matched in order against an explicit, table-driven route list rather than
// a long conditional chain.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwhagent/agent/internal/events"
	"github.com/dwhagent/agent/internal/model"
	"github.com/dwhagent/agent/internal/queue"
	"github.com/dwhagent/agent/internal/telemetry"
)

const (
	pathSnowflakeExecutePrefix = "/api/v1/agent/execute/snowflake"
	pathStorageExecutePrefix   = "/api/v1/agent/execute/storage"
	pathTestHealth             = "/api/v1/test/health"
	pathSnowflakeLogs          = "/api/v1/snowflake/logs"
	pathSnowflakeMetrics       = "/api/v1/snowflake/metrics"
	pathPushMetrics            = "push_metrics"
	pathUpgrade                = "/api/v1/upgrade"

	operationTypeSnowflakeQuery          = "snowflake_query"
	operationTypeSnowflakeConnectionTest = "snowflake_connection_test"
)

// Config holds everything New needs to build an Agent.
type Config struct {
	Events       EventsClient
	ConfigStore  ConfigStore
	Executor     Executor
	Orchestrator OrchestratorClient
	Storage      StorageService
	Result       ResultProcessor
	Acks         AckSender
	Logs         LogsFetcher
	Metrics      MetricsFetcher
	LocalMetrics LocalMetrics
	Logger       *slog.Logger

	// QueriesRunnerThreads, OpsRunnerThreads, and PublisherThreads size the
	// three worker pools. Each defaults to 1 when <= 0 (enforced by
	// queue.New).
	QueriesRunnerThreads int
	OpsRunnerThreads     int
	PublisherThreads     int
}

type route struct {
	match   func(path string) bool
	handler func(a *Agent, op model.Operation)
}

// Agent wires the stream client, the three worker pools, and every backing
// service (warehouse, orchestrator, storage, results, ACKs, telemetry) into
// a single running process.
type Agent struct {
	events       EventsClient
	configStore  ConfigStore
	executor     Executor
	orchestrator OrchestratorClient
	storage      StorageService
	result       ResultProcessor
	acks         AckSender
	logs         LogsFetcher
	metrics      MetricsFetcher
	localMetrics LocalMetrics
	logger       *slog.Logger

	routes []route

	queriesRunner *queue.Processor[model.SnowflakeQuery]
	opsRunner     *queue.Processor[opsTask]
	publisher     *queue.Processor[model.AgentOperationResult]
}

// New builds an Agent and its three worker pools from cfg. The pools are
// not started until Start is called.
func New(cfg Config) *Agent {
	localMetrics := cfg.LocalMetrics
	if localMetrics == nil {
		localMetrics = telemetry.NewRegistry()
	}

	a := &Agent{
		events:       cfg.Events,
		configStore:  cfg.ConfigStore,
		executor:     cfg.Executor,
		orchestrator: cfg.Orchestrator,
		storage:      cfg.Storage,
		result:       cfg.Result,
		acks:         cfg.Acks,
		logs:         cfg.Logs,
		metrics:      cfg.Metrics,
		localMetrics: localMetrics,
		logger:       cfg.Logger,
	}

	a.queriesRunner = queue.New("queries_runner", a.handleQuery, cfg.QueriesRunnerThreads, cfg.Logger)
	a.opsRunner = queue.New("ops_runner", a.handleOpsTask, cfg.OpsRunnerThreads, cfg.Logger)
	a.publisher = queue.New("results_publisher", a.handlePublish, cfg.PublisherThreads, cfg.Logger)

	a.routes = []route{
		{startsWith(pathSnowflakeExecutePrefix), (*Agent).handleSnowflakeExecute},
		{startsWith(pathStorageExecutePrefix), (*Agent).scheduleOpsTask},
		{equals(pathTestHealth), (*Agent).scheduleOpsTask},
		{equals(pathSnowflakeLogs), (*Agent).scheduleOpsTask},
		{equals(pathSnowflakeMetrics), (*Agent).scheduleOpsTask},
		{equals(pathPushMetrics), (*Agent).scheduleOpsTask},
		{equals(pathUpgrade), (*Agent).scheduleOpsTask},
	}

	return a
}

func startsWith(prefix string) func(string) bool {
	return func(path string) bool { return strings.HasPrefix(path, prefix) }
}

func equals(want string) func(string) bool {
	return func(path string) bool { return path == want }
}

// Start launches the three worker pools, the ACK sender, and the event
// stream, in that dependency order, and begins routing inbound events.
// It returns as soon as the stream's worker is launched, without waiting
// for a connection; connecting and reconnecting happen in the background.
func (a *Agent) Start(ctx context.Context) error {
	a.queriesRunner.Start()
	a.opsRunner.Start()
	a.publisher.Start()
	a.acks.Start(ctx)

	return a.events.Start(ctx, a.onEvent)
}

// Stop tears everything down in reverse dependency order, waiting for each
// worker pool to drain its currently-running handlers.
func (a *Agent) Stop() {
	a.events.Stop()
	a.acks.Stop()
	a.publisher.Stop()
	a.opsRunner.Stop()
	a.queriesRunner.Stop()
}

// onEvent is the single entry point events.Client delivers every
// non-control frame to. An event carrying both operation_id and path is
// routed as an Operation; the synthesized push_metrics frame is enqueued
// directly onto ops_runner.
func (a *Agent) onEvent(event map[string]any) {
	operationID, _ := event["operation_id"].(string)
	path, _ := event["path"].(string)

	if operationID != "" && path != "" {
		a.acks.Schedule(operationID)

		body, _ := event["operation"].(map[string]any)
		if sizeExceeded, _ := body[model.AttrSizeExceeded].(bool); sizeExceeded {
			downloaded, err := a.orchestrator.DownloadOperation(context.Background(), operationID)
			if err != nil {
				a.logger.Error("router: downloading oversized operation failed", "operation_id", operationID, "error", err)
				a.acks.OperationCompleted(operationID)
				return
			}
			body = downloaded
		}

		a.route(model.Operation{
			OperationID: operationID,
			Path:        path,
			Body:        body,
			ReceivedAt:  time.Now(),
		})
		return
	}

	if frameType, _ := event["type"].(string); frameType == events.FramePushMetrics {
		a.opsRunner.Schedule(opsTask{Path: pathPushMetrics})
	}
}

// route dispatches op to the first matching route. An unmatched path
// completes the ACK immediately, since no handler will ever publish a
// result for it.
func (a *Agent) route(op model.Operation) {
	for _, r := range a.routes {
		if r.match(op.Path) {
			r.handler(a, op)
			return
		}
	}
	a.logger.Warn("router: no route matched operation path", "path", op.Path, "operation_id", op.OperationID)
	a.acks.OperationCompleted(op.OperationID)
}

func (a *Agent) scheduleOpsTask(op model.Operation) {
	a.opsRunner.Schedule(opsTask{OperationID: op.OperationID, Path: op.Path, Body: op.Body})
}

// handleSnowflakeExecute inspects the operation body's "type" (or a legacy
// bare "query" key) and either schedules a query for queries_runner,
// schedules an immediate connection-test result, or fails the operation.
func (a *Agent) handleSnowflakeExecute(op model.Operation) {
	if legacyQuery, ok := legacyQueryFromEvent(op.Body); ok {
		a.scheduleSnowflakeQuery(op, legacyQuery)
		return
	}

	opType, _ := op.Body["type"].(string)
	switch opType {
	case operationTypeSnowflakeQuery:
		query, _ := op.Body["query"].(string)
		a.scheduleSnowflakeQuery(op, query)

	case operationTypeSnowflakeConnectionTest:
		traceID := stringField(op.Body, "trace_id")
		if traceID == "" {
			traceID = op.OperationID
		}
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: op.OperationID,
			Result:      model.NewResultEnvelope(map[string]any{"ok": true}).WithTraceID(traceID),
		})

	default:
		a.logger.Error("router: unrecognized snowflake operation type", "operation_id", op.OperationID, "type", opType)
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: op.OperationID,
			Result:      model.NewErrorEnvelope(model.ErrorTypeProgramming, "unrecognized operation type: "+opType, 0, ""),
		})
	}
}

// legacyQueryFromEvent recognizes the older orchestrator payload shape that
// places the SQL directly under a bare "query" key instead of behind
// type == "snowflake_query", preserved for backward compatibility with
// orchestrators that haven't upgraded.
func legacyQueryFromEvent(body map[string]any) (string, bool) {
	if _, hasType := body["type"]; hasType {
		return "", false
	}
	query, ok := body["query"].(string)
	if !ok || query == "" {
		return "", false
	}
	return query, true
}

func (a *Agent) scheduleSnowflakeQuery(op model.Operation, query string) {
	attrs := model.NewOperationAttributes(
		op.OperationID,
		stringField(op.Body, "trace_id"),
		boolFieldDefault(op.Body, "compress_response_file", true),
		intFieldDefault(op.Body, "response_size_limit_bytes", 0),
		stringField(op.Body, "job_type"),
	)
	a.queriesRunner.Schedule(model.SnowflakeQuery{
		OperationID: op.OperationID,
		Query:       query,
		Timeout:     intFieldDefault(op.Body, "timeout_seconds", 0),
		Attrs:       attrs,
	})
}

// handleQuery runs a queued query. A nil result with a nil error means the
// executor dispatched it asynchronously; its eventual outcome arrives later
// through QueryCompleted/QueryFailed.
func (a *Agent) handleQuery(q model.SnowflakeQuery) {
	result, err := a.executor.RunQuery(context.Background(), q)
	if err != nil {
		attrs := q.Attrs
		a.publisher.Schedule(model.AgentOperationResult{
			OperationID: q.OperationID,
			Result:      a.executor.ResultForException(err).WithTraceID(attrs.TraceID),
			Attrs:       &attrs,
		})
		return
	}
	if result != nil {
		a.publisher.Schedule(*result)
	}
}

// HealthInformation reports the health snapshot used by the scheduled
// /api/v1/test/health route: CPU count, Go runtime version, and a fixed
// environment-variable allowlist.
func (a *Agent) HealthInformation() map[string]any {
	return healthSnapshot()
}

// RunReachabilityTest pings the orchestrator with a freshly minted trace ID.
func (a *Agent) RunReachabilityTest(ctx context.Context) error {
	return a.orchestrator.Ping(ctx, uuid.NewString())
}

// Reload forces the event stream to reconnect, picking up rotated
// credentials without waiting for the next heartbeat timeout. Invoked by
// the daemon's SIGHUP handler.
func (a *Agent) Reload(ctx context.Context) error {
	return a.events.Restart(ctx)
}

// QueryCompleted is the warehouse callback entry point for a successful
// async query: it fetches the result by queryID and schedules it for
// publishing.
func (a *Agent) QueryCompleted(attrs model.OperationAttributes, queryID string) {
	env, err := a.executor.ResultForQuery(context.Background(), queryID, attrs)
	if err != nil {
		a.QueryFailed(attrs, 0, err.Error(), "")
		return
	}
	a.publisher.Schedule(model.AgentOperationResult{
		OperationID: attrs.OperationID,
		Result:      env,
		QueryID:     queryID,
		Attrs:       &attrs,
	})
}

// QueryFailed is the warehouse callback entry point for a failed async
// query.
func (a *Agent) QueryFailed(attrs model.OperationAttributes, code int, message, sqlstate string) {
	env := a.executor.ResultForQueryFailed(attrs.OperationID, code, message, sqlstate).WithTraceID(attrs.TraceID)
	a.publisher.Schedule(model.AgentOperationResult{
		OperationID: attrs.OperationID,
		Result:      env,
		Attrs:       &attrs,
	})
}
