package router

import (
	"context"

	"github.com/dwhagent/agent/internal/events"
	"github.com/dwhagent/agent/internal/model"
	"github.com/dwhagent/agent/internal/telemetry"
)

// Executor is the subset of warehouse.Executor the router depends on.
// Declared locally so this package depends on interfaces, not the concrete
// warehouse type.
type Executor interface {
	RunQuery(ctx context.Context, query model.SnowflakeQuery) (*model.AgentOperationResult, error)
	ResultForQuery(ctx context.Context, queryID string, attrs model.OperationAttributes) (model.Envelope, error)
	ResultForQueryFailed(operationID string, code int, message, sqlstate string) model.Envelope
	ResultForException(err error) model.Envelope
	RestartService(ctx context.Context) error
	PoolStats() map[string]int
}

// OrchestratorClient is the subset of orchestrator.Client the router needs.
type OrchestratorClient interface {
	PushResults(ctx context.Context, operationID string, result model.Envelope)
	SendAck(ctx context.Context, operationID string) error
	Ping(ctx context.Context, traceID string) error
	PushMetrics(ctx context.Context, lines []string) error
	DownloadOperation(ctx context.Context, operationID string) (map[string]any, error)
}

// StorageService is the subset of storage.Service the router needs.
type StorageService interface {
	ExecuteOperation(event map[string]any) model.Envelope
}

// ResultProcessor is the subset of result.Processor the router needs.
type ResultProcessor interface {
	Process(env model.Envelope, attrs model.OperationAttributes) (model.Envelope, error)
}

// ConfigStore is the subset of config.Store the router needs for the
// upgrade route.
type ConfigStore interface {
	SetValues(values map[string]string) error
	GetAll() map[string]string
}

// LogsFetcher is the subset of telemetry.LogsService the router needs.
type LogsFetcher interface {
	FetchLogs(ctx context.Context, limit int) ([]telemetry.LogEntry, error)
}

// MetricsFetcher is the subset of telemetry.MetricsService the router needs.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context) ([]string, error)
}

// LocalMetrics is the subset of telemetry.Registry the router needs to
// publish its own process metrics alongside whatever MetricsFetcher scrapes.
type LocalMetrics interface {
	SetQueueDepth(queue string, depth int)
	SetAckBacklog(n int)
	SetPoolInUse(pool string, n int)
	Gather() ([]string, error)
}

// AckSender is the subset of ack.Sender the router needs.
type AckSender interface {
	Start(ctx context.Context)
	Stop()
	Schedule(operationID string)
	OperationCompleted(operationID string)
	Pending() int
}

// EventsClient is the subset of events.Client the router needs.
type EventsClient interface {
	Start(ctx context.Context, handler events.Handler) error
	Stop()
	Restart(ctx context.Context) error
}
