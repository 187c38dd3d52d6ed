package router

import (
	"context"
	"sync"

	"github.com/dwhagent/agent/internal/events"
	"github.com/dwhagent/agent/internal/model"
	"github.com/dwhagent/agent/internal/telemetry"
)

// fakeEvents lets tests drive onEvent directly without a real SSE stream:
// Start records the handler and returns immediately.
type fakeEvents struct {
	handler      events.Handler
	stopped      bool
	restartCalls int
	restartErr   error
}

func (f *fakeEvents) Start(ctx context.Context, handler events.Handler) error {
	f.handler = handler
	return nil
}
func (f *fakeEvents) Stop() { f.stopped = true }
func (f *fakeEvents) Restart(ctx context.Context) error {
	f.restartCalls++
	return f.restartErr
}

type fakeAcks struct {
	mu        sync.Mutex
	scheduled []string
	completed []string
}

func (f *fakeAcks) Start(ctx context.Context) {}
func (f *fakeAcks) Stop()                     {}
func (f *fakeAcks) Schedule(operationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, operationID)
}
func (f *fakeAcks) OperationCompleted(operationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, operationID)
}
func (f *fakeAcks) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scheduled) - len(f.completed)
}

type fakeExecutor struct {
	mu             sync.Mutex
	runQueryFn     func(ctx context.Context, q model.SnowflakeQuery) (*model.AgentOperationResult, error)
	resultForQuery func(ctx context.Context, queryID string, attrs model.OperationAttributes) (model.Envelope, error)
	restarted      bool
}

func (f *fakeExecutor) RunQuery(ctx context.Context, q model.SnowflakeQuery) (*model.AgentOperationResult, error) {
	if f.runQueryFn != nil {
		return f.runQueryFn(ctx, q)
	}
	return &model.AgentOperationResult{
		OperationID: q.OperationID,
		Result:      model.NewResultEnvelope(map[string]any{"rowcount": 0}).WithTraceID(q.Attrs.TraceID),
		Attrs:       &q.Attrs,
	}, nil
}
func (f *fakeExecutor) ResultForQuery(ctx context.Context, queryID string, attrs model.OperationAttributes) (model.Envelope, error) {
	if f.resultForQuery != nil {
		return f.resultForQuery(ctx, queryID, attrs)
	}
	return model.NewResultEnvelope(map[string]any{"rowcount": 1}).WithTraceID(attrs.TraceID), nil
}
func (f *fakeExecutor) ResultForQueryFailed(operationID string, code int, message, sqlstate string) model.Envelope {
	errType := model.ErrorTypeDatabase
	switch code {
	case 3001, 3030, 2043, 604, 630:
		errType = model.ErrorTypeProgramming
	}
	return model.NewErrorEnvelope(errType, message, code, sqlstate)
}
func (f *fakeExecutor) ResultForException(err error) model.Envelope {
	return model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, "")
}
func (f *fakeExecutor) RestartService(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = true
	return nil
}
func (f *fakeExecutor) PoolStats() map[string]int {
	return map[string]int{"default": 0}
}

type pushedResult struct {
	operationID string
	result      model.Envelope
}

type fakeOrchestrator struct {
	mu            sync.Mutex
	pushed        []pushedResult
	downloaded    map[string]map[string]any
	pings         []string
	pushedMetrics [][]string
}

func (f *fakeOrchestrator) PushResults(ctx context.Context, operationID string, result model.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, pushedResult{operationID, result})
}
func (f *fakeOrchestrator) SendAck(ctx context.Context, operationID string) error { return nil }
func (f *fakeOrchestrator) Ping(ctx context.Context, traceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, traceID)
	return nil
}
func (f *fakeOrchestrator) PushMetrics(ctx context.Context, lines []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushedMetrics = append(f.pushedMetrics, lines)
	return nil
}
func (f *fakeOrchestrator) DownloadOperation(ctx context.Context, operationID string) (map[string]any, error) {
	return f.downloaded[operationID], nil
}

type fakeStorage struct {
	result model.Envelope
}

func (f *fakeStorage) ExecuteOperation(event map[string]any) model.Envelope {
	if f.result != nil {
		return f.result
	}
	return model.NewResultEnvelope(map[string]any{"written": true})
}

type fakeResultProcessor struct {
	processErr error
}

func (f *fakeResultProcessor) Process(env model.Envelope, attrs model.OperationAttributes) (model.Envelope, error) {
	if f.processErr != nil {
		return nil, f.processErr
	}
	return env, nil
}

type fakeConfigStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func (f *fakeConfigStore) SetValues(values map[string]string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]string{}
	}
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}
func (f *fakeConfigStore) GetAll() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

type fakeLogs struct {
	entries []telemetry.LogEntry
	err     error
}

func (f *fakeLogs) FetchLogs(ctx context.Context, limit int) ([]telemetry.LogEntry, error) {
	return f.entries, f.err
}

type fakeMetrics struct {
	lines []string
	err   error
}

func (f *fakeMetrics) FetchMetrics(ctx context.Context) ([]string, error) {
	return f.lines, f.err
}

type fakeLocalMetrics struct {
	mu          sync.Mutex
	queueDepths map[string]int
	ackBacklog  int
	poolInUse   map[string]int
	gatherLines []string
	gatherErr   error
}

func (f *fakeLocalMetrics) SetQueueDepth(queue string, depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueDepths == nil {
		f.queueDepths = map[string]int{}
	}
	f.queueDepths[queue] = depth
}
func (f *fakeLocalMetrics) SetAckBacklog(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackBacklog = n
}
func (f *fakeLocalMetrics) SetPoolInUse(pool string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poolInUse == nil {
		f.poolInUse = map[string]int{}
	}
	f.poolInUse[pool] = n
}
func (f *fakeLocalMetrics) Gather() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gatherLines, f.gatherErr
}
