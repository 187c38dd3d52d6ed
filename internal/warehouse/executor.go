package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwhagent/agent/internal/model"
)

// DefaultQueryTimeoutSeconds re-exports model.DefaultQueryTimeoutSeconds
// for callers of this package.
const DefaultQueryTimeoutSeconds = model.DefaultQueryTimeoutSeconds

// ExecutorConfig controls which of the three execution modes RunQuery uses.
// At most one of DirectSync/UseSyncQueries should be true (DirectSync wins
// when both are); the zero value selects the async (production) path.
type ExecutorConfig struct {
	// DirectSync runs the SQL immediately via database/sql and returns the
	// result inline. Local-dev only — never set in production.
	DirectSync bool
	// UseSyncQueries calls a helper stored procedure synchronously
	// (USE_SYNC_QUERIES=true) instead of the async stored-procedure path.
	UseSyncQueries bool
	// HelperProcName is the stored procedure invoked for the helper-sync
	// path, e.g. "RUN_QUERY_SYNC".
	HelperProcName string
	// AsyncProcName is the stored procedure invoked for the default async
	// path, e.g. "RUN_QUERY_ASYNC". It is expected to run the SQL and,
	// on completion, call back the admin API's query-completed/query-failed
	// endpoints.
	AsyncProcName string
	// RestartProcName is the stored procedure RestartService invokes,
	// e.g. "RESTART_SERVICE_ASYNC".
	RestartProcName string
}

// resultQuery builds the SQL + args used to fetch a completed async
// query's results by its warehouse-assigned ID. Overridable in tests,
// which run against modernc.org/sqlite and therefore can't parse the real
// warehouse's `TABLE(RESULT_SCAN(?))` syntax.
type resultQueryFunc func(queryID string) (string, []any)

func defaultResultQuery(queryID string) (string, []any) {
	return "SELECT * FROM TABLE(RESULT_SCAN(?))", []any{queryID}
}

// Executor owns the ConnectionPoolSet and implements the three execution
// modes plus the async-completion result fetch / error-translation paths.
type Executor struct {
	pools       *PoolSet
	config      ExecutorConfig
	logger      *slog.Logger
	resultQuery resultQueryFunc
}

// NewExecutor builds an Executor over pools.
func NewExecutor(pools *PoolSet, config ExecutorConfig, logger *slog.Logger) *Executor {
	return &Executor{pools: pools, config: config, logger: logger, resultQuery: defaultResultQuery}
}

// RunQuery executes query according to the configured mode. A nil result
// with a nil error means the query was dispatched to run asynchronously —
// its completion will arrive later via ResultForQuery/ResultForQueryFailed
// from the warehouse's callback, not from this call.
func (e *Executor) RunQuery(ctx context.Context, query model.SnowflakeQuery) (*model.AgentOperationResult, error) {
	pool := e.pools.For(query.Attrs.JobType)
	if pool == nil {
		return nil, ErrNotConfigured
	}

	timeout := time.Duration(query.EffectiveTimeout()) * time.Second
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch {
	case e.config.DirectSync:
		return e.runDirectSync(qctx, pool, query)
	case e.config.UseSyncQueries:
		return e.runHelperSync(qctx, pool, query)
	default:
		return e.runAsync(qctx, pool, query)
	}
}

func (e *Executor) runDirectSync(ctx context.Context, pool *Pool, query model.SnowflakeQuery) (*model.AgentOperationResult, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("warehouse: direct-sync query failed: %w", err)
	}
	defer rows.Close()

	result, err := rowsToResult(rows)
	if err != nil {
		return nil, err
	}

	return &model.AgentOperationResult{
		OperationID: query.OperationID,
		Result:      model.NewResultEnvelope(result).WithTraceID(query.Attrs.TraceID),
		Attrs:       &query.Attrs,
	}, nil
}

func (e *Executor) runHelperSync(ctx context.Context, pool *Pool, query model.SnowflakeQuery) (*model.AgentOperationResult, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", query.EffectiveTimeout())); err != nil {
		return nil, fmt.Errorf("warehouse: setting statement timeout: %w", err)
	}

	helperProc := e.config.HelperProcName
	if helperProc == "" {
		helperProc = "RUN_QUERY_SYNC"
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("CALL %s(?)", helperProc), query.Query)
	if err != nil {
		return nil, fmt.Errorf("warehouse: helper-sync call failed: %w", err)
	}
	defer rows.Close()

	result, err := rowsToResult(rows)
	if err != nil {
		return nil, err
	}

	return &model.AgentOperationResult{
		OperationID: query.OperationID,
		Result:      model.NewResultEnvelope(result).WithTraceID(query.Attrs.TraceID),
		Attrs:       &query.Attrs,
	}, nil
}

// runAsync invokes the async stored procedure and returns immediately
// without waiting for completion. op_json round-trips the
// OperationAttributes through the callback boundary.
func (e *Executor) runAsync(ctx context.Context, pool *Pool, query model.SnowflakeQuery) (*model.AgentOperationResult, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	opJSON, err := json.Marshal(query.Attrs)
	if err != nil {
		return nil, fmt.Errorf("warehouse: encoding operation attributes: %w", err)
	}

	asyncProc := e.config.AsyncProcName
	if asyncProc == "" {
		asyncProc = "RUN_QUERY_ASYNC"
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CALL %s(?, ?)", asyncProc), query.Query, string(opJSON)); err != nil {
		return nil, fmt.Errorf("warehouse: dispatching async query: %w", err)
	}

	e.logger.Debug("dispatched async query", "operation_id", query.OperationID, "trace_id", query.Attrs.TraceID)
	return nil, nil
}

// ResultForQuery fetches the results of a completed async query by its
// warehouse-assigned queryID (the warehouse equivalent of
// `SELECT * FROM TABLE(RESULT_SCAN(?))`).
func (e *Executor) ResultForQuery(ctx context.Context, queryID string, attrs model.OperationAttributes) (model.Envelope, error) {
	pool := e.pools.For(attrs.JobType)
	if pool == nil {
		return nil, ErrNotConfigured
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query, args := e.resultQuery(queryID)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: fetching results for query %s: %w", queryID, err)
	}
	defer rows.Close()

	result, err := rowsToResult(rows)
	if err != nil {
		return nil, err
	}

	return model.NewResultEnvelope(result).WithTraceID(attrs.TraceID), nil
}

// ResultForQueryFailed builds an error envelope for an async query's
// callback-reported failure, classifying code and stripping the message
// prefix.
func (e *Executor) ResultForQueryFailed(operationID string, code int, message, sqlstate string) model.Envelope {
	qf := NewErrQueryFailed(code, message, sqlstate)
	return model.NewErrorEnvelope(qf.ErrType, qf.Message, qf.Code, qf.SQLState)
}

// ResultForException canonicalizes an executor-side Go error (not a
// warehouse callback failure) into the same envelope shape.
func (e *Executor) ResultForException(err error) model.Envelope {
	return model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, "")
}

// PoolStats reports in-use connection counts per pool, for the process
// metrics gauge.
func (e *Executor) PoolStats() map[string]int {
	return e.pools.InUse()
}

// RestartService dispatches a best-effort async call that waits a few
// seconds and restarts the warehouse container runtime. No result ever
// completes this call from the caller's point of view; completion, if any,
// arrives out of band.
func (e *Executor) RestartService(ctx context.Context) error {
	pool := e.pools.For("")
	if pool == nil {
		return ErrNotConfigured
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	restartProc := e.config.RestartProcName
	if restartProc == "" {
		restartProc = "RESTART_SERVICE_ASYNC"
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CALL %s()", restartProc)); err != nil {
		return fmt.Errorf("warehouse: dispatching restart: %w", err)
	}
	return nil
}

// rowsToResult drains rows into a result map shaped {columns, rows,
// rowcount}.
func rowsToResult(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("warehouse: reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("warehouse: scanning row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: iterating rows: %w", err)
	}

	return map[string]any{
		"columns":  columns,
		"rows":     out,
		"rowcount": len(out),
	}, nil
}
