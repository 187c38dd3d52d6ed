// Package telemetry implements log and metrics collection: reading
// rotating service logs from the warehouse stage and fanning in scraped
// Prometheus metrics endpoints.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/dwhagent/agent/internal/warehouse"
)

// LogEntry is one decoded service log line.
type LogEntry struct {
	Timestamp string
	Message   string
}

// ParseLogLine splits a log line on the first "] " after a leading "[",
// yielding (timestamp, message). Lines that don't start with "[" yield
// ("", line) — the whole string as message.
func ParseLogLine(line string) LogEntry {
	if !strings.HasPrefix(line, "[") {
		return LogEntry{Message: line}
	}

	ts, msg, found := strings.Cut(line, "] ")
	if !found {
		return LogEntry{Message: line}
	}

	return LogEntry{Timestamp: strings.TrimPrefix(ts, "["), Message: msg}
}

// LogsService reads the warehouse stage's rotating service logs via the
// SERVICE_LOGS(limit) stored procedure.
type LogsService struct {
	pool *warehouse.Pool
}

// NewLogsService builds a LogsService over pool.
func NewLogsService(pool *warehouse.Pool) *LogsService {
	return &LogsService{pool: pool}
}

// FetchLogs invokes SERVICE_LOGS(limit) and decodes each returned line.
func (s *LogsService) FetchLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "CALL SERVICE_LOGS(?)", limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: SERVICE_LOGS call failed: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("telemetry: scanning log line: %w", err)
		}
		entries = append(entries, ParseLogLine(line))
	}
	return entries, rows.Err()
}
