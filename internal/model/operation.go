package model

import (
	"time"

	"github.com/google/uuid"
)

// Operation is a unit of work addressed by OperationID and Path. It is
// created when an inbound event carries both a non-empty OperationID and
// a non-empty Path, or when a local HTTP callback injects one directly.
type Operation struct {
	OperationID string
	Path        string
	Body        map[string]any
	ReceivedAt  time.Time
}

// OperationAttributes is the subset of operation context that survives an
// asynchronous round-trip through the warehouse (a stored-procedure
// callback that only supplies a JSON string). NewOperationAttributes fills
// in the defaults for TraceID and ResponseSizeLimitBytes.
type OperationAttributes struct {
	OperationID            string `json:"operation_id"`
	TraceID                string `json:"trace_id"`
	CompressResponseFile   bool   `json:"compress_response_file"`
	ResponseSizeLimitBytes int    `json:"response_size_limit_bytes"`
	JobType                string `json:"job_type,omitempty"`
}

// DefaultResponseSizeLimitBytes is applied when no response size limit is
// given.
const DefaultResponseSizeLimitBytes = 5_000_000

// NewOperationAttributes builds attributes for operationID. TraceID defaults
// to a freshly minted UUID when empty and limitBytes to
// DefaultResponseSizeLimitBytes when zero; compress is stored as given (the
// router passes true when an operation omits compress_response_file).
func NewOperationAttributes(operationID, traceID string, compress bool, limitBytes int, jobType string) OperationAttributes {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if limitBytes == 0 {
		limitBytes = DefaultResponseSizeLimitBytes
	}
	return OperationAttributes{
		OperationID:            operationID,
		TraceID:                traceID,
		CompressResponseFile:   compress,
		ResponseSizeLimitBytes: limitBytes,
		JobType:                jobType,
	}
}

// SnowflakeQuery wraps a SQL string with its routing context. Created by
// the router, consumed by the warehouse executor.
type SnowflakeQuery struct {
	OperationID string
	Query       string
	Timeout     int // seconds; 0 means "use DefaultQueryTimeoutSeconds"
	Attrs       OperationAttributes
}

// DefaultQueryTimeoutSeconds is applied when a query doesn't specify one.
const DefaultQueryTimeoutSeconds = 850

// EffectiveTimeout returns q.Timeout, or DefaultQueryTimeoutSeconds if unset.
func (q SnowflakeQuery) EffectiveTimeout() int {
	if q.Timeout <= 0 {
		return DefaultQueryTimeoutSeconds
	}
	return q.Timeout
}

// AgentOperationResult is a union-style carrier published to the
// orchestrator client: either (OperationID, QueryID, Attrs) when the
// executor ran asynchronously, or (OperationID, Result, Attrs) when a
// direct result payload is already available.
type AgentOperationResult struct {
	OperationID string
	Result      Envelope
	QueryID     string
	Attrs       *OperationAttributes
}
