package warehouse

import (
	"errors"
	"strings"

	"github.com/dwhagent/agent/internal/model"
)

// programmingErrorCodes are the warehouse error codes that classify as
// ProgrammingError rather than DatabaseError, including
// the statement-timeout and cancel codes so the orchestrator can
// distinguish "your query was wrong/timed out" from "the warehouse broke".
var programmingErrorCodes = map[int]struct{}{
	3001: {},
	3030: {},
	2043: {},
	604:  {},
	630:  {},
}

// ClassifyErrorCode returns model.ErrorTypeProgramming for the known set of
// warehouse codes, else model.ErrorTypeDatabase.
func ClassifyErrorCode(code int) string {
	if _, ok := programmingErrorCodes[code]; ok {
		return model.ErrorTypeProgramming
	}
	return model.ErrorTypeDatabase
}

// stripMessagePrefix removes everything up to and including the first ':'
// in msg. This can collapse legitimate error text that itself contains a
// ':', but the prefix it strips (driver/connector boilerplate) always
// contains one, so the trade-off favors a clean message in the common case.
func stripMessagePrefix(msg string) string {
	if idx := strings.Index(msg, ":"); idx >= 0 {
		return strings.TrimSpace(msg[idx+1:])
	}
	return msg
}

// ErrQueryFailed wraps a classified warehouse failure; callers that need
// the raw errno/sqlstate use errors.As to unwrap it.
type ErrQueryFailed struct {
	Code     int
	SQLState string
	Message  string
	ErrType  string
}

func (e *ErrQueryFailed) Error() string {
	return e.Message
}

// NewErrQueryFailed builds a classified query failure from a warehouse
// callback's raw fields.
func NewErrQueryFailed(code int, message, sqlstate string) *ErrQueryFailed {
	return &ErrQueryFailed{
		Code:     code,
		SQLState: sqlstate,
		Message:  stripMessagePrefix(message),
		ErrType:  ClassifyErrorCode(code),
	}
}

// ErrNotConfigured is returned when RunQuery is invoked for a job type with
// neither a dedicated pool nor a default pool available.
var ErrNotConfigured = errors.New("warehouse: no connection pool configured")
