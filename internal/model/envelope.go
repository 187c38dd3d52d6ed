// Package model holds the data shapes shared across the agent: the
// operation lifecycle types, the result envelope keys exchanged with the
// orchestrator, and the connection-pool configuration shapes.
package model

// Envelope keys exchanged with the orchestrator.
const (
	AttrResult           = "__mcd_result__"
	AttrError            = "__mcd_error__"
	AttrErrorType        = "__mcd_error_type__"
	AttrErrorAttrs       = "__mcd_error_attrs__"
	AttrTraceID          = "__mcd_trace_id__"
	AttrResultLocation   = "__mcd_result_location__"
	AttrResultCompressed = "__mcd_result_compressed__"
	AttrSizeExceeded     = "__mcd_size_exceeded__"
)

// Error type strings placed under AttrErrorType.
const (
	ErrorTypeProgramming = "ProgrammingError"
	ErrorTypeDatabase    = "DatabaseError"
)

// Envelope is the JSON object published to the orchestrator. It carries at
// most one of Result, ResultLocation, or Error — never more than one.
type Envelope map[string]any

// NewResultEnvelope wraps a result payload under AttrResult.
func NewResultEnvelope(result any) Envelope {
	return Envelope{AttrResult: result}
}

// NewErrorEnvelope builds an error envelope with the classified type and
// warehouse error attributes.
func NewErrorEnvelope(errType, message string, errno int, sqlstate string) Envelope {
	env := Envelope{
		AttrError: message,
	}
	if errType != "" {
		env[AttrErrorType] = errType
	}
	if errno != 0 || sqlstate != "" {
		env[AttrErrorAttrs] = map[string]any{
			"errno":    errno,
			"sqlstate": sqlstate,
		}
	}
	return env
}

// WithTraceID sets AttrTraceID on the envelope, returning it for chaining.
func (e Envelope) WithTraceID(traceID string) Envelope {
	if traceID != "" {
		e[AttrTraceID] = traceID
	}
	return e
}
