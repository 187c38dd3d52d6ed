package router

import (
	"context"

	"github.com/dwhagent/agent/internal/model"
)

// handlePublish is results_publisher's handler: it cancels the pending ACK
// (a result means the operation is done, ACKed or not), applies the
// size-gate/spill-to-storage finalization when the result carries
// OperationAttributes, and pushes the finished envelope to the
// orchestrator. Results with no Attrs (health, logs, metrics, storage
// operations, connection tests) skip finalization — they carry no
// trace_id/size-limit context to gate against.
func (a *Agent) handlePublish(r model.AgentOperationResult) {
	a.acks.OperationCompleted(r.OperationID)

	result := r.Result
	if r.Attrs != nil {
		processed, err := a.result.Process(result, *r.Attrs)
		if err != nil {
			a.logger.Error("router: finalizing result failed", "operation_id", r.OperationID, "error", err)
			result = a.executor.ResultForException(err).WithTraceID(r.Attrs.TraceID)
		} else {
			result = processed
		}
	}

	a.orchestrator.PushResults(context.Background(), r.OperationID, result)
}
