package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dwhagent/agent/internal/model"
)

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleHealthRow answers the Snowflake external-function row-array
// contract: one input row (discarded), one output row carrying the health
// dict.
func (s *Server) handleHealthRow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rowsResponse{Data: [][]any{{0, s.agent.HealthInformation()}}})
}

// handleHealthRaw is the local-debugging variant: the health dict with no
// row-array wrapper.
func (s *Server) handleHealthRaw(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.HealthInformation())
}

func (s *Server) handleReachability(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.RunReachabilityTest(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rowsResponse{Data: [][]any{{0, "ok"}}})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	lines, err := s.agent.Metrics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rowsResponse{Data: [][]any{{0, lines}}})
}

// rowsRequest/rowsResponse are the Snowflake external-function wire shape:
// a JSON array of input/output rows, the first element of each row being a
// row index the caller discards on the way out.
type rowsRequest struct {
	Data [][]any `json:"data"`
}

type rowsResponse struct {
	Data [][]any `json:"data"`
}

func (s *Server) handleQueryCompleted(w http.ResponseWriter, r *http.Request) {
	var req rowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if len(req.Data) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	row := req.Data[0]
	attrs, err := decodeOperationAttributes(row, 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	queryID, _ := fieldAt(row, 2).(string)

	s.agent.QueryCompleted(attrs, queryID)
	writeJSON(w, http.StatusOK, rowsResponse{Data: [][]any{{0, "ok"}}})
}

func (s *Server) handleQueryFailed(w http.ResponseWriter, r *http.Request) {
	var req rowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if len(req.Data) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	row := req.Data[0]
	attrs, err := decodeOperationAttributes(row, 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	code := intField(fieldAt(row, 2))
	message, _ := fieldAt(row, 3).(string)
	sqlstate, _ := fieldAt(row, 4).(string)

	s.agent.QueryFailed(attrs, code, message, sqlstate)
	writeJSON(w, http.StatusOK, rowsResponse{Data: [][]any{{0, "ok"}}})
}

func fieldAt(row []any, index int) any {
	if index < 0 || index >= len(row) {
		return nil
	}
	return row[index]
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func decodeOperationAttributes(row []any, opJSONIndex int) (model.OperationAttributes, error) {
	opJSON, _ := fieldAt(row, opJSONIndex).(string)
	var attrs model.OperationAttributes
	if err := json.Unmarshal([]byte(opJSON), &attrs); err != nil {
		return attrs, fmt.Errorf("api: decoding operation attributes: %w", err)
	}
	return attrs, nil
}
