package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dwhagent/agent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeAgent struct {
	healthInfo       map[string]any
	reachabilityErr  error
	metricsLines     []string
	metricsErr       error
	completedAttrs   model.OperationAttributes
	completedQueryID string
	failedAttrs      model.OperationAttributes
	failedCode       int
	failedMessage    string
	failedSQLState   string
}

func (f *fakeAgent) HealthInformation() map[string]any { return f.healthInfo }
func (f *fakeAgent) RunReachabilityTest(ctx context.Context) error { return f.reachabilityErr }
func (f *fakeAgent) Metrics(ctx context.Context) ([]string, error) { return f.metricsLines, f.metricsErr }
func (f *fakeAgent) QueryCompleted(attrs model.OperationAttributes, queryID string) {
	f.completedAttrs = attrs
	f.completedQueryID = queryID
}
func (f *fakeAgent) QueryFailed(attrs model.OperationAttributes, code int, message, sqlstate string) {
	f.failedAttrs = attrs
	f.failedCode = code
	f.failedMessage = message
	f.failedSQLState = sqlstate
}

func newTestServer(agent *fakeAgent) *Server {
	return NewServer(agent, testLogger())
}

func TestHandleHealthcheck_ReturnsOK(t *testing.T) {
	s := newTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test/healthcheck", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleHealthRow_WrapsInDataRows(t *testing.T) {
	agent := &fakeAgent{healthInfo: map[string]any{"cpu_count": float64(4)}}
	s := newTestServer(agent)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, float64(0), resp.Data[0][0])
}

func TestHandleHealthRaw_ReturnsUnwrapped(t *testing.T) {
	agent := &fakeAgent{healthInfo: map[string]any{"go_version": "go1.24"}}
	s := newTestServer(agent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "go1.24", body["go_version"])
}

func TestHandleReachability_Success(t *testing.T) {
	s := newTestServer(&fakeAgent{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/reachability", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReachability_Failure(t *testing.T) {
	s := newTestServer(&fakeAgent{reachabilityErr: errors.New("timeout")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/reachability", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleMetrics_WrapsLines(t *testing.T) {
	agent := &fakeAgent{metricsLines: []string{"agent_queue_depth 1"}}
	s := newTestServer(agent)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/test/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp rowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
}

func TestHandleQueryCompleted_DispatchesToAgent(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(agent)

	opJSON, err := json.Marshal(model.NewOperationAttributes("op-1", "trace-1", false, 0, ""))
	require.NoError(t, err)

	body, _ := json.Marshal(rowsRequest{Data: [][]any{{0, string(opJSON), "warehouse-query-id"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute/snowflake/query_completed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-1", agent.completedAttrs.OperationID)
	assert.Equal(t, "warehouse-query-id", agent.completedQueryID)

	var resp rowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data[0][1])
}

func TestHandleQueryCompleted_EmptyDataArrayIsNoop(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(agent)

	body, _ := json.Marshal(rowsRequest{Data: [][]any{}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute/snowflake/query_completed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
	assert.Empty(t, agent.completedAttrs.OperationID)
}

func TestHandleQueryFailed_DispatchesToAgent(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(agent)

	opJSON, err := json.Marshal(model.NewOperationAttributes("op-2", "trace-2", false, 0, ""))
	require.NoError(t, err)

	body, _ := json.Marshal(rowsRequest{Data: [][]any{{0, string(opJSON), 630, "Uncaught exception: timeout", "57014"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute/snowflake/query_failed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-2", agent.failedAttrs.OperationID)
	assert.Equal(t, 630, agent.failedCode)
	assert.Equal(t, "57014", agent.failedSQLState)
}

func TestHandleQueryFailed_MalformedOpJSON(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(agent)

	body, _ := json.Marshal(rowsRequest{Data: [][]any{{0, "not json", 1, "boom", ""}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute/snowflake/query_failed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
