// Package api implements the admin HTTP surface: the endpoints the
// warehouse callback and the operator tooling hit, routed with chi's
// standard method-route API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwhagent/agent/internal/model"
)

// Agent is the subset of router.Agent the HTTP surface drives.
type Agent interface {
	HealthInformation() map[string]any
	RunReachabilityTest(ctx context.Context) error
	Metrics(ctx context.Context) ([]string, error)
	QueryCompleted(attrs model.OperationAttributes, queryID string)
	QueryFailed(attrs model.OperationAttributes, code int, message, sqlstate string)
}

// Server is the chi-routed HTTP surface in front of an Agent.
type Server struct {
	router chi.Router
	agent  Agent
	logger *slog.Logger
}

// NewServer builds a Server with every route registered.
func NewServer(agent Agent, logger *slog.Logger) *Server {
	s := &Server{agent: agent, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))

	r.Get("/api/v1/test/healthcheck", s.handleHealthcheck)
	r.Post("/api/v1/test/health", s.handleHealthRow)
	r.Get("/api/v1/test/health", s.handleHealthRaw)
	r.Post("/api/v1/test/reachability", s.handleReachability)
	r.Post("/api/v1/test/metrics", s.handleMetrics)
	r.Post("/api/v1/agent/execute/snowflake/query_completed", s.handleQueryCompleted)
	r.Post("/api/v1/agent/execute/snowflake/query_failed", s.handleQueryFailed)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("api request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
