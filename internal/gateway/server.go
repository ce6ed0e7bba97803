// Package gateway exposes the engine over HTTP: the /api/files,
// /api/ai, and /api/terminal surfaces plus health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexar-labs/nexar/internal/agent"
	"github.com/nexar-labs/nexar/internal/agent/providers"
	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/terminal"
	"github.com/nexar-labs/nexar/internal/workspace"
)

// Server is the HTTP front of the engine.
type Server struct {
	addr      string
	runs      *agent.Registry
	router    *providers.Router
	files     *workspace.Service
	terminals *terminal.Manager
	logger    *observability.Logger
	metrics   *observability.Metrics

	httpServer *http.Server
}

// Config wires a Server.
type Config struct {
	Addr      string
	Runs      *agent.Registry
	Router    *providers.Router
	Files     *workspace.Service
	Terminals *terminal.Manager
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewServer creates the server and its route table.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:      cfg.Addr,
		runs:      cfg.Runs,
		router:    cfg.Router,
		files:     cfg.Files,
		terminals: cfg.Terminals,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /api/files/tree", s.handleFileTree)
	mux.HandleFunc("GET /api/files/read", s.handleFileRead)
	mux.HandleFunc("POST /api/files/write", s.handleFileWrite)
	mux.HandleFunc("POST /api/files/write_range", s.handleFileWriteRange)
	mux.HandleFunc("POST /api/files/create", s.handleFileCreate)
	mux.HandleFunc("POST /api/files/delete", s.handleFileDelete)
	mux.HandleFunc("POST /api/files/rename", s.handleFileRename)

	mux.HandleFunc("GET /api/ai/providers", s.handleProviders)
	mux.HandleFunc("POST /api/ai/chat", s.handleChat)
	mux.HandleFunc("POST /api/ai/runs/start", s.handleRunStart)
	mux.HandleFunc("GET /api/ai/runs/{id}", s.handleRunGet)
	mux.HandleFunc("POST /api/ai/runs/{id}/continue", s.handleRunContinue)
	mux.HandleFunc("POST /api/ai/runs/{id}/reply", s.handleRunReply)
	mux.HandleFunc("POST /api/ai/runs/{id}/pause", s.handleRunPause)
	mux.HandleFunc("POST /api/ai/runs/{id}/resume", s.handleRunResume)
	mux.HandleFunc("POST /api/ai/runs/{id}/cancel", s.handleRunCancel)

	mux.HandleFunc("POST /api/terminal/sessions", s.handleTerminalCreate)
	mux.HandleFunc("POST /api/terminal/sessions/{id}/input", s.handleTerminalInput)
	mux.HandleFunc("GET /api/terminal/sessions/{id}/output", s.handleTerminalOutput)
	mux.HandleFunc("POST /api/terminal/sessions/{id}/resize", s.handleTerminalResize)
	mux.HandleFunc("DELETE /api/terminal/sessions/{id}", s.handleTerminalClose)

	return s.withObservability(mux)
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.logger.Info(context.Background(), "starting http server", "addr", s.addr)
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the route table; used by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// withObservability tags each request with an id and records latency
// metrics and an access log line.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := observability.AddRequestID(r.Context(), requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status), elapsed.Seconds())
		}
		s.logger.Debug(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", elapsed,
			"request_id", requestID,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
