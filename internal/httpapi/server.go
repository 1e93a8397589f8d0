// Package httpapi is the core's transport boundary: an SSE chat stream,
// a small REST surface over conversations/messages/runtime/channels/jobs,
// and the ambient /metrics and /healthz endpoints, grounded on the teacher's
// internal/gateway http_server.go (plain net/http, no web framework).
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/internal/channels"
	"github.com/shrimp/shrimp/internal/metrics"
	"github.com/shrimp/shrimp/internal/shell"
)

// Server is Shrimp's HTTP/SSE transport. It wraps the turn orchestrator and
// the trigger-run executor; it owns no domain logic of its own.
type Server struct {
	Orchestrator  *agent.Orchestrator
	Shell         *shell.Manager
	Channels      map[string]channels.Adapter
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	DBPath        string
	DefaultModel  string
	AllowedModels []string

	httpServer *http.Server
	listener   net.Listener
}

// Handler builds the routed mux: every route named in spec.md §6 plus
// /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.Handle("/api/chat/stream", s.instrument("/api/chat/stream", http.HandlerFunc(s.handleChatStream)))
	mux.Handle("/api/conversations", s.instrument("/api/conversations", http.HandlerFunc(s.handleConversations)))
	mux.Handle("/api/conversations/", s.instrument("/api/conversations/:id", http.HandlerFunc(s.handleConversationByID)))
	mux.Handle("/api/messages/", s.instrument("/api/messages/:id", http.HandlerFunc(s.handleMessageByID)))
	mux.Handle("/api/runtime", s.instrument("/api/runtime", http.HandlerFunc(s.handleRuntime)))
	mux.Handle("/api/channels/status", s.instrument("/api/channels/status", http.HandlerFunc(s.handleChannelsStatus)))
	mux.Handle("/api/channels/start", s.instrument("/api/channels/start", http.HandlerFunc(s.handleChannelsStart)))
	mux.Handle("/api/jobs", s.instrument("/api/jobs", http.HandlerFunc(s.handleJobs)))

	return mux
}

// instrument wraps h so every request is recorded against Metrics, when set.
func (s *Server) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			h.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.Metrics.ObserveHTTPRequest(route, fmt.Sprintf("%d", rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush satisfies http.Flusher when the underlying writer does, which the
// SSE handler relies on to push each frame immediately.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Start binds the listener and serves in the background; Stop shuts it down.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("httpapi: server error", "error", err)
		}
	}()
	s.logger().Info("httpapi: listening", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	host, _ := os.Hostname()
	sessions := 0
	if s.Shell != nil {
		sessions = s.Shell.ActiveSessionCount()
	}
	dbStatus := "ok"
	if s.Orchestrator == nil || s.Orchestrator.Store == nil {
		dbStatus = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platform":            runtime.GOOS,
		"shell":               defaultShellName(),
		"hostname":            host,
		"dbPath":              s.DBPath,
		"dbStatus":            dbStatus,
		"defaultModel":        s.DefaultModel,
		"allowedModels":       s.AllowedModels,
		"activeShellSessions": sessions,
	})
}

func defaultShellName() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}
