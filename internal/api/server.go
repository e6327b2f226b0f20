// Package api implements Wren's HTTP surface: the chat endpoint, the
// health probe, the demo tool backends, and the agent-message push
// channel.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/connwatch"
	"github.com/nugget/wren/internal/events"
	"github.com/nugget/wren/internal/reports"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Agent runs one chat turn.
type Agent interface {
	Run(ctx context.Context, req *agent.Request) (*agent.Result, error)
}

// Reports queues and looks up report jobs.
type Reports interface {
	Generate(reportType string) (*reports.Report, time.Duration, error)
	Status(id string) (*reports.Report, error)
}

// HealthSource reports upstream reachability for /health.
type HealthSource interface {
	Status() map[string]connwatch.ServiceStatus
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	provider string
	agent    Agent
	reports  Reports
	health   HealthSource
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	server *http.Server
	closed bool

	// closing ends long-lived websocket handlers, which Shutdown does
	// not track once they are hijacked.
	closing   chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
}

// NewServer creates a new API server. provider is reported by /health.
func NewServer(address string, port int, provider string, ag Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		provider: provider,
		agent:    ag,
		logger:   logger,
		now:      time.Now,
		closing:  make(chan struct{}),
	}
}

// SetReports enables the report endpoints.
func (s *Server) SetReports(r Reports) {
	s.reports = r
}

// SetHealthSource adds upstream status to /health.
func (s *Server) SetHealthSource(h HealthSource) {
	s.health = h
}

// SetEventBus enables the agent-message push channel. Without a bus,
// pushed messages are accepted and dropped.
func (s *Server) SetEventBus(b *events.Bus) {
	s.bus = b
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Tool backends
	mux.HandleFunc("GET /api/time", s.handleTime)
	mux.HandleFunc("GET /api/sample-data", s.handleSampleData)

	// Reports
	mux.HandleFunc("POST /api/reports/generate", s.handleReportGenerate)
	mux.HandleFunc("GET /api/reports/status/{reportId}", s.handleReportStatus)

	// Agent-initiated messages
	mux.HandleFunc("POST /api/agent-messages", s.handleAgentMessagePush)
	mux.HandleFunc("GET /api/agent-messages/ws", s.handleAgentMessageStream)

	return s.withLogging(withCORS(mux))
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown, including a Shutdown that ran before Start. Request
// contexts carry ctx's values but are not cancelled with it, so
// in-flight turns can finish while Shutdown drains.
func (s *Server) Start(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // provider calls can be slow
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port, "provider", s.provider)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server and closes open push streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeStreams()
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, ErrorResponse{Error: message}, s.logger)
}

func (s *Server) errorDetail(w http.ResponseWriter, code int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, ErrorResponse{Error: message, Details: details}, s.logger)
}

// statusRecorder captures the response code for the access log. It
// passes Hijack through so websocket upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// withCORS allows any origin, matching a browser client served from a
// different port.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
