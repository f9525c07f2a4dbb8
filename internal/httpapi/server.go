// Package httpapi serves the enhancement API and the provider health
// snapshot.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
	"github.com/thehoang-x-five/Rag-OCR/internal/enhance"
	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// Server hosts the JSON API over the orchestrator and manager.
type Server struct {
	server       *http.Server
	orchestrator *enhance.Orchestrator
	manager      *ai.Manager
	wg           sync.WaitGroup
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen string // e.g. ":8090"
}

// NewServer creates the API server.
func NewServer(cfg ServerConfig, orchestrator *enhance.Orchestrator, manager *ai.Manager) *Server {
	listen := cfg.Listen
	if listen == "" {
		listen = ":8090"
	}

	s := &Server{
		orchestrator: orchestrator,
		manager:      manager,
	}
	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // enhancement walks several providers
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/enhance", s.logRequest(s.handleEnhance))
	mux.HandleFunc("/api/providers", s.logRequest(s.handleProviders))
	mux.HandleFunc("/healthz", s.logRequest(s.handleHealthz))

	return mux
}

// Start launches the server in the background.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

// logRequest wraps a handler to log method, path, status, and duration.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_debug("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}
