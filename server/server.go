// Package server exposes the assistant over HTTP: JSON endpoints for
// thread management and an SSE endpoint for streamed turns.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/parlorhq/parlor"
	"github.com/parlorhq/parlor/logging"
)

// Options configures the HTTP server.
type Options struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout time.Duration

	// AllowedOrigins lists the origins browser frontends may call from.
	// "*" allows any origin.
	AllowedOrigins []string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Server routes HTTP requests to an Assistant.
type Server struct {
	assistant *parlor.Assistant
	origins   []string
	logger    logging.Logger
	http      *http.Server
}

// New creates a Server around the given assistant.
func New(assistant *parlor.Assistant, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:              ":8000",
		ReadHeaderTimeout: 10 * time.Second,
		AllowedOrigins:    []string{"*"},
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		assistant: assistant,
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	return s
}

// WithAddr sets the listen address.
func WithAddr(addr string) func(o *Options) {
	return func(o *Options) { o.Addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins []string) func(o *Options) {
	return func(o *Options) { o.AllowedOrigins = origins }
}

// Handler builds the route table. Exposed separately so tests can drive
// the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /threads", s.handleListThreads)
	mux.HandleFunc("GET /conversation/{thread_id}", s.handleConversation)
	mux.HandleFunc("POST /thread/new", s.handleNewThread)
	mux.HandleFunc("DELETE /thread/{thread_id}", s.handleDeleteThread)

	return s.corsMiddleware(mux)
}

// ListenAndServe starts serving and blocks until the listener fails or
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// corsMiddleware allows browser frontends on the configured origins to
// call the API. "*" in the list allows any origin; otherwise the request
// origin is echoed back only when it matches.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(requestOrigin string) string {
	for _, o := range s.origins {
		if o == "*" {
			return "*"
		}
		if o == requestOrigin {
			return requestOrigin
		}
	}
	return ""
}
