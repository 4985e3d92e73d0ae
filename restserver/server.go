// Package restserver hosts the device service's HTTP control surface.
// Handlers are registered progressively: the lifecycle engine installs
// the callback route before configured-device processing and the rest
// only after the driver reports successful init, so the surface never
// serves non-callback traffic from a service that is not ready.
package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Server is a method-filtered HTTP server over a dynamic route table.
type Server struct {
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]*route
	ln     net.Listener
	srv    *http.Server
	port   int
}

// route binds a path (exact, or prefix when it ends in '/') to a method
// set and a handler.
type route struct {
	path    string
	methods map[string]bool
	handler http.HandlerFunc
}

// New creates a server for the given port. Nothing listens until Start.
func New(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		routes: make(map[string]*route),
		port:   port,
	}
}

// Register installs a handler for a path and method set. Paths ending in
// '/' match by prefix, longest prefix first. Registration is safe while
// the server is running; re-registering a path replaces it.
func (s *Server) Register(path string, methods []string, handler http.HandlerFunc) {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	s.mu.Lock()
	s.routes[path] = &route{path: path, methods: set, handler: handler}
	s.mu.Unlock()
}

// Start opens the listening socket and serves until Stop. A failure to
// bind is reported synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return fmt.Errorf("restserver: already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("restserver: listen on port %d: %w", s.port, err)
	}
	s.ln = ln
	srv := &http.Server{
		Handler:           http.HandlerFunc(s.dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server terminated", "error", err)
		}
	}()
	s.logger.Debug("HTTP server listening", "port", s.port)
	return nil
}

// Port returns the bound port; useful when the configured port is 0.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln != nil {
		if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.port
}

// Stop closes the listener and shuts the server down, giving in-flight
// handlers the timeout to complete.
func (s *Server) Stop(timeout time.Duration) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
}

// dispatch resolves the route table: exact match first, then the longest
// registered prefix route.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rt, ok := s.routes[r.URL.Path]
	if !ok {
		var best *route
		for _, candidate := range s.routes {
			if !strings.HasSuffix(candidate.path, "/") {
				continue
			}
			if strings.HasPrefix(r.URL.Path, candidate.path) {
				if best == nil || len(candidate.path) > len(best.path) {
					best = candidate
				}
			}
		}
		rt = best
	}
	s.mu.RUnlock()

	if rt == nil {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if !rt.methods[r.Method] {
		WriteError(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		return
	}
	rt.handler(w, r)
}

// WriteJSON writes a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

// WriteText writes a plain-text response body.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
