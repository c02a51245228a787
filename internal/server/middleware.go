package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/prospector/internal/handlers"
)

// streamPaths are long-lived progress responses
var streamPaths = map[string]bool{
	"/scrape": true,
	"/stream": true,
	"/ws":     true,
}

// withMiddleware wraps the router: logging outermost, then CORS, then panic recovery
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = s.recoveryMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// withConditionalMiddleware hands WebSocket upgrades straight to the router with CORS headers only
func (s *Server) withConditionalMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			setCORSHeaders(w)
			s.app.Logger.Debug().
				Str("remote", r.RemoteAddr).
				Msg("WebSocket progress stream requested")
			handler.ServeHTTP(w, r)
			return
		}
		s.withMiddleware(handler).ServeHTTP(w, r)
	})
}

// requestContext names the run, export or query a request is about
type requestContext struct {
	stream bool
	key    string
	value  string
}

func contextOf(r *http.Request) requestContext {
	path := r.URL.Path
	switch {
	case streamPaths[path]:
		return requestContext{stream: true, key: "search_query", value: r.URL.Query().Get("search_query")}
	case strings.HasPrefix(path, "/api/runs/"):
		return requestContext{key: "run_id", value: strings.TrimPrefix(path, "/api/runs/")}
	case strings.HasPrefix(path, "/download/"):
		return requestContext{key: "file", value: strings.TrimPrefix(path, "/download/")}
	}
	return requestContext{}
}

// loggingMiddleware logs progress streams at info when they open and close; other requests at debug
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rc := contextOf(r)

		if rc.stream {
			event := s.app.Logger.Info().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr)
			if rc.value != "" {
				event = event.Str(rc.key, rc.value)
			}
			event.Msg("Progress stream opened")
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		event, msg := s.app.Logger.Debug(), "HTTP request"
		if rc.stream {
			event, msg = s.app.Logger.Info(), "Progress stream closed"
		}
		event = event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int64("bytes", rw.written).
			Dur("duration", time.Since(start))
		if !rc.stream && rc.key != "" {
			event = event.Str(rc.key, rc.value)
		}
		event.Msg(msg)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// corsMiddleware lets dashboards on other origins trigger runs and read exports
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware turns a handler panic into a JSON 500
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				handlers.WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status and byte count while passing Flush and Hijack through
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}
