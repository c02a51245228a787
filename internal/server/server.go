package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/prospector/internal/app"
)

// Server exposes the run trigger, the progress streams and the run/export API
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server

	// closeStreams ends every open SSE and WebSocket stream once shutdown begins
	closeStreams context.CancelFunc
}

// New builds the HTTP server. Stream handlers run on a base context that is cancelled
// when Shutdown starts, so open streams detach instead of holding shutdown until their run ends.
func New(application *app.App) *Server {
	streamCtx, closeStreams := context.WithCancel(context.Background())

	s := &Server{
		app:          application,
		closeStreams: closeStreams,
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              listenAddr(application),
		Handler:           s.withConditionalMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // /scrape, /stream and /ws stay open for the whole run
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	s.server.RegisterOnShutdown(closeStreams)

	return s
}

func listenAddr(application *app.App) string {
	return fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Str("trigger", "/scrape").
		Str("streams", "/stream, /ws").
		Msg("Prospector API listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown closes open progress streams and waits for in-flight requests. Runs keep
// going in the pipeline manager; their records stay available through /api/runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Str("address", s.server.Addr).Msg("Closing progress streams and stopping API")

	err := s.server.Shutdown(ctx)
	s.closeStreams()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("API stopped")
	return nil
}
