package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Progress streams
	mux.HandleFunc("/scrape", s.app.ScrapeHandler.ScrapeHandler)
	mux.HandleFunc("/stream", s.app.ScrapeHandler.StreamHandler)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Export files
	mux.HandleFunc("/download/", s.app.DownloadHandler.DownloadHandler)

	// API routes - Runs
	mux.HandleFunc("/api/runs", s.app.RunsHandler.ListRunsHandler)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRunRoutes routes /api/runs/{id}
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: s.app.RunsHandler.GetRunHandler,
	})
}
