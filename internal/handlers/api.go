package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
)

// APIHandler serves build metadata and a liveness view of the latest run
type APIHandler struct {
	runs   RunManager // optional
	logger arbor.ILogger
}

func NewAPIHandler(runs RunManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		runs:   runs,
		logger: logger,
	}
}

type versionResponse struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	CurrentRun *models.RunRecord `json:"current_run,omitempty"`
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, versionResponse{
		Version:   common.GetVersion(),
		Build:     common.Build,
		GitCommit: common.GitCommit,
	})
}

// HealthHandler handles GET /api/health. The latest run's summary is included once one has started.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp := healthResponse{Status: "ok", Version: common.GetVersion()}
	if h.runs != nil {
		if run, err := h.runs.Current(); err == nil {
			record := run.Record()
			resp.CurrentRun = &record
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// NotFoundHandler answers unknown paths with the list of endpoints
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"status":    "error",
		"path":      r.URL.Path,
		"message":   "Unknown endpoint",
		"endpoints": []string{"/scrape", "/stream", "/ws", "/download/{file}", "/api/runs", "/api/runs/{id}", "/api/health", "/api/version"},
	})
}
