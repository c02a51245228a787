package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// RunsHandler exposes run history
type RunsHandler struct {
	runs   RunManager
	logger arbor.ILogger
}

func NewRunsHandler(runs RunManager, logger arbor.ILogger) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		logger: logger,
	}
}

// ListRunsHandler handles GET /api/runs?limit=
func (h *RunsHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 0 {
		WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunsHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, "Run "+id+" not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}
