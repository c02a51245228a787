package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/services/events"
	"github.com/ternarybob/prospector/internal/services/pipeline"
)

// ScrapeHandler starts runs and streams their progress as server-sent events
type ScrapeHandler struct {
	runs     RunManager
	pipeline common.PipelineConfig
	delivery common.DeliveryConfig
	logger   arbor.ILogger
}

func NewScrapeHandler(runs RunManager, pipelineConfig common.PipelineConfig, delivery common.DeliveryConfig, logger arbor.ILogger) *ScrapeHandler {
	return &ScrapeHandler{
		runs:     runs,
		pipeline: pipelineConfig,
		delivery: delivery,
		logger:   logger,
	}
}

// ScrapeHandler handles GET /scrape?search_query=&total_results=&api_endpoint=&api_key=
func (h *ScrapeHandler) ScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	total, err := queryInt(r, "total_results", h.pipeline.DefaultTotalResults)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "total_results must be an integer")
		return
	}

	req := pipeline.Request{
		SearchQuery:  queryString(r, "search_query", h.pipeline.DefaultSearchQuery),
		TotalResults: total,
		APIEndpoint:  queryString(r, "api_endpoint", h.delivery.Endpoint),
		APIKey:       queryString(r, "api_key", h.delivery.APIKey),
	}

	run, err := h.runs.Start(req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().Str("run_id", run.ID).Str("remote", r.RemoteAddr).Msg("Scrape requested")
	h.streamSSE(w, r, run.Bus())
}

// StreamHandler handles GET /stream, attaching to the latest run
func (h *ScrapeHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	run, err := h.runs.Current()
	if err != nil {
		WriteError(w, http.StatusNotFound, "No scrape run has been started")
		return
	}
	h.streamSSE(w, r, run.Bus())
}

func (h *ScrapeHandler) streamSSE(w http.ResponseWriter, r *http.Request, bus interfaces.ProgressBus) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	stream, err := bus.Subscribe(r.Context())
	if err != nil {
		if errors.Is(err, events.ErrReaderAttached) {
			WriteError(w, http.StatusConflict, "Another client is already streaming this run")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range stream {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to encode progress event")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			h.logger.Debug().Err(err).Msg("SSE client went away")
			return
		}
		flusher.Flush()
	}
}
