package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler streams the latest run's progress events, one JSON text message each
type WebSocketHandler struct {
	runs   RunManager
	logger arbor.ILogger
}

func NewWebSocketHandler(runs RunManager, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		runs:   runs,
		logger: logger,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read loop only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("WebSocket read error")
				}
				return
			}
		}
	}()

	run, err := h.runs.Current()
	if err != nil {
		h.write(conn, models.ErrorEvent("stream", "No scrape run has been started"))
		h.close(conn)
		return
	}

	stream, err := run.Bus().Subscribe(ctx)
	if err != nil {
		h.write(conn, models.ErrorEvent("stream", err.Error()))
		h.close(conn)
		return
	}

	h.logger.Debug().Str("run_id", run.ID).Msg("WebSocket client attached to run")

	for event := range stream {
		if err := h.write(conn, event); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket client went away")
			cancel()
			for range stream {
			}
			return
		}
	}
	h.close(conn)
}

func (h *WebSocketHandler) write(conn *websocket.Conn, event models.ProgressEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}

func (h *WebSocketHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
