package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/app"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/handlers"
)

func newTestServer() *Server {
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	application := &app.App{
		Config:          cfg,
		Logger:          logger,
		APIHandler:      handlers.NewAPIHandler(nil, logger),
		ScrapeHandler:   handlers.NewScrapeHandler(nil, cfg.Pipeline, cfg.Delivery, logger),
		WSHandler:       handlers.NewWebSocketHandler(nil, logger),
		DownloadHandler: handlers.NewDownloadHandler(nil, logger),
		RunsHandler:     handlers.NewRunsHandler(nil, logger),
	}
	return New(application)
}

func TestRoutes_System(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/run_1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/scrape", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer()
	handler := s.withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scrape", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, rec.Body.String())
}

func TestLoggingMiddlewareKeepsFlusher(t *testing.T) {
	s := newTestServer()
	var flushable bool
	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher, ok := w.(http.Flusher)
		flushable = ok
		if ok {
			flusher.Flush()
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, flushable)
	assert.True(t, rec.Flushed)
}

func TestContextOf(t *testing.T) {
	cases := []struct {
		target string
		stream bool
		key    string
		value  string
	}{
		{"/scrape?search_query=barber+in+Hamburg&total_results=5", true, "search_query", "barber in Hamburg"},
		{"/stream", true, "search_query", ""},
		{"/ws", true, "search_query", ""},
		{"/api/runs/run_42", false, "run_id", "run_42"},
		{"/download/business_data_20240309-140507.csv", false, "file", "business_data_20240309-140507.csv"},
		{"/api/health", false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			rc := contextOf(httptest.NewRequest(http.MethodGet, tc.target, nil))
			assert.Equal(t, tc.stream, rc.stream)
			assert.Equal(t, tc.key, rc.key)
			assert.Equal(t, tc.value, rc.value)
		})
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusAccepted)
	_, err := rw.Write([]byte("data: {}\n\n"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.Equal(t, int64(10), rw.written)
}

func TestShutdownClosesStreams(t *testing.T) {
	s := newTestServer()
	streamCtx := s.server.BaseContext(nil)
	require.NoError(t, streamCtx.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case <-streamCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("stream context still open after shutdown")
	}
}
