package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/output"
	"github.com/ternarybob/prospector/internal/services/pipeline"
)

type stubDiscovery struct {
	mu     sync.Mutex
	totals []int
}

func (s *stubDiscovery) Discover(_ context.Context, _ string, total int, pub interfaces.ProgressPublisher) ([]models.ListingReference, error) {
	s.mu.Lock()
	s.totals = append(s.totals, total)
	s.mu.Unlock()
	pub.Publish(models.ProgressUpdate("Found 1 listings", 1, total))
	return []models.ListingReference{{Index: 0, URL: "https://maps.example/place/1"}}, nil
}

func (s *stubDiscovery) lastTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[len(s.totals)-1]
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, ref models.ListingReference, _ int, _ interfaces.ProgressPublisher) models.DetailRecord {
	record := models.NewDetailRecord(ref.Index)
	record.Name = "Fade Factory"
	return record
}

type stubAggregator struct{}

func (stubAggregator) Aggregate(_ context.Context, query string, records []models.DetailRecord, _ interfaces.ProgressPublisher) models.Dataset {
	return models.Dataset{SearchQuery: query, Listings: []models.MergedListing{{Detail: records[0]}}}
}

type stubExporter struct{}

func (stubExporter) Write(_ context.Context, _ models.Dataset, pub interfaces.ProgressPublisher) (output.Files, models.RunPayload, error) {
	pub.Publish(models.SuccessEvent("Data saved to a.csv and a.json"))
	return output.Files{CSV: "a.csv", JSON: "a.json"}, models.RunPayload{}, nil
}

type stubDeliverer struct{}

func (stubDeliverer) Deliver(_ context.Context, _, _ string, _ models.RunPayload, pub interfaces.ProgressPublisher) bool {
	pub.Publish(models.WarningEvent("No API endpoint provided. Skipping API submission."))
	return false
}

func newManager(t *testing.T) (*pipeline.Manager, *stubDiscovery) {
	t.Helper()
	logger := arbor.NewLogger()
	discovery := &stubDiscovery{}
	runner := pipeline.NewRunner(pipeline.Stages{
		Discovery:  discovery,
		Extractor:  stubExtractor{},
		Aggregator: stubAggregator{},
		Exporter:   stubExporter{},
		Deliverer:  stubDeliverer{},
	}, logger)
	manager := pipeline.NewManager(runner, nil, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return manager, discovery
}

func pipelineConfig() common.PipelineConfig {
	return common.PipelineConfig{DefaultSearchQuery: "barber in Berlin", DefaultTotalResults: 1000}
}

func readSSE(t *testing.T, body io.Reader) []models.ProgressEvent {
	t.Helper()
	var events []models.ProgressEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event models.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestScrapeHandler_StreamsRunUntilComplete(t *testing.T) {
	manager, discovery := newManager(t)
	h := NewScrapeHandler(manager, pipelineConfig(), common.DeliveryConfig{}, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(h.ScrapeHandler))
	defer server.Close()

	resp, err := http.Get(server.URL + "/scrape?search_query=barber%20in%20Hamburg&total_results=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, "Starting scraper for 'barber in Hamburg' with 2 results", events[0].Message)
	assert.Equal(t, models.EventComplete, events[len(events)-1].Kind)
	assert.Equal(t, 2, discovery.lastTotal())

	var sawProgress bool
	for _, e := range events {
		if e.Kind == models.EventProgress {
			sawProgress = true
			assert.Equal(t, 1, e.Current)
		}
	}
	assert.True(t, sawProgress)
}

func TestScrapeHandler_Defaults(t *testing.T) {
	manager, discovery := newManager(t)
	h := NewScrapeHandler(manager, pipelineConfig(), common.DeliveryConfig{}, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(h.ScrapeHandler))
	defer server.Close()

	resp, err := http.Get(server.URL + "/scrape")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, "Starting scraper for 'barber in Berlin' with 1000 results", events[0].Message)
	assert.Equal(t, 1000, discovery.lastTotal())
}

func TestScrapeHandler_BadTotal(t *testing.T) {
	manager, _ := newManager(t)
	h := NewScrapeHandler(manager, pipelineConfig(), common.DeliveryConfig{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ScrapeHandler(rec, httptest.NewRequest(http.MethodGet, "/scrape?total_results=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ScrapeHandler(rec, httptest.NewRequest(http.MethodGet, "/scrape?total_results=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ScrapeHandler(rec, httptest.NewRequest(http.MethodPost, "/scrape", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamHandler_NoRun(t *testing.T) {
	manager, _ := newManager(t)
	h := NewScrapeHandler(manager, pipelineConfig(), common.DeliveryConfig{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.StreamHandler(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamHandler_AttachesToCurrentRun(t *testing.T) {
	manager, _ := newManager(t)
	_, err := manager.Start(pipeline.Request{SearchQuery: "barber", TotalResults: 1})
	require.NoError(t, err)

	h := NewScrapeHandler(manager, pipelineConfig(), common.DeliveryConfig{}, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(h.StreamHandler))
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, "Starting scraper for 'barber' with 1 results", events[0].Message)
	assert.Equal(t, models.EventComplete, events[len(events)-1].Kind)
}

func TestWebSocketHandler_StreamsCurrentRun(t *testing.T) {
	manager, _ := newManager(t)
	_, err := manager.Start(pipeline.Request{SearchQuery: "barber", TotalResults: 1})
	require.NoError(t, err)

	h := NewWebSocketHandler(manager, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []models.ProgressEvent
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var event models.ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		events = append(events, event)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, models.EventComplete, events[len(events)-1].Kind)
}

func TestDownloadHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "business_data_x.csv"), []byte("Names\nFade\n"), 0644))
	sink := output.NewSink(common.OutputConfig{Dir: dir}, nil, arbor.NewLogger())
	h := NewDownloadHandler(sink, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest(http.MethodGet, "/download/business_data_x.csv", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "business_data_x.csv")
	assert.Equal(t, "Names\nFade\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest(http.MethodGet, "/download/missing.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "error", "message": "File missing.csv not found"}, body)
}

func TestRunsHandler(t *testing.T) {
	manager, _ := newManager(t)
	h := NewRunsHandler(manager, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	run, err := manager.Start(pipeline.Request{SearchQuery: "barber", TotalResults: 1})
	require.NoError(t, err)
	<-run.Done()

	rec = httptest.NewRecorder()
	h.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID, nil))
	// Finished runs without a store are no longer tracked
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ListRunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ListRunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHandler_Health(t *testing.T) {
	h := NewAPIHandler(nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, common.GetVersion(), body["version"])
	assert.NotContains(t, body, "current_run")
}

func TestAPIHandler_HealthShowsLatestRun(t *testing.T) {
	manager, _ := newManager(t)
	run, err := manager.Start(pipeline.Request{SearchQuery: "barber in Hamburg", TotalResults: 1})
	require.NoError(t, err)
	<-run.Done()

	h := NewAPIHandler(manager, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		CurrentRun *models.RunRecord `json:"current_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.CurrentRun)
	assert.Equal(t, run.ID, body.CurrentRun.ID)
	assert.Equal(t, "barber in Hamburg", body.CurrentRun.SearchQuery)
	assert.Equal(t, models.RunStatusCompleted, body.CurrentRun.Status)
	assert.Equal(t, 1, body.CurrentRun.Discovered)
}
