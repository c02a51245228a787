package output

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
)

func messages(events []models.ProgressEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Message)
	}
	return out
}

func TestDeliver_PostsPayloadWithBearer(t *testing.T) {
	var gotAuth, gotType string
	var got models.RunPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	d := NewDeliverer(time.Second, arbor.NewLogger())
	ok := d.Deliver(context.Background(), server.URL, "secret", models.RunPayload{SearchQuery: "barber", ListingsCount: 3}, pub)

	assert.True(t, ok)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "barber", got.SearchQuery)
	assert.Equal(t, 3, got.ListingsCount)

	msgs := messages(pub.events)
	assert.Contains(t, msgs, "Sending data to API endpoint: "+server.URL)
	assert.Contains(t, msgs, "Data successfully sent to API")
	assert.Empty(t, pub.ofKind(models.EventError))
}

func TestDeliver_NoKeyNoAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	ok := NewDeliverer(time.Second, arbor.NewLogger()).
		Deliver(context.Background(), server.URL, "", models.RunPayload{}, &recordingPublisher{})

	assert.True(t, ok)
	assert.Empty(t, gotAuth)
}

func TestDeliver_RejectedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	ok := NewDeliverer(time.Second, arbor.NewLogger()).
		Deliver(context.Background(), server.URL, "", models.RunPayload{}, pub)

	assert.False(t, ok)
	errs := pub.ofKind(models.EventError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Message, "API request failed with status code: 400")
	assert.Contains(t, errs[0].Message, "bad payload")
	assert.Equal(t, "Failed to send data to API", errs[1].Message)
	assert.Equal(t, "delivery", errs[1].Step)
}

func TestDeliver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	pub := &recordingPublisher{}
	ok := NewDeliverer(time.Second, arbor.NewLogger()).
		Deliver(context.Background(), url, "", models.RunPayload{}, pub)

	assert.False(t, ok)
	assert.Contains(t, messages(pub.events), "Failed to send data to API")
}

func TestDeliver_NoEndpoint(t *testing.T) {
	pub := &recordingPublisher{}
	ok := NewDeliverer(0, arbor.NewLogger()).Deliver(context.Background(), "", "", models.RunPayload{}, pub)

	assert.False(t, ok)
	warnings := pub.ofKind(models.EventWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "No API endpoint provided. Skipping API submission.", warnings[0].Message)
}
