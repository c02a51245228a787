package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

const maxResponseExcerpt = 512

// Deliverer submits a run payload to an external endpoint
type Deliverer struct {
	client *http.Client
	logger arbor.ILogger
}

func NewDeliverer(timeout time.Duration, logger arbor.ILogger) *Deliverer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deliverer{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Deliver POSTs the payload as JSON, with a bearer token when apiKey is set.
// Failures are reported on pub and never undo persisted exports.
func (d *Deliverer) Deliver(ctx context.Context, endpoint, apiKey string, payload models.RunPayload, pub interfaces.ProgressPublisher) bool {
	if endpoint == "" {
		pub.Publish(models.WarningEvent("No API endpoint provided. Skipping API submission."))
		return false
	}

	pub.Publish(models.InfoEvent(fmt.Sprintf("Sending data to API endpoint: %s", endpoint)))

	if err := d.send(ctx, endpoint, apiKey, payload, pub); err != nil {
		d.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Delivery failed")
		pub.Publish(models.ErrorEvent("delivery", "Failed to send data to API"))
		return false
	}

	pub.Publish(models.SuccessEvent("Data successfully sent to API"))
	return true
}

func (d *Deliverer) send(ctx context.Context, endpoint, apiKey string, payload models.RunPayload, pub interfaces.ProgressPublisher) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		pub.Publish(models.ErrorEvent("delivery", fmt.Sprintf("Error sending data to API: %v", err)))
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		pub.Publish(models.ErrorEvent("delivery", fmt.Sprintf("Error sending data to API: %v", err)))
		return fmt.Errorf("post payload: %w", err)
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pub.Publish(models.ErrorEvent("delivery",
			fmt.Sprintf("API request failed with status code: %d, Response: %s", resp.StatusCode, excerpt)))
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}

	pub.Publish(models.SuccessEvent(fmt.Sprintf("Data successfully sent to API. Response: %d", resp.StatusCode)))
	d.logger.Info().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("Payload delivered")
	return nil
}
