package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// FetcherConfig holds static page fetch settings
type FetcherConfig struct {
	UserAgent       string
	MaxAttempts     int
	Backoff         time.Duration
	MaxBodySize     int64
	RequestsPerHost float64
}

// Fetcher downloads HTML pages with retry, per-host pacing and a body size cap
type Fetcher struct {
	client  *http.Client
	retry   *RetryPolicy
	limiter *RateLimiter
	config  FetcherConfig
	logger  arbor.ILogger
}

// NewFetcher creates a fetcher. A nil client uses a default http.Client.
func NewFetcher(config FetcherConfig, client *http.Client, logger arbor.ILogger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 5 * 1024 * 1024
	}
	return &Fetcher{
		client:  client,
		retry:   NewFixedRetryPolicy(config.MaxAttempts, config.Backoff),
		limiter: NewRateLimiter(config.RequestsPerHost),
		config:  config,
		logger:  logger,
	}
}

// FetchDocument fetches url and parses it. timeout bounds each attempt. Server errors and
// transport failures are retried; 4xx bodies are returned as the page.
func (f *Fetcher) FetchDocument(ctx context.Context, url string, timeout time.Duration) (*goquery.Document, string, error) {
	var body []byte

	_, err := f.retry.ExecuteWithRetry(ctx, f.logger, func() (int, error) {
		data, status, err := f.fetchOnce(ctx, url, timeout)
		if err != nil {
			return status, err
		}
		body = data
		return status, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, string(body), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return nil, 0, err
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	// Client error pages are parsed like any other; bot walls often still carry contact details
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		f.logger.Debug().
			Str("url", url).
			Int("status_code", resp.StatusCode).
			Msg("Parsing client error response")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return data, resp.StatusCode, nil
}
