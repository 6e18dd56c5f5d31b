package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"uniquify-worker/pkg/models"
)

// ReportClient pushes batch progress and manifests to a report endpoint.
type ReportClient struct {
	baseURL    string
	workerID   string
	httpClient *http.Client
}

// Options tune retry behaviour. Zero values take the defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewReportClient creates an HTTP client with retries.
func NewReportClient(baseURL, workerID string, opts Options, logger zerolog.Logger) *ReportClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	if opts.RetryMax > 0 {
		retryClient.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.Logger = leveledLogger{logger}

	return &ReportClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workerID:   workerID,
		httpClient: retryClient.StandardClient(),
	}
}

// ReportStateError means the endpoint no longer knows the batch.
type ReportStateError struct {
	StatusCode int
}

func (e *ReportStateError) Error() string {
	return fmt.Sprintf("report state error: status %d", e.StatusCode)
}

func (c *ReportClient) doRequest(ctx context.Context, method, path string, payload any) error {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-ID", c.workerID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &ReportStateError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return fmt.Errorf("API returned error status: %d", resp.StatusCode)
	}
	return nil
}

// UpdateProgress reports an in-flight batch.
func (c *ReportClient) UpdateProgress(ctx context.Context, payload models.ProgressPayload) error {
	payload.WorkerID = c.workerID
	return c.doRequest(ctx, http.MethodPatch, "/api/v1/batches/"+payload.BatchID, payload)
}

// PublishManifest hands the finished manifest over.
func (c *ReportClient) PublishManifest(ctx context.Context, m *models.BatchManifest) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/batches/"+m.BatchID+"/manifest", m); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// leveledLogger routes retryablehttp's logging into zerolog.
type leveledLogger struct {
	l zerolog.Logger
}

func (z leveledLogger) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }
func (z leveledLogger) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveledLogger) Info(msg string, kv ...any)  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Debug(msg string, kv ...any) { z.l.Trace().Fields(kv).Msg(msg) }
