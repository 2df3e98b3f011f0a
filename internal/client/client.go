// Package client talks to a running txwatcher over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"txn-anomaly-alerts/internal/service"
)

const (
	ingestPath    = "/receive_transaction"
	dashboardPath = "/dashboard_data"
)

// Options parameterise the HTTP client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Event is one outgoing transaction-count event.
type Event struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Count     int64  `json:"count"`
}

// Client posts events and reads dashboard data.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// New constructs a client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:5000"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "ingest_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Send posts ev to the ingest endpoint and decodes the verdict.
func (c *Client) Send(ctx context.Context, ev Event) (service.IngestResult, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return service.IngestResult{}, fmt.Errorf("marshal event: %w", err)
	}

	var result service.IngestResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+ingestPath, bytes.NewReader(body), &result); err != nil {
		return service.IngestResult{}, err
	}
	return result, nil
}

// Dashboard fetches the aggregated report for the last windowHours.
func (c *Client) Dashboard(ctx context.Context, windowHours int) (service.Report, error) {
	endpoint := c.baseURL + dashboardPath
	if windowHours > 0 {
		endpoint += "?" + url.Values{"window_hours": {strconv.Itoa(windowHours)}}.Encode()
	}

	var report service.Report
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &report); err != nil {
		return service.Report{}, err
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "txwatcher-client/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPError is a non-200 answer from the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("txwatcher error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("txwatcher error (%d): %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return &HTTPError{StatusCode: status, Message: apiErr.Error}
		}
	}
	return &HTTPError{StatusCode: status, Message: strings.TrimSpace(string(payload))}
}
