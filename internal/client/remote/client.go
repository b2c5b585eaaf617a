// Package remote implements the HTTP client for the remote signature
// authority: batch submit, roster fetch and the lightweight health probe
// consumed by the connectivity monitor.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/safetrack/fieldsign/internal/common"
)

const (
	submitPath  = "/api/v1/sign-requests"
	workersPath = "/api/v1/workers"
	healthPath  = "/healthz"
)

// Client talks to the remote authority. Transport-level failures (connection
// errors, timeouts, non-success statuses) are wrapped with
// common.ErrorTransport; an explicit rejection comes back as a SubmitResult
// with Success false, not as an error.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for baseURL. token, when non-empty, is sent as a
// bearer token on API calls. timeout bounds every submit and roster call; an
// unbounded hang would stall the sequential sync pipeline.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SubmitRequest sends one whole batch and returns the remote's adjudication.
func (c *Client) SubmitRequest(ctx context.Context, payload SubmitPayload) (*SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode submit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: submit: %v", common.ErrorTransport, err)
	}
	defer resp.Body.Close()

	// 4xx/5xx with a decodable body is an explicit rejection; anything else
	// is a transport failure.
	var result SubmitResult
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read submit response: %v", common.ErrorTransport, err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: submit failed: %s", common.ErrorTransport, resp.Status)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: submit failed: %s", common.ErrorTransport, resp.Status)
	}

	return &result, nil
}

// FetchWorkers retrieves the enrolled-worker roster for the local cache.
func (c *Client) FetchWorkers(ctx context.Context) ([]Worker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+workersPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build workers request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch workers: %v", common.ErrorTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch workers: %s", common.ErrorTransport, resp.Status)
	}

	var workers []Worker
	if err := json.NewDecoder(resp.Body).Decode(&workers); err != nil {
		return nil, fmt.Errorf("%w: decode workers: %v", common.ErrorTransport, err)
	}

	return workers, nil
}

// Health issues the reachability probe. Any outcome other than a 2xx within
// the caller's deadline is a failure.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health: %v", common.ErrorTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: health: %s", common.ErrorTransport, resp.Status)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
