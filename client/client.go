// Package client is the page-context side of the messaging contract: a thin
// HTTP client for the background counter daemon.
//
// Every call degrades to a silent no-op when the daemon is unreachable. An
// error escaping into the host page could visibly break it, so nothing here
// ever returns one to page-side callers beyond the increment result.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client talks to the background daemon.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	quotaMu    sync.Mutex
	quotaKnown bool
	quotaMet   bool
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type incrementResponse struct {
	Success  bool `json:"success"`
	NewCount int  `json:"newCount"`
}

// Increment requests one counter increment. It satisfies the tracker's
// Counter interface; the tracker treats any error as a dropped count, so a
// dead daemon costs an increment, never a page breakage.
func (c *Client) Increment(ctx context.Context) (int, error) {
	resp, err := c.post(ctx, "/increment", nil)
	if err != nil {
		c.logger.Debug("Increment dropped, daemon unavailable", "error", err)
		return 0, fmt.Errorf("increment: %w", err)
	}
	defer c.closeBody(resp)

	var out incrementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Debug("Increment response unusable", "error", err)
		return 0, fmt.Errorf("decode increment response: %w", err)
	}
	if !out.Success {
		return 0, errors.New("increment rejected")
	}
	return out.NewCount, nil
}

// LeftTab reports that the page went hidden. Fire and forget.
func (c *Client) LeftTab(ctx context.Context) {
	resp, err := c.post(ctx, "/left-tab", nil)
	if err != nil {
		c.logger.Debug("Left-tab signal dropped, daemon unavailable", "error", err)
		return
	}
	c.closeBody(resp)
}

// Reset zeroes the counter. Fire and forget.
func (c *Client) Reset(ctx context.Context) {
	resp, err := c.post(ctx, "/reset", nil)
	if err != nil {
		c.logger.Debug("Reset dropped, daemon unavailable", "error", err)
		return
	}
	c.closeBody(resp)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.closeBody(resp)
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.closeBody(resp)
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("Failed to close response body", "error", err)
	}
}
