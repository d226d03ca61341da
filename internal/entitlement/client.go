package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	maxFetchAttempts = 3
	baseBackoff      = 100 * time.Millisecond
)

// Client fetches entitlements from the identity authority over HTTP.
// Fetches are idempotent reads, so transport failures are retried a bounded
// number of times with backoff. Non-idempotent calls never get this.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the identity authority at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// Entitlements implements Authority.
func (c *Client) Entitlements(ctx context.Context, premisesID, roleID string, resourceType ResourceType, action ActionType) ([]Entitlement, error) {
	q := url.Values{}
	q.Set("premisesId", premisesID)
	q.Set("roleId", roleID)
	q.Set("resourceType", string(resourceType))
	q.Set("action", string(action))
	endpoint := c.baseURL + "/entitlements?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		rows, err := c.fetch(ctx, endpoint)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("entitlement fetch failed, retrying",
			"attempt", attempt+1, "premises_id", premisesID, "error", err)
	}

	return nil, fmt.Errorf("identity authority unavailable after %d attempts: %w", maxFetchAttempts, lastErr)
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]Entitlement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch entitlements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity authority returned %d: %s", resp.StatusCode, body)
	}

	var rows []Entitlement
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode entitlements: %w", err)
	}
	return rows, nil
}
