// Package identity is the thin client for the identity service: credential
// verification for login and account-state checks for session creation.
// Account and role administration live entirely in that service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haventools/premises-manage/core/internal/api"
	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/principal"
)

// Client talks to the identity service. It implements api.Authenticator and
// session.StatusChecker.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the identity service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type authenticateResponse struct {
	Principal principal.Principal `json:"principal"`
}

// Authenticate implements api.Authenticator. Credential verification happens
// inside the identity service; only the resolved principal crosses back.
func (c *Client) Authenticate(ctx context.Context, creds api.Credentials) (principal.Principal, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts/authenticate", bytes.NewReader(body))
	if err != nil {
		return principal.Principal{}, fmt.Errorf("build authenticate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return principal.Principal{}, autherr.New(autherr.CodeUnAuthorized, "invalid credentials")
	default:
		return principal.Principal{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var out authenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return principal.Principal{}, fmt.Errorf("decode authenticate response: %w", err)
	}
	if err := out.Principal.Validate(); err != nil {
		return principal.Principal{}, fmt.Errorf("identity service returned invalid principal: %w", err)
	}
	return out.Principal, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// AccountActive implements session.StatusChecker.
func (c *Client) AccountActive(ctx context.Context, accountID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/"+accountID+"/status", nil)
	if err != nil {
		return false, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch account status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, autherr.New(autherr.CodeNotFound, "account not found")
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode status response: %w", err)
	}
	return out.Status == "ACTIVE", nil
}
