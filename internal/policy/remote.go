package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/haventools/premises-manage/core/internal/autherr"
)

// RemoteDecider calls an OPA-style policy service over HTTP. Timeouts and
// transport failures fail closed: the verdict is deny, surfaced as
// PolicyEvaluationUnavailable so operators can tell outage from denial.
// Decisions guard mutating actions, so they are never retried.
type RemoteDecider struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewRemoteDecider creates a RemoteDecider for the policy service at baseURL.
func NewRemoteDecider(baseURL string, timeout time.Duration, logger *slog.Logger) *RemoteDecider {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &RemoteDecider{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type evaluateRequest struct {
	Input Input `json:"input"`
}

type evaluateResponse struct {
	Result bool `json:"result"`
}

// Evaluate implements Decider.
func (d *RemoteDecider) Evaluate(ctx context.Context, input Input) (bool, error) {
	body, err := json.Marshal(evaluateRequest{Input: input})
	if err != nil {
		return false, fmt.Errorf("marshal policy input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/policy/evaluate", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		d.logger.Error("policy service unreachable, denying",
			"resource_type", input.Resource.Type, "resource_id", input.Resource.ID, "error", err)
		return false, autherr.Wrap(autherr.CodePolicyUnavailable, "policy evaluation unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Error("policy service returned non-OK, denying",
			"status", resp.StatusCode, "resource_id", input.Resource.ID)
		return false, autherr.Wrap(autherr.CodePolicyUnavailable,
			"policy evaluation unavailable",
			fmt.Errorf("policy service returned %d", resp.StatusCode))
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, autherr.Wrap(autherr.CodePolicyUnavailable, "policy evaluation unavailable", err)
	}

	return out.Result, nil
}
