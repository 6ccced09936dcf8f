package agentclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Health reports backend liveness and the model it serves.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.GetJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports backend readiness and its dependency checks.
func (c *Client) Ready(ctx context.Context) (*ReadinessStatus, error) {
	var out ReadinessStatus
	if err := c.GetJSON(ctx, "/ready", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunAgent submits a goal for the given session and waits for the result.
func (c *Client) RunAgent(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	var out AgentResponse
	if err := c.PostJSON(ctx, runAgentPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrace fetches the trace recorded for a request ID.
func (c *Client) GetTrace(ctx context.Context, id string) (*Trace, error) {
	var out Trace
	if err := c.GetJSON(ctx, "/traces/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents returns the registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if err := c.GetJSON(ctx, "/api/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRuns returns recent runs.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var out []Run
	if err := c.GetJSON(ctx, "/api/runs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeatureFlags fetches the flag set from the configured endpoint.
func (c *Client) FeatureFlags(ctx context.Context) (FeatureFlags, error) {
	var out FeatureFlags
	if err := c.GetJSON(ctx, c.config.FeatureFlagsEndpoint, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = FeatureFlags{}
	}
	return out, nil
}

// PollTrace fetches the trace every interval until its status is completed
// or failed. Failed fetches are retried until maxAttempts is exhausted.
func (c *Client) PollTrace(ctx context.Context, id string, interval time.Duration, maxAttempts int) (*Trace, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		trace, err := c.GetTrace(ctx, id)
		switch {
		case err == nil && (trace.Status == TraceStatusCompleted || trace.Status == TraceStatusFailed):
			return trace, nil
		case err != nil:
			lastErr = err
			if apiErr, ok := AsAPIError(err); ok && apiErr.Type == ErrorTypeCanceled {
				return nil, err
			}
		}

		if attempt < maxAttempts-1 {
			if err := sleepContext(ctx, interval); err != nil {
				return nil, c.fail(&call{method: http.MethodGet, path: "/traces/" + id}, "", normalizeError(err))
			}
		}
	}

	timeoutErr := newAPIError(ErrorTypeTimeout, http.StatusRequestTimeout,
		fmt.Sprintf("polling timeout: trace %s not finished after %d attempts", id, maxAttempts), lastErr)
	timeoutErr.Method = http.MethodGet
	timeoutErr.URL = "/traces/" + id
	return nil, timeoutErr
}
