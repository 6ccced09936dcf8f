package agentclient

import (
	"encoding/json"
	"net/http"
	"time"
)

// Middleware wraps a single request attempt. Middleware runs after the
// built-in request interceptor, so headers such as X-Request-ID are
// already set when it is called.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
}

// ReadinessStatus is the payload of GET /ready. Status is "ready" or
// "degraded"; each check is "ready" or "unavailable".
type ReadinessStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// AgentRequest is the body of POST /agent/run.
type AgentRequest struct {
	SessionID string `json:"session_id"`
	Goal      string `json:"goal"`
}

// AgentResponse is the result of an agent run.
type AgentResponse struct {
	Result    string `json:"result"`
	RequestID string `json:"request_id,omitempty"`
}

// Trace is the execution trace of one agent run.
type Trace struct {
	ID        string            `json:"_id"`
	RequestID string            `json:"request_id"`
	Status    string            `json:"status,omitempty"`
	Steps     []json.RawMessage `json:"steps"`
	Metadata  map[string]any    `json:"metadata"`
}

// Trace statuses that end polling.
const (
	TraceStatusCompleted = "completed"
	TraceStatusFailed    = "failed"
)

// Agent is one entry of GET /api/agents.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Run is one entry of GET /api/runs.
type Run struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// FeatureFlags maps flag names to their enabled state.
type FeatureFlags map[string]bool

// Enabled reports whether the named flag is on. Unknown flags are off.
func (f FeatureFlags) Enabled(name string) bool {
	return f[name]
}
