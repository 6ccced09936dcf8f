package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Joylan9/agentclient/internal/config"
	"github.com/Joylan9/agentclient/internal/singleflight"
)

const runAgentPath = "/agent/run"

// Client talks to the agent-execution backend. Every call is decorated by
// the request interceptor, failures are normalized into *APIError, and an
// expired session (HTTP 401) triggers a single shared refresh after which
// the affected calls are replayed once. It is safe for concurrent use.
type Client struct {
	config          RuntimeConfig
	httpClient      *http.Client
	timeout         time.Duration
	refreshTimeout  time.Duration
	middleware      []Middleware
	refresh         *refreshCoordinator
	telemetry       *Telemetry
	ownsTelemetry   bool
	metrics         *MetricsCollector
	logger          Logger
	requestIDGen    func() string
	retryPolicy     RetryPolicy
	circuitBreaker  *CircuitBreaker
	dedup           *singleflight.Group
	validationError error
}

// call is one logical request. A fresh *http.Request is built from it for
// every attempt.
type call struct {
	method  string
	path    string
	body    []byte
	retried bool
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		config: config.Default(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		timeout:        60 * time.Second,
		refreshTimeout: 30 * time.Second,
		middleware:     []Middleware{},
		logger:         NopLogger(),
		requestIDGen:   NewRequestID,
	}

	for _, option := range options {
		option(client)
	}

	client.refresh = newRefreshCoordinator(client.refreshTimeout, client.metrics)
	if client.telemetry == nil {
		client.telemetry = NewTelemetry(TelemetryConfig{
			Endpoint:   client.config.TelemetryEndpoint,
			AppVersion: client.config.AppVersion,
			Logger:     client.logger,
			Metrics:    client.metrics,
		})
		client.ownsTelemetry = true
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Config returns the runtime configuration the client was built with.
func (c *Client) Config() RuntimeConfig {
	return c.config
}

// Telemetry returns the client's event emitter.
func (c *Client) Telemetry() *Telemetry {
	return c.telemetry
}

// Refreshing reports whether a session refresh is currently in flight.
func (c *Client) Refreshing() bool {
	return c.refresh.Refreshing()
}

// PendingRefreshWaiters returns the number of calls parked behind the
// in-flight session refresh.
func (c *Client) PendingRefreshWaiters() int {
	return c.refresh.Pending()
}

// Close stops the telemetry worker if the client created it.
func (c *Client) Close() error {
	if c.ownsTelemetry {
		c.telemetry.Close()
	}
	return nil
}

// GetJSON performs a GET against path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON posts in as JSON to path and decodes the body into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Do runs one call through the full lifecycle. in is encoded as JSON when
// non-nil; the response body is decoded into out when out is non-nil.
// Every returned error is an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	cl := &call{method: method, path: path}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return c.fail(cl, "", newAPIError(ErrorTypeRequest, http.StatusInternalServerError, "encode request body: "+err.Error(), err))
		}
		cl.body = body
	}

	raw, err := c.executeShared(ctx, cl)
	if err != nil {
		return err
	}
	return c.decode(cl, raw, out)
}

// executeShared coalesces identical idempotent calls. The shared call runs
// detached from any single caller, bounded by the client timeout; each
// caller waits on its own context and gets its own copy of an error.
func (c *Client) executeShared(ctx context.Context, cl *call) ([]byte, error) {
	if c.dedup == nil || !DefaultDeduplicationCondition(cl.method) {
		return c.execute(ctx, cl)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.dedup.DoChan(deduplicationKey(cl), func() (any, error) {
		sharedCtx, cancel := c.withTimeout(detached)
		defer cancel()
		return c.execute(sharedCtx, cl)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordDeduplicationHit(cl.method, cl.path)
			c.logger.Debug("Deduplication hit", "method", cl.method, "endpoint", cl.path)
		}
		if res.Err != nil {
			if apiErr, ok := AsAPIError(res.Err); ok {
				return nil, apiErr.clone()
			}
			return nil, c.fail(cl, "", normalizeError(res.Err))
		}
		raw, _ := res.Val.([]byte)
		return raw, nil
	case <-ctx.Done():
		return nil, c.fail(cl, "", normalizeError(ctx.Err()))
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// execute issues one logical call and applies the response interceptor:
// success telemetry, 401 routing into the refresh coordinator, and error
// normalization.
func (c *Client) execute(ctx context.Context, cl *call) ([]byte, error) {
	resp, body, requestID, err := c.attempt(ctx, cl)
	if err != nil {
		return nil, c.fail(cl, requestID, normalizeError(err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if strings.Contains(cl.path, runAgentPath) {
			c.telemetry.Track(EventAgentRunSuccess, map[string]any{
				"url":        cl.path,
				"request_id": requestID,
			})
		}
		return body, nil
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.retried {
		return c.handleUnauthorized(ctx, cl, requestID)
	}

	return nil, c.fail(cl, requestID, normalizeResponse(resp.StatusCode, body))
}

// handleUnauthorized marks the call retried, waits for the shared session
// refresh and replays the call once on success.
func (c *Client) handleUnauthorized(ctx context.Context, cl *call, requestID string) ([]byte, error) {
	cl.retried = true

	leader, err := c.refresh.Do(ctx, func(refreshCtx context.Context) error {
		return c.refreshSession(refreshCtx, cl.path)
	})
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.Type == ErrorTypeRefresh {
			// the coordinator hands every waiter the same value
			return nil, apiErr.clone()
		}
		return nil, c.fail(cl, requestID, normalizeError(err))
	}

	c.logger.Debug("Replaying request after session refresh", "requestID", requestID, "endpoint", cl.path, "leader", leader)
	return c.execute(ctx, cl)
}

// refreshSession posts to the refresh endpoint. The refresh call is marked
// retried so a 401 from it fails instead of re-entering the coordinator.
func (c *Client) refreshSession(ctx context.Context, triggerPath string) error {
	c.telemetry.Track(EventSessionRefreshStarted, map[string]any{"url": triggerPath})
	c.logger.Info("Session refresh started", "endpoint", c.config.RefreshEndpoint, "trigger", triggerPath)

	_, err := c.execute(ctx, &call{
		method:  http.MethodPost,
		path:    c.config.RefreshEndpoint,
		retried: true,
	})
	if err != nil {
		c.metrics.RecordRefresh("failure")
		c.telemetry.Track(EventSessionExpiredFinal, map[string]any{"url": triggerPath})
		c.logger.Warn("Session refresh failed", "endpoint", c.config.RefreshEndpoint, "error", err.Error())
		return sessionExpired(err)
	}

	c.metrics.RecordRefresh("success")
	c.logger.Info("Session refresh succeeded", "endpoint", c.config.RefreshEndpoint)
	return nil
}

func sessionExpired(err error) *APIError {
	normalized := normalizeError(err)
	return &APIError{
		Status:    normalized.Status,
		Code:      normalized.Code,
		Message:   normalized.Message,
		Details:   normalized.Details,
		Type:      ErrorTypeRefresh,
		RequestID: normalized.RequestID,
		Method:    normalized.Method,
		URL:       normalized.URL,
		Timestamp: time.Now(),
		Cause:     normalized,
	}
}

// attempt performs the transport round trip, applying the circuit breaker
// and the retry policy. Each retry builds a new request.
func (c *Client) attempt(ctx context.Context, cl *call) (*http.Response, []byte, string, error) {
	for attempt := 0; ; attempt++ {
		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			c.logger.Warn("Circuit breaker open", "endpoint", cl.path, "state", c.circuitBreaker.State())
			return nil, nil, "", newAPIError(ErrorTypeCircuitOpen, http.StatusServiceUnavailable, "circuit breaker is open", nil)
		}

		if attempt > 0 {
			c.metrics.RecordRetry(cl.method, cl.path, attempt)
		}

		resp, body, requestID, err := c.roundTrip(ctx, cl)
		c.recordCircuit(cl, resp, err)

		if c.retryPolicy == nil || ctx.Err() != nil {
			return resp, body, requestID, err
		}
		delay, retry := c.retryPolicy.ShouldRetry(cl.method, resp, err, attempt)
		if !retry {
			return resp, body, requestID, err
		}

		c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", cl.path)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return nil, nil, requestID, sleepErr
		}
	}
}

func (c *Client) recordCircuit(cl *call, resp *http.Response, err error) {
	if c.circuitBreaker == nil {
		return
	}
	if err != nil || (resp != nil && resp.StatusCode >= 500) {
		c.circuitBreaker.RecordFailure()
		c.logger.Debug("Circuit breaker failure recorded", "endpoint", cl.path)
	} else {
		c.circuitBreaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
}

// roundTrip sends a single attempt. The body is read fully and the
// response body replaced by an in-memory copy.
func (c *Client) roundTrip(ctx context.Context, cl *call) (*http.Response, []byte, string, error) {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, nil, "", newAPIError(ErrorTypeRequest, http.StatusInternalServerError, err.Error(), err)
	}

	start := time.Now()
	c.metrics.RecordRequestStart(cl.method, cl.path)
	resp, err := c.executeMiddleware(req)
	c.metrics.RecordRequestEnd(cl.method, cl.path)

	requestID := req.Header.Get(HeaderRequestID)
	if err != nil {
		c.metrics.RecordRequest(cl.method, cl.path, 0, time.Since(start))
		return nil, nil, requestID, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRequest(cl.method, cl.path, resp.StatusCode, time.Since(start))
		return nil, nil, requestID, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	c.metrics.RecordRequest(cl.method, cl.path, resp.StatusCode, time.Since(start))
	return resp, body, requestID, nil
}

func (c *Client) newRequest(ctx context.Context, cl *call) (*http.Request, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	return http.NewRequestWithContext(ctx, cl.method, c.resolveURL(cl.path), body)
}

func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.config.BaseURL + path
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	current := RoundTripper(RoundTripperFunc(c.httpClient.Do))

	chain := append([]Middleware{c.requestInterceptor}, c.middleware...)
	for i := len(chain) - 1; i >= 0; i-- {
		middleware := chain[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func (c *Client) decode(cl *call, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(cl, "", newAPIError(ErrorTypeDecode, http.StatusInternalServerError, "decode response body: "+err.Error(), err))
	}
	return nil
}

// fail stamps request context onto a freshly normalized error, records it
// and emits the api_error event.
func (c *Client) fail(cl *call, requestID string, apiErr *APIError) *APIError {
	if apiErr.RequestID == "" {
		apiErr.RequestID = requestID
	}
	if apiErr.Method == "" {
		apiErr.Method = cl.method
	}
	if apiErr.URL == "" {
		apiErr.URL = cl.path
	}

	c.metrics.RecordError(apiErr.Type, cl.method, cl.path)
	c.telemetry.Track(EventAPIError, map[string]any{
		"status": apiErr.Status,
		"code":   apiErr.Code,
		"url":    cl.path,
	})
	c.logger.Debug("Request failed", "requestID", requestID, "method", cl.method, "endpoint", cl.path, "status", apiErr.Status, "type", apiErr.Type)
	return apiErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
