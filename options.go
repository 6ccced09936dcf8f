package agentclient

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Joylan9/agentclient/internal/singleflight"
	"github.com/prometheus/client_golang/prometheus"
)

// WithConfig sets the runtime configuration (base URL, API key, refresh
// and telemetry endpoints).
func WithConfig(cfg RuntimeConfig) Option {
	return func(c *Client) {
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		c.config = cfg
	}
}

// WithBaseURL overrides only the base URL of the current configuration.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.config.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIKey overrides only the API key of the current configuration.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.config.APIKey = apiKey
	}
}

// WithTimeout sets the per-attempt request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithRefreshTimeout bounds the session refresh call. Zero disables the bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if client != nil && c.timeout != 0 && client.Timeout == 0 {
			c.httpClient.Timeout = c.timeout
		}
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithLogger sets the logger for diagnostics and telemetry fallback output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics registered on registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registerer)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTelemetry sets a caller-owned telemetry emitter. The client does not
// close it.
func WithTelemetry(telemetry *Telemetry) Option {
	return func(c *Client) {
		c.telemetry = telemetry
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.requestIDGen = gen
		}
	}
}

// WithRetryPolicy enables transport retries
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithCircuitBreaker enables the circuit breaker
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithDeduplication coalesces concurrent identical GET calls
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = singleflight.New()
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRuntimeConfig()...)
	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)

	if len(errors) > 0 {
		return &APIError{
			Type:    ErrorTypeValidation,
			Status:  http.StatusInternalServerError,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateRuntimeConfig() []string {
	var errors []string

	if c.config.BaseURL == "" {
		errors = append(errors, "base URL must be set")
	} else if !strings.HasPrefix(c.config.BaseURL, "http://") && !strings.HasPrefix(c.config.BaseURL, "https://") {
		errors = append(errors, "base URL must be an http(s) URL")
	}

	if c.config.RefreshEndpoint == "" {
		errors = append(errors, "refresh endpoint must be set")
	}

	return errors
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.refreshTimeout < 0 {
		errors = append(errors, "refresh timeout must not be negative")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}
