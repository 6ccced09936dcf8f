package agentclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Joylan9/agentclient/internal/backoff"
)

// RetryPolicy decides whether a transport attempt is repeated and after
// what delay. It is consulted once per attempt; resp is nil when err is set.
//
// Transport retries are separate from the session refresh replay: a call
// that is retried here can still be replayed once after a refresh.
type RetryPolicy interface {
	ShouldRetry(method string, resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects the delay algorithm of DefaultRetryPolicy.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays geometrically with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter draws delays between the initial backoff and a
	// growing upper bound.
	DecorrelatedJitter
)

// DefaultRetryPolicy retries idempotent calls on transport failures and
// on 502, 503 and 504, honoring Retry-After when the backend sends it.
type DefaultRetryPolicy struct {
	maxRetries   int
	params       backoff.Params
	strategy     backoff.Strategy
	isIdempotent func(method string) bool
}

// NewDefaultRetryPolicy creates a policy using exponential jitter.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates a policy with a specific backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		maxRetries: maxRetries,
		params: backoff.Params{
			Initial:    initialBackoff,
			Max:        maxBackoff,
			Multiplier: multiplier,
			Jitter:     jitter,
		},
		strategy:     backoff.Exponential{},
		isIdempotent: DefaultIsIdempotent,
	}
	if strategy == DecorrelatedJitter {
		policy.strategy = backoff.Decorrelated{}
	}
	return policy
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(method string, resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries || !p.isIdempotent(method) {
		return 0, false
	}

	var delay time.Duration
	switch {
	case err != nil:
		// transport failures are retryable unless the caller gave up
		if apiErr, ok := AsAPIError(err); ok && apiErr.Type != ErrorTypeTransport {
			return 0, false
		}
	case resp != nil && retryableStatus(resp.StatusCode):
		delay = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		return 0, false
	}

	if delay == 0 {
		delay = p.strategy.Delay(attempt, p.params)
	}
	return delay, true
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// DefaultIsIdempotent returns true for idempotent HTTP methods.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
