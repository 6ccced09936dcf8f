package agentclient

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Headers set on every outbound request.
const (
	HeaderAPIKey     = "X-API-KEY"
	HeaderRequestID  = "X-Request-ID"
	HeaderAppVersion = "X-App-Version"
)

var fallbackSeq atomic.Uint64

// NewRequestID returns a random UUID. If the system random source fails it
// falls back to a millisecond timestamp with a process-wide sequence and a
// random suffix, which stays unique within the same millisecond.
func NewRequestID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return fallbackRequestID(time.Now())
}

func fallbackRequestID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" +
		strconv.FormatUint(fallbackSeq.Add(1), 36) + "-" +
		strconv.FormatUint(rand.Uint64()&0xffffffff, 36)
}

// requestInterceptor decorates each attempt with the API key, a fresh
// correlation ID and the app version.
func (c *Client) requestInterceptor(req *http.Request, next RoundTripper) (*http.Response, error) {
	if c.config.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.config.APIKey)
	} else {
		req.Header.Del(HeaderAPIKey)
	}
	req.Header.Set(HeaderRequestID, c.requestIDGen())
	if c.config.AppVersion != "" {
		req.Header.Set(HeaderAppVersion, c.config.AppVersion)
	}
	if req.Body != nil && req.Body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent())
	}
	return next.RoundTrip(req)
}
