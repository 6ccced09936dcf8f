package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Error types carried in APIError.Type.
const (
	ErrorTypeTransport   = "Transport"
	ErrorTypeHTTP        = "HTTP"
	ErrorTypeRefresh     = "Refresh"
	ErrorTypeCanceled    = "Canceled"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeRequest     = "Request"
	ErrorTypeDecode      = "Decode"
	ErrorTypeValidation  = "Validation"
)

const unknownErrorMessage = "Unknown error occurred"

// Sentinel errors for errors.Is checks against APIError.
var (
	// ErrCircuitOpen matches errors returned while the circuit breaker is open.
	ErrCircuitOpen = &APIError{Type: ErrorTypeCircuitOpen}

	// ErrSessionExpired matches errors returned after a failed session refresh.
	ErrSessionExpired = &APIError{Type: ErrorTypeRefresh}
)

// APIError is the normalized error every operation returns. Callers
// receive it regardless of whether the failure happened in the transport,
// at the backend or during a session refresh.
type APIError struct {
	Status  int             `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`

	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s %d: %s", e.Type, e.Status, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

func (e *APIError) clone() *APIError {
	cp := *e
	return &cp
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *APIError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error Type: %s\n", e.Type)
	fmt.Fprintf(&b, "Status: %d\n", e.Status)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", e.Method)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", e.URL)
	}
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, "Details: %s\n", string(e.Details))
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	return b.String()
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransient reports whether err is a failure that may succeed when
// attempted again: transport failures, 5xx, 429 and an open circuit.
func IsTransient(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch apiErr.Type {
	case ErrorTypeTransport, ErrorTypeCircuitOpen, ErrorTypeTimeout:
		return true
	case ErrorTypeHTTP:
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// normalizeResponse builds an APIError from a non-2xx response body.
// The message prefers the body's detail, then message, over the status text.
func normalizeResponse(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:    status,
		Type:      ErrorTypeHTTP,
		Timestamp: time.Now(),
	}

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		apiErr.Code = parsed.Get("code").String()
		apiErr.Message = messageFromBody(parsed)
		if details := parsed.Get("details"); details.Exists() && details.Type != gjson.Null {
			apiErr.Details = json.RawMessage(details.Raw)
		} else if detail := parsed.Get("detail"); detail.IsArray() || detail.IsObject() {
			apiErr.Details = json.RawMessage(detail.Raw)
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("request failed with status code %d", status)
	}
	return apiErr
}

func messageFromBody(parsed gjson.Result) string {
	detail := parsed.Get("detail")
	switch {
	case detail.Type == gjson.String && detail.String() != "":
		return detail.String()
	case detail.IsArray():
		if msg := detail.Get("0.msg").String(); msg != "" {
			return msg
		}
	case detail.IsObject():
		if msg := detail.Get("message").String(); msg != "" {
			return msg
		}
	}
	if msg := parsed.Get("message"); msg.Type == gjson.String {
		return msg.String()
	}
	return ""
}

// normalizeError converts an error with no backend response into an
// APIError. Existing APIErrors pass through untouched.
func normalizeError(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr
	}

	apiErr := &APIError{
		Status:    http.StatusInternalServerError,
		Type:      ErrorTypeTransport,
		Message:   err.Error(),
		Timestamp: time.Now(),
		Cause:     err,
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		apiErr.Type = ErrorTypeCanceled
	}
	if apiErr.Message == "" {
		apiErr.Message = unknownErrorMessage
	}
	return apiErr
}

func newAPIError(errorType string, status int, message string, cause error) *APIError {
	return &APIError{
		Status:    status,
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}
