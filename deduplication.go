package agentclient

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// DefaultDeduplicationCondition enables coalescing for safe idempotent methods.
func DefaultDeduplicationCondition(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// deduplicationKey identifies identical calls: method, path and body.
func deduplicationKey(cl *call) string {
	key := cl.method + " " + cl.path
	if len(cl.body) > 0 {
		sum := sha256.Sum256(cl.body)
		key += " " + hex.EncodeToString(sum[:8])
	}
	return key
}
