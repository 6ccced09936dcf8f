package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok","model":"m","version":"1"}`))
		case "/ready":
			_, _ = w.Write([]byte(`{"status":"ready","checks":{"db":"ready"}}`))
		case "/agent/run":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "did " + req["goal"], "request_id": "rid"})
		case "/traces/rid":
			_, _ = w.Write([]byte(`{"_id":"t","request_id":"rid","status":"completed","steps":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func configFor(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"VITE_API_BASE":"`+baseURL+`"}`), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := Execute(root)
	return stdout.String(), stderr.String(), err
}

func TestHealthCommand(t *testing.T) {
	server := backend(t)
	out, _, err := execute(t, "health", "--config", configFor(t, server.URL))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","model":"m","version":"1"}`, out)
}

func TestRunCommand(t *testing.T) {
	server := backend(t)
	out, _, err := execute(t, "run", "--config", configFor(t, server.URL), "--goal", "laundry", "--session", "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"did laundry","request_id":"rid"}`, out)
}

func TestRunCommandRequiresGoal(t *testing.T) {
	_, errOut, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, errOut, `required flag(s) "goal" not set`)
}

func TestUnknownCommandIsPrinted(t *testing.T) {
	_, errOut, err := execute(t, "bogus")
	require.Error(t, err)
	assert.Contains(t, errOut, "unknown command")
}

func TestTraceWaitCommand(t *testing.T) {
	server := backend(t)
	out, _, err := execute(t, "trace", "rid", "--wait", "--interval", "1ms", "--config", configFor(t, server.URL))
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)
}

func TestStatusCommand(t *testing.T) {
	server := backend(t)
	out, _, err := execute(t, "status", "--config", configFor(t, server.URL))
	require.NoError(t, err)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "ok", status["api"])
	assert.Equal(t, "ok", status["readiness"])
}

func TestFailurePrintsNormalizedError(t *testing.T) {
	server := backend(t)
	out, errOut, err := execute(t, "agents", "--config", configFor(t, server.URL))
	require.Error(t, err)
	assert.Empty(t, out)

	var apiErr map[string]any
	require.NoError(t, json.Unmarshal([]byte(errOut), &apiErr))
	assert.EqualValues(t, 404, apiErr["status"])
	assert.Equal(t, "Not Found", apiErr["message"])
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentclient")
}
