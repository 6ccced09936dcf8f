// Package agentclient is a client for an agent-execution backend: health
// and readiness probes, agent runs, traces, agents and runs.
//
// Every call goes through the same lifecycle:
//
//   - the request interceptor sets X-API-KEY (when configured), a fresh
//     X-Request-ID per attempt and X-App-Version
//   - user middleware wraps the transport
//   - a 401 on a call that has not been replayed yet triggers a session
//     refresh; only one refresh runs per client, concurrent 401s queue
//     behind it and every call is replayed at most once
//   - any other failure becomes an *APIError with status, code, message
//     and details taken from the backend body when present
//   - telemetry events (agent_run_success, api_error, refresh lifecycle)
//     are emitted without blocking the caller
//
// Typical usage:
//
//	cfg, _ := agentclient.LoadConfig("config.yaml", ".env")
//	client := agentclient.New(
//	    agentclient.WithConfig(cfg),
//	    agentclient.WithLogger(agentclient.NewZapLogger(zapLogger)),
//	    agentclient.WithMetrics(prometheus.DefaultRegisterer),
//	)
//	defer client.Close()
//	resp, err := client.RunAgent(ctx, agentclient.AgentRequest{SessionID: "s1", Goal: "summarize"})
//
// Transport retries, a circuit breaker and coalescing of identical GETs are
// available as options and are off by default.
package agentclient
