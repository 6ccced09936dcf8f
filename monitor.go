package agentclient

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ComponentStatus is the coarse health of one part of the system.
type ComponentStatus string

const (
	StatusOK       ComponentStatus = "ok"
	StatusDegraded ComponentStatus = "degraded"
	StatusDown     ComponentStatus = "down"
)

// SystemStatus summarizes backend health for status displays.
type SystemStatus struct {
	API       ComponentStatus   `json:"api"`
	LLM       ComponentStatus   `json:"llm"`
	Readiness ComponentStatus   `json:"readiness"`
	Checks    map[string]string `json:"checks,omitempty"`
	Model     string            `json:"model,omitempty"`
	Version   string            `json:"version,omitempty"`
	Latency   time.Duration     `json:"latency"`
}

// SystemStatus probes /health and /ready concurrently. Probe failures are
// folded into the result rather than returned.
func (c *Client) SystemStatus(ctx context.Context) SystemStatus {
	start := time.Now()

	var (
		health       *HealthStatus
		healthErr    error
		readiness    *ReadinessStatus
		readinessErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		health, healthErr = c.Health(ctx)
		return nil
	})
	g.Go(func() error {
		readiness, readinessErr = c.Ready(ctx)
		return nil
	})
	_ = g.Wait()

	status := SystemStatus{
		API:       StatusOK,
		LLM:       StatusOK,
		Readiness: StatusOK,
		Latency:   time.Since(start),
	}

	if healthErr != nil {
		status.API = StatusDown
		status.LLM = StatusDown
	} else {
		status.Model = health.Model
		status.Version = health.Version
		if health.Status != string(StatusOK) {
			status.API = StatusDegraded
		}
		if health.Model == "" {
			status.LLM = StatusDegraded
		}
	}

	switch {
	case readinessErr != nil:
		status.Readiness = StatusDown
	case readiness.Status != "ready":
		status.Readiness = StatusDegraded
		status.Checks = readiness.Checks
		if status.API == StatusOK {
			status.API = StatusDegraded
		}
	default:
		status.Checks = readiness.Checks
	}

	c.logger.Debug("System status probed", "api", status.API, "llm", status.LLM, "readiness", status.Readiness, "latency", status.Latency)
	return status
}
