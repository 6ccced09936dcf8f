package agentclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// EventName identifies a telemetry event kind.
type EventName string

const (
	EventAgentRunSuccess       EventName = "agent_run_success"
	EventSessionRefreshStarted EventName = "session_refresh_started"
	EventSessionExpiredFinal   EventName = "session_expired_final"
	EventAPIError              EventName = "api_error"
)

// Event is one telemetry notification.
type Event struct {
	Name       EventName
	Properties map[string]any
	Timestamp  time.Time
	AppVersion string
}

// TelemetryConfig configures a Telemetry emitter. Only Endpoint decides
// the delivery mode; everything else has defaults.
type TelemetryConfig struct {
	Endpoint   string
	AppVersion string
	Logger     Logger
	Metrics    *MetricsCollector
	HTTPClient *http.Client
	QueueSize  int
	Timeout    time.Duration
}

// Telemetry delivers events without ever blocking or failing the caller.
// With an endpoint, events are posted by a single background worker;
// without one they are written to the logger.
type Telemetry struct {
	endpoint   string
	appVersion string
	logger     Logger
	metrics    *MetricsCollector
	httpClient *http.Client
	timeout    time.Duration

	// mu orders enqueues against Close so nothing lands in the queue
	// after the worker has drained it.
	mu        sync.RWMutex
	closed    bool
	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTelemetry creates an emitter and, when an endpoint is configured,
// starts its delivery worker. Call Close to stop it.
func NewTelemetry(cfg TelemetryConfig) *Telemetry {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	t := &Telemetry{
		endpoint:   cfg.Endpoint,
		appVersion: cfg.AppVersion,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		done:       make(chan struct{}),
	}

	if t.endpoint != "" {
		t.queue = make(chan Event, cfg.QueueSize)
		t.wg.Add(1)
		go t.run()
	}

	return t
}

// Track records an event. It returns immediately.
func (t *Telemetry) Track(name EventName, properties map[string]any) {
	if t == nil {
		return
	}
	defer func() {
		// telemetry must never take the caller down
		_ = recover()
	}()

	event := Event{
		Name:       name,
		Properties: properties,
		Timestamp:  time.Now().UTC(),
		AppVersion: t.appVersion,
	}

	if !t.enqueue(event) {
		t.logEvent(event)
	}
}

// enqueue hands the event to the worker. It reports false when there is no
// worker to take it, in which case the caller logs it instead.
func (t *Telemetry) enqueue(event Event) bool {
	if t.queue == nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false
	}

	select {
	case t.queue <- event:
	default:
		t.metrics.RecordTelemetryEvent(string(event.Name), "dropped")
		t.logger.Debug("Telemetry queue full, event dropped", "event", string(event.Name))
	}
	return true
}

// Close stops the worker after it drains queued events.
func (t *Telemetry) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.done)
		t.mu.Unlock()
	})
	t.wg.Wait()
}

func (t *Telemetry) run() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.queue:
			t.deliver(event)
		case <-t.done:
			for {
				select {
				case event := <-t.queue:
					t.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (t *Telemetry) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.RecordTelemetryEvent(string(event.Name), "failed")
			t.logger.Debug("Telemetry delivery panicked", "event", string(event.Name), "panic", r)
		}
	}()

	if err := t.send(event); err != nil {
		t.metrics.RecordTelemetryEvent(string(event.Name), "failed")
		t.logger.Debug("Telemetry delivery failed", "event", string(event.Name), "error", err.Error())
		return
	}
	t.metrics.RecordTelemetryEvent(string(event.Name), "sent")
}

func (t *Telemetry) send(event Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if event.AppVersion != "" {
		req.Header.Set(HeaderAppVersion, event.AppVersion)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	return nil
}

func (t *Telemetry) logEvent(event Event) {
	t.metrics.RecordTelemetryEvent(string(event.Name), "logged")
	keysAndValues := []any{"timestamp", event.Timestamp.Format(time.RFC3339Nano), "appVersion", event.AppVersion}
	for k, v := range event.Properties {
		keysAndValues = append(keysAndValues, k, v)
	}
	t.logger.Info("[TELEMETRY] "+string(event.Name), keysAndValues...)
}

// encodeEvent renders the collector payload.
func encodeEvent(event Event) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "event", string(event.Name)); err != nil {
		return nil, err
	}
	properties := event.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	if payload, err = sjson.SetBytes(payload, "properties", properties); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "timestamp", event.Timestamp.Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "app_version", event.AppVersion); err != nil {
		return nil, err
	}
	return payload, nil
}
