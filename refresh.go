package agentclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshCoordinator lets exactly one session refresh run at a time.
// Callers that hit an expired session while a refresh is running park on
// a buffered channel and are released together when it settles.
type refreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	pending    []chan error
	timeout    time.Duration
	metrics    *MetricsCollector
}

func newRefreshCoordinator(timeout time.Duration, metrics *MetricsCollector) *refreshCoordinator {
	return &refreshCoordinator{
		timeout: timeout,
		metrics: metrics,
	}
}

// Do joins the in-flight refresh, or starts one with fn if none is
// running. It reports whether this caller started the refresh and returns
// the shared outcome.
//
// The refresh runs on a context detached from ctx, so a cancelled caller
// stops waiting without aborting the refresh the queue depends on.
func (rc *refreshCoordinator) Do(ctx context.Context, fn func(context.Context) error) (bool, error) {
	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan error, 1)
		rc.pending = append(rc.pending, ch)
		waiters := len(rc.pending)
		rc.mu.Unlock()

		rc.metrics.RecordRefreshWaiters(waiters)
		return false, wait(ctx, ch)
	}
	rc.refreshing = true
	rc.mu.Unlock()

	refreshCtx, cancel := rc.detach(ctx)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := runRefresh(refreshCtx, fn)
		rc.settle(err)
		done <- err
	}()

	return true, wait(ctx, done)
}

func (rc *refreshCoordinator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if rc.timeout > 0 {
		return context.WithTimeout(base, rc.timeout)
	}
	return context.WithCancel(base)
}

// settle returns to idle and releases every waiter with err in one
// critical section. Channels are buffered so the sends never block.
func (rc *refreshCoordinator) settle(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, ch := range rc.pending {
		ch <- err
	}
	rc.pending = nil
	rc.refreshing = false
	rc.metrics.RecordRefreshWaiters(0)
}

// Refreshing reports whether a refresh is in flight.
func (rc *refreshCoordinator) Refreshing() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.refreshing
}

// Pending returns the number of callers parked behind the refresh.
func (rc *refreshCoordinator) Pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.pending)
}

func runRefresh(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newAPIError(ErrorTypeRefresh, 500, fmt.Sprintf("session refresh panicked: %v", r), nil)
		}
	}()
	return fn(ctx)
}

func wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
