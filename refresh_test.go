package agentclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshCoordinatorSingleLeader(t *testing.T) {
	rc := newRefreshCoordinator(time.Second, nil)
	release := make(chan struct{})
	var runs atomic.Int32

	refresh := func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	const callers = 8
	var wg sync.WaitGroup
	var leaders atomic.Int32
	errs := make(chan error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		leader, err := rc.Do(context.Background(), refresh)
		if leader {
			leaders.Add(1)
		}
		errs <- err
	}()
	require.Eventually(t, rc.Refreshing, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leader, err := rc.Do(context.Background(), refresh)
			if leader {
				leaders.Add(1)
			}
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return rc.Pending() == callers-1 }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, runs.Load())
	assert.EqualValues(t, 1, leaders.Load())
	assert.False(t, rc.Refreshing())
	assert.Zero(t, rc.Pending())
}

func TestRefreshCoordinatorSharesFailure(t *testing.T) {
	rc := newRefreshCoordinator(time.Second, nil)
	release := make(chan struct{})
	failure := newAPIError(ErrorTypeRefresh, 401, "expired", nil)

	leaderErr := make(chan error, 1)
	go func() {
		_, err := rc.Do(context.Background(), func(context.Context) error {
			<-release
			return failure
		})
		leaderErr <- err
	}()
	require.Eventually(t, rc.Refreshing, time.Second, time.Millisecond)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := rc.Do(context.Background(), func(context.Context) error {
			t.Error("waiter must not start a second refresh")
			return nil
		})
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return rc.Pending() == 1 }, time.Second, time.Millisecond)

	close(release)
	assert.Same(t, failure, <-leaderErr)
	assert.Same(t, failure, <-waiterErr)
	assert.False(t, rc.Refreshing())
}

func TestRefreshCoordinatorStartsAgainAfterSettle(t *testing.T) {
	rc := newRefreshCoordinator(time.Second, nil)
	var runs atomic.Int32
	refresh := func(context.Context) error {
		runs.Add(1)
		return nil
	}

	for i := 0; i < 3; i++ {
		leader, err := rc.Do(context.Background(), refresh)
		require.NoError(t, err)
		assert.True(t, leader)
	}
	assert.EqualValues(t, 3, runs.Load())
}

func TestRefreshCoordinatorRecoversPanic(t *testing.T) {
	rc := newRefreshCoordinator(time.Second, nil)
	_, err := rc.Do(context.Background(), func(context.Context) error {
		panic("kaboom")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, rc.Refreshing())
}

func TestRefreshCoordinatorTimeout(t *testing.T) {
	rc := newRefreshCoordinator(20*time.Millisecond, nil)
	_, err := rc.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, rc.Refreshing())
}

func TestRefreshCoordinatorDetachesFromCallerContext(t *testing.T) {
	rc := newRefreshCoordinator(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	finished := make(chan error, 1)

	go func() {
		_, err := rc.Do(ctx, func(refreshCtx context.Context) error {
			close(started)
			time.Sleep(30 * time.Millisecond)
			finished <- refreshCtx.Err()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	<-started
	cancel()
	assert.NoError(t, <-finished, "refresh context must survive caller cancellation")
	assert.Eventually(t, func() bool { return !rc.Refreshing() }, time.Second, time.Millisecond)
}
