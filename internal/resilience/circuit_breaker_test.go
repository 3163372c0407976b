// SPDX-License-Identifier: MIT
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errUpstream = errors.New("upstream boom")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-trip", 3, 30*time.Second, WithClock(clock))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls fail fast.
	assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-recover", 1, 10*time.Second, WithClock(clock))

	ctx := context.Background()
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-reopen", 1, 10*time.Second, WithClock(clock))

	ctx := context.Background()
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	clock.now = clock.now.Add(11 * time.Second)

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-probe", 1, 10*time.Second, WithClock(clock))

	ctx := context.Background()
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	clock.now = clock.now.Add(11 * time.Second)

	release := make(chan struct{})
	probeStarted := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	assert.Equal(t, StateHalfOpen, cb.State())
	// Second call during the probe is rejected.
	assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
	close(release)
}

func TestBreakerIgnoresContextCancellation(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-ctx", 1, 10*time.Second, WithClock(clock))

	ctx := context.Background()
	err := cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State(), "cancellation must not trip the breaker")

	// The breaker still trips on a real failure.
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerCanceledContextShortCircuits(t *testing.T) {
	cb := New("test-pre-cancel", 3, 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := New("test-reset", 3, 10*time.Second, WithClock(clock))

	ctx := context.Background()
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.NoError(t, cb.Execute(ctx, succeeding))

	// Counter reset; two more failures stay under the threshold.
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
}
