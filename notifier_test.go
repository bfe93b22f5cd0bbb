package lagshed

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no lag event delivered")
		return 0
	}
}

func TestOnLagAbove_QuietProcessNeverFires(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	var calls atomic.Int32
	h.m.OnLagAbove(200, func(int) { calls.Add(1) })
	require.True(t, h.m.IsRunning(), "registration starts the sampler")

	for i := 0; i < 5; i++ {
		h.cycle(5 * time.Millisecond)
	}

	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, h.m.Stats().LagEvents)
}

func TestOnLagAbove_FiresOnStall(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	got := make(chan int, 4)
	h.m.OnLagAbove(5, func(lag int) { got <- lag })

	h.cycle(150 * time.Millisecond)

	lag := recv(t, got)
	assert.Greater(t, lag, 5)
	assert.Equal(t, 150, lag)
	assert.Equal(t, uint64(1), h.m.Stats().LagEvents)
}

func TestOnLagAbove_SharedBound(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	low := make(chan int, 4)
	high := make(chan int, 4)
	cancelLow := h.m.OnLagAbove(5, func(lag int) { low <- lag })
	h.m.OnLagAbove(100, func(lag int) { high <- lag })

	// the lowest bound gates delivery to every listener
	h.cycle(50 * time.Millisecond)
	assert.Equal(t, 50, recv(t, low))
	assert.Equal(t, 50, recv(t, high))

	cancelLow()
	h.cycle(50 * time.Millisecond)
	assert.Never(t, func() bool { return len(high) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, uint64(1), h.m.Stats().LagEvents)
}

func TestOnLagAbove_OutOfRangeBoundUsesThreshold(t *testing.T) {
	for _, ms := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		h := newHarness(t, Config{ThresholdMs: 40, IntervalMs: 16, SmoothingFactor: 1})

		got := make(chan int, 4)
		cancel := h.m.OnLagAbove(ms, func(lag int) { got <- lag })
		require.NotNil(t, cancel)
		assert.True(t, h.m.IsRunning(), "bound %v", ms)

		h.cycle(30 * time.Millisecond)
		h.cycle(50 * time.Millisecond)
		assert.Equal(t, 50, recv(t, got), "bound %v behaves as 40ms", ms)
		assert.Equal(t, uint64(1), h.m.Stats().LagEvents)
	}
}

func TestOnLagAbove_ZeroBound(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	got := make(chan int, 4)
	h.m.OnLagAbove(0, func(lag int) { got <- lag })

	h.cycle(0)
	assert.Zero(t, h.m.Stats().LagEvents, "no lag, no event")

	h.cycle(3 * time.Millisecond)
	assert.Equal(t, 3, recv(t, got))
}

func TestOnLag_SnapshotsThreshold(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 50, IntervalMs: 16, SmoothingFactor: 1})

	got := make(chan int, 4)
	h.m.OnLag(func(lag int) { got <- lag })

	require.NoError(t, h.m.SetThreshold(200))
	h.cycle(100 * time.Millisecond)

	assert.Equal(t, 100, recv(t, got), "bound stays at 50ms")
}

func TestListener_PanicIsIsolated(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	got := make(chan int, 4)
	h.m.OnLagAbove(5, func(int) { panic("listener bug") })
	h.m.OnLagAbove(5, func(lag int) { got <- lag })

	h.cycle(30 * time.Millisecond)
	assert.Equal(t, 30, recv(t, got))

	// sampler survives
	h.cycle(60 * time.Millisecond)
	assert.Equal(t, 60, recv(t, got))
	assert.True(t, h.m.IsRunning())
}

func TestListener_Cancel(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	var calls atomic.Int32
	cancel := h.m.OnLagAbove(5, func(int) { calls.Add(1) })
	require.Equal(t, 1, h.m.Stats().Listeners)

	cancel()
	cancel()
	assert.Zero(t, h.m.Stats().Listeners)

	h.cycle(50 * time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, h.m.Stats().LagEvents)
}

func TestListener_SlowDeliveryDropsEvents(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1}, WithEventBuffer(1))

	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	defer close(release)

	h.m.OnLagAbove(5, func(int) {
		entered <- struct{}{}
		<-release
	})

	// first event is taken off the queue and blocks in the listener
	h.cycle(30 * time.Millisecond)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never called")
	}

	// second fills the queue, third has nowhere to go
	h.cycle(30 * time.Millisecond)
	h.cycle(30 * time.Millisecond)

	s := h.m.Stats()
	assert.Equal(t, uint64(3), s.Samples, "sampler never waits for listeners")
	assert.Equal(t, uint64(2), s.LagEvents)
	assert.Equal(t, uint64(1), s.DroppedEvents)
}

func TestListener_RemovedByShutdown(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	var calls atomic.Int32
	h.m.OnLagAbove(5, func(int) { calls.Add(1) })

	h.m.Shutdown()
	assert.Zero(t, h.m.Stats().Listeners)

	h.m.Start()
	h.cycle(50 * time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestListener_MayShutDownMonitor(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 100, IntervalMs: 16, SmoothingFactor: 1})

	h.m.OnLagAbove(5, func(int) { h.m.Shutdown() })

	h.cycle(50 * time.Millisecond)

	require.Eventually(t, func() bool { return !h.m.IsRunning() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, h.m.Lag())
}
