package lagshed

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// harness drives a Monitor with a mock clock.
type harness struct {
	t   *testing.T
	clk *clock.Mock
	m   *Monitor
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	clk := clock.NewMock()
	opts = append([]Option{
		WithConfig(cfg),
		WithClock(clk),
		WithLogger(discardLogger()),
	}, opts...)

	m, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	return &harness{t: t, clk: clk, m: m}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stall advances the clock by d while holding the monitor, the way a busy
// scheduler keeps the sampler from running. The tick that comes due during
// the stall observes all of d once the stall ends. d must be at least one
// interval.
func (h *harness) stall(d time.Duration) {
	h.t.Helper()

	before := h.m.samples.Load()
	h.m.mu.Lock()
	h.clk.Add(d)
	h.m.mu.Unlock()

	require.Eventually(h.t, func() bool {
		return h.m.samples.Load() > before
	}, 2*time.Second, time.Millisecond, "tick did not run after %v stall", d)
}

// cycle is one sampling period plus extra lag.
func (h *harness) cycle(extra time.Duration) {
	h.t.Helper()
	h.stall(time.Duration(h.m.Interval())*time.Millisecond + extra)
}

func fixedRand(v float64) Option {
	return WithRand(func() float64 { return v })
}
