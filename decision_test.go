package lagshed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_Table(t *testing.T) {
	testCases := []struct {
		name      string
		lag       float64
		threshold float64
		draw      float64
		wantBusy  bool
		wantWhy   Reason
		wantP     float64
	}{
		{"no lag", 0, 70, 0, false, ReasonNoLag, 0},
		{"below threshold", 50, 70, 0, false, ReasonBelowThreshold, 0},
		{"at threshold", 70, 70, 0, false, ReasonBelowThreshold, 0},
		{"20 percent, draw under", 84, 70, 0.19, true, ReasonOverThreshold, 0.2},
		{"20 percent, draw over", 84, 70, 0.21, false, ReasonOverThreshold, 0.2},
		{"half, draw under", 105, 70, 0.49, true, ReasonOverThreshold, 0.5},
		{"half, draw over", 105, 70, 0.51, false, ReasonOverThreshold, 0.5},
		{"saturated", 140, 70, 0.999, true, ReasonSaturated, 1},
		{"beyond saturation", 500, 70, 0.999, true, ReasonSaturated, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := decide(tc.lag, tc.threshold, func() float64 { return tc.draw })

			assert.Equal(t, tc.wantBusy, d.Busy)
			assert.Equal(t, tc.wantWhy, d.Reason)
			assert.InDelta(t, tc.wantP, d.Probability, 1e-9)
			assert.Equal(t, tc.lag, d.Lag)
			assert.Equal(t, tc.threshold, d.Threshold)
		})
	}
}

func TestDecide_NoDrawOutsideRamp(t *testing.T) {
	draws := 0
	draw := func() float64 {
		draws++
		return 0
	}

	decide(0, 70, draw)
	decide(60, 70, draw)
	decide(200, 70, draw)
	assert.Zero(t, draws)

	decide(100, 70, draw)
	assert.Equal(t, 1, draws)
}

func TestTooBusy_FirstCallStarts(t *testing.T) {
	h := newHarness(t, DefaultConfig(), fixedRand(0))
	require.False(t, h.m.IsRunning())

	d := h.m.Decide()

	assert.False(t, d.Busy)
	assert.Equal(t, ReasonStarting, d.Reason)
	assert.True(t, h.m.IsRunning())

	d = h.m.Decide()
	assert.Equal(t, ReasonNoLag, d.Reason, "running but nothing sampled yet")
}

func TestTooBusy_FollowsEstimate(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 10, IntervalMs: 16, SmoothingFactor: 1}, fixedRand(0.5))
	h.m.Start()

	h.cycle(10 * time.Millisecond)
	assert.False(t, h.m.TooBusy(), "lag at threshold")

	h.cycle(20 * time.Millisecond)
	assert.True(t, h.m.TooBusy(), "lag at twice threshold")
	assert.Equal(t, ReasonSaturated, h.m.Decide().Reason)
}

func TestTooBusy_HalfShedAtOneAndAHalfThreshold(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 10, IntervalMs: 16, SmoothingFactor: 1})
	h.m.Start()

	h.cycle(15 * time.Millisecond)
	require.Equal(t, 15, h.m.Lag())

	AssertRejectRate(t, h.m, 4000, 0.5, 0.05)
}

func TestTooBusy_QuietProcessNeverSheds(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.m.Start()

	for i := 0; i < 3; i++ {
		h.cycle(time.Millisecond)
	}
	AssertNeverBusy(t, h.m, 1000)
}

func TestDecide_CountsOutcomes(t *testing.T) {
	h := newHarness(t, Config{ThresholdMs: 10, IntervalMs: 16, SmoothingFactor: 1})
	h.m.Start()

	h.m.TooBusy()
	h.cycle(30 * time.Millisecond)
	h.m.TooBusy()
	h.m.TooBusy()

	s := h.m.Stats()
	assert.Equal(t, uint64(1), s.Accepted)
	assert.Equal(t, uint64(2), s.Rejected)
}

func TestDecision_String(t *testing.T) {
	d := Decision{Busy: true, Reason: ReasonOverThreshold, Lag: 105, Threshold: 70, Probability: 0.5}
	assert.Equal(t, "OVER_THRESHOLD busy=true lag=105.0ms threshold=70ms p=0.50", d.String())
}
