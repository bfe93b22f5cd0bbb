package lagshed

import (
	"fmt"
	"math"
)

// Reason classifies how a Decision was reached.
type Reason string

const (
	ReasonStarting       Reason = "STARTING"        // Sampler was not running; started, no sample yet
	ReasonNoLag          Reason = "NO_LAG"          // Estimate is zero
	ReasonBelowThreshold Reason = "BELOW_THRESHOLD" // Lag at or under threshold
	ReasonOverThreshold  Reason = "OVER_THRESHOLD"  // Lag over threshold; Busy decided by random draw
	ReasonSaturated      Reason = "SATURATED"       // Lag at or over twice the threshold; always busy
)

// Decision is the outcome of one admission check.
type Decision struct {
	Busy        bool
	Reason      Reason
	Lag         float64 // ms, unrounded
	Threshold   float64 // ms
	Probability float64 // chance of Busy at this lag, 0..1
}

func (d Decision) String() string {
	return fmt.Sprintf("%s busy=%t lag=%.1fms threshold=%.0fms p=%.2f",
		d.Reason, d.Busy, d.Lag, d.Threshold, d.Probability)
}

// TooBusy reports whether the caller should shed the current unit of work.
//
// The answer is never true before the sampler has produced a sample. Above
// the threshold the rejection chance grows linearly, from 0 at the threshold
// to 1 at twice the threshold, with a fresh random draw on each call.
func (m *Monitor) TooBusy() bool {
	return m.Decide().Busy
}

// Decide is TooBusy with the inputs and reasoning attached.
func (m *Monitor) Decide() Decision {
	m.mu.RLock()
	running, lag, threshold := m.running, m.lag, m.threshold
	m.mu.RUnlock()

	var d Decision
	if !running {
		m.Start()
		d = Decision{Reason: ReasonStarting, Threshold: threshold}
	} else {
		d = decide(lag, threshold, m.rand)
	}

	if d.Busy {
		m.rejected.Add(1)
	} else {
		m.accepted.Add(1)
	}
	return d
}

func decide(lag, threshold float64, draw func() float64) Decision {
	d := Decision{Lag: lag, Threshold: threshold}

	switch {
	case lag <= 0:
		d.Reason = ReasonNoLag
		return d
	case lag <= threshold:
		d.Reason = ReasonBelowThreshold
		return d
	}

	d.Probability = math.Min((lag-threshold)/threshold, 1)
	if d.Probability >= 1 {
		d.Reason = ReasonSaturated
		d.Busy = true
		return d
	}

	d.Reason = ReasonOverThreshold
	d.Busy = draw() < d.Probability
	return d
}
