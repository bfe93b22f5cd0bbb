package lagshed

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// armLocked stamps the start instant, clears the estimate and starts a timer
// goroutine. Callers hold mu and have disarmed any previous timer.
func (m *Monitor) armLocked() {
	m.last = m.clock.Now()
	m.lag = 0
	m.stop = make(chan struct{})
	m.timer = m.clock.Timer(m.period())
	m.running = true

	go m.loop(m.timer, m.stop)
}

// disarmLocked stops the timer goroutine and clears the sample state.
func (m *Monitor) disarmLocked() {
	if m.running {
		m.timer.Stop()
		close(m.stop)
		m.timer, m.stop = nil, nil
		m.running = false
	}
	m.last = time.Time{}
	m.lag = 0
}

func (m *Monitor) period() time.Duration {
	return time.Duration(m.interval) * time.Millisecond
}

func (m *Monitor) loop(t *clock.Timer, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.tick(t, stop)
		}
	}
}

// tick folds one sample into the estimate and re-arms the timer.
//
// The clock is read after mu is acquired; time spent waiting for the lock
// counts as lag.
func (m *Monitor) tick(t *clock.Timer, stop <-chan struct{}) {
	m.mu.Lock()
	select {
	case <-stop:
		// disarmed while this tick was waiting for the lock
		m.mu.Unlock()
		return
	default:
	}

	now := m.clock.Now()
	raw := rawDelay(now.Sub(m.last), m.interval)
	m.lag = smooth(m.lag, raw, m.alpha, m.threshold)
	m.last = now
	t.Reset(m.period())
	lag := m.lag
	m.mu.Unlock()

	m.notifier.publish(lag)
	m.samples.Add(1)
}

// rawDelay is how much of elapsed went past the requested interval, in ms.
func rawDelay(elapsed time.Duration, intervalMs int) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	return math.Max(0, ms-float64(intervalMs))
}

// smooth folds raw into lag.
//
// A rising or flat sample is weighted with alpha, a falling one with
// 1-alpha. The sample is clamped to twice the threshold before weighting.
func smooth(lag, raw, alpha, thresholdMs float64) float64 {
	f := alpha
	if raw < lag {
		f = 1 - alpha
	}
	capped := math.Min(raw, thresholdMs*2)
	return f*capped + (1-f)*lag
}
