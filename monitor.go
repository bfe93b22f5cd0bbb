package lagshed

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Monitor estimates scheduling lag and turns it into an admission decision.
//
// A Monitor owns one timer. Each tick measures how late the timer fired
// relative to the requested interval and folds that delay into a smoothed
// estimate. TooBusy, Lag and the accessors may be called from any goroutine.
//
// Lifecycle:
//   - New returns a stopped monitor.
//   - Start, the first TooBusy/Decide call, or the first listener arms the sampler.
//   - Shutdown disarms it, drops all listeners and zeroes the estimate.
//   - A shut down monitor can be started again.
type Monitor struct {
	mu sync.RWMutex

	clock  clock.Clock
	logger *slog.Logger
	rand   func() float64

	// Sampler state, guarded by mu
	running   bool
	timer     *clock.Timer
	stop      chan struct{}
	last      time.Time
	threshold float64 // ms
	interval  int     // ms
	alpha     float64
	lag       float64 // ms

	notifier *notifier

	samples  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a stopped Monitor. Without options it uses DefaultConfig, the
// wall clock, slog.Default and math/rand/v2.
func New(opts ...Option) (*Monitor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.eventBuffer < 1 {
		return nil, invalid("event buffer", o.eventBuffer, "must be at least 1")
	}

	return &Monitor{
		clock:     o.clock,
		logger:    o.logger,
		rand:      o.rand,
		threshold: o.cfg.ThresholdMs,
		interval:  o.cfg.IntervalMs,
		alpha:     o.cfg.SmoothingFactor,
		notifier:  newNotifier(o.logger, o.eventBuffer),
	}, nil
}

// Start arms the sampler. It is a no-op when the monitor is already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked()
}

func (m *Monitor) startLocked() {
	if m.running {
		return
	}
	m.armLocked()
	m.notifier.start()
	m.logger.Debug("lagshed: sampler started",
		"interval_ms", m.interval,
		"threshold_ms", m.threshold)
}

// Shutdown disarms the sampler, zeroes the estimate and unregisters every
// listener. Calling it on a stopped monitor is a no-op. Shutdown never waits
// for listener callbacks, so a listener may call it.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasRunning := m.running
	m.disarmLocked()
	m.notifier.stop()
	if wasRunning {
		m.logger.Debug("lagshed: sampler stopped")
	}
}

// IsRunning reports whether the sampler timer is armed.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Reset discards the current estimate without stopping the sampler. When
// running, the next tick measures from now.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lag = 0
	if m.running {
		m.last = m.clock.Now()
	}
}

// Lag returns the smoothed lag estimate rounded to whole milliseconds.
func (m *Monitor) Lag() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(math.Round(m.lag))
}

// Stats is a point-in-time snapshot of a Monitor.
type Stats struct {
	Running         bool
	Lag             float64 // ms, unrounded
	ThresholdMs     float64
	IntervalMs      int
	SmoothingFactor float64
	LastSample      time.Time // zero when stopped
	Listeners       int

	Samples       uint64 // ticks processed
	Accepted      uint64 // decisions that admitted work
	Rejected      uint64 // decisions that shed work
	LagEvents     uint64 // events queued for listeners
	DroppedEvents uint64 // events dropped because the queue was full
}

// Stats returns a snapshot of the monitor state and counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	s := Stats{
		Running:         m.running,
		Lag:             m.lag,
		ThresholdMs:     m.threshold,
		IntervalMs:      m.interval,
		SmoothingFactor: m.alpha,
		LastSample:      m.last,
	}
	m.mu.RUnlock()

	s.Listeners = m.notifier.len()
	s.Samples = m.samples.Load()
	s.Accepted = m.accepted.Load()
	s.Rejected = m.rejected.Load()
	s.LagEvents = m.notifier.published.Load()
	s.DroppedEvents = m.notifier.dropped.Load()
	return s
}
