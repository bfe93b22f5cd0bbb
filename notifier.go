package lagshed

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// LagFunc receives the smoothed lag, rounded to milliseconds, on every tick
// where it exceeds the monitor's lag event bound.
type LagFunc func(lagMs int)

// OnLag registers fn with the current Threshold as its bound. The bound is
// captured now and does not follow later SetThreshold calls. Registration
// starts the sampler if needed. The returned func unregisters fn.
func (m *Monitor) OnLag(fn LagFunc) (cancel func()) {
	return m.OnLagAbove(m.Threshold(), fn)
}

// OnLagAbove registers fn with a bound of ms. A negative or non-numeric ms
// means the current Threshold.
//
// Listeners share one firing bound, the lowest of all registered bounds.
// When a tick's lag exceeds it, every registered listener is called once,
// each on its own goroutine. Registration starts the sampler if needed.
func (m *Monitor) OnLagAbove(ms float64, fn LagFunc) (cancel func()) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		ms = m.Threshold()
	}
	cancel = m.notifier.add(ms, fn)
	m.Start()
	return cancel
}

type listener struct {
	fn        LagFunc
	threshold float64
}

type lagEvent struct {
	lag float64
	gen uint64
}

// notifier fans lag events out to listeners on its own goroutine. The
// sampler only ever does a non-blocking send into queue.
type notifier struct {
	logger *slog.Logger
	queue  chan lagEvent

	mu        sync.Mutex
	listeners map[uint64]listener
	nextID    uint64
	gate      float64 // lowest listener bound, -1 without listeners
	gen       uint64  // bumped by stop; older events are discarded
	done      chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

func newNotifier(logger *slog.Logger, buffer int) *notifier {
	return &notifier{
		logger:    logger,
		queue:     make(chan lagEvent, buffer),
		listeners: make(map[uint64]listener),
		gate:      -1,
	}
}

func (n *notifier) add(threshold float64, fn LagFunc) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners[id] = listener{fn: fn, threshold: threshold}
	n.recomputeGateLocked()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
	n.recomputeGateLocked()
}

func (n *notifier) recomputeGateLocked() {
	n.gate = -1
	for _, l := range n.listeners {
		if n.gate < 0 || l.threshold < n.gate {
			n.gate = l.threshold
		}
	}
}

func (n *notifier) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// start launches the delivery goroutine unless it is already running.
func (n *notifier) start() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.done != nil {
		return
	}
	n.done = make(chan struct{})
	go n.run(n.done)
}

// stop drops every listener and ends the delivery goroutine without waiting
// for callbacks in flight.
func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	clear(n.listeners)
	n.gate = -1
	n.gen++
	if n.done != nil {
		close(n.done)
		n.done = nil
	}
}

// publish queues lag for delivery if it clears the gate. It never blocks.
func (n *notifier) publish(lag float64) {
	n.mu.Lock()
	gate, gen := n.gate, n.gen
	n.mu.Unlock()

	if gate < 0 || lag <= gate {
		return
	}

	select {
	case n.queue <- lagEvent{lag: lag, gen: gen}:
		n.published.Add(1)
	default:
		n.dropped.Add(1)
	}
}

func (n *notifier) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-n.queue:
			n.deliver(ev)
		}
	}
}

// deliver calls every registered listener, each on its own goroutine, and
// waits for all of them.
func (n *notifier) deliver(ev lagEvent) {
	n.mu.Lock()
	if ev.gen != n.gen {
		n.mu.Unlock()
		return
	}
	targets := make([]listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		targets = append(targets, l)
	}
	n.mu.Unlock()

	lag := int(math.Round(ev.lag))

	var wg sync.WaitGroup
	for _, l := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.invoke(l, lag)
		}()
	}
	wg.Wait()
}

func (n *notifier) invoke(l listener, lag int) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("lagshed: lag listener panicked",
				"lag_ms", lag,
				"threshold_ms", l.threshold,
				"panic", r)
		}
	}()
	l.fn(lag)
}
