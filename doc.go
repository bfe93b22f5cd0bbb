// Package lagshed provides admission control driven by scheduling lag.
//
// # Overview
//
// lagshed answers one question on every inbound unit of work: should this
// process take it, or shed it? It never looks at CPU, memory or queue depth.
// Instead it arms a timer and measures how late the timer fires. When the Go
// scheduler is saturated (too many runnable goroutines, long GC pauses, CPU
// starvation) timer goroutines wake up late, and that delay is the signal.
//
// # Quick Start
//
// The process-wide monitor is started when the package is imported:
//
//	http.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
//	    if lagshed.TooBusy() {
//	        http.Error(w, "Service temporarily overloaded", http.StatusServiceUnavailable)
//	        return
//	    }
//	    handleRequest(w, r)
//	})
//
// Or wrap a handler with the middleware subpackage:
//
//	http.ListenAndServe(":8080", middleware.Handler(lagshed.Default(), mux))
//
// # The Estimate
//
// Every interval (default 500ms) the sampler computes
//
//	raw = max(0, elapsed since last tick - interval)
//
// and folds it into the smoothed lag:
//
//	f   = alpha        if raw >= lag (rising or flat)
//	f   = 1 - alpha    if raw <  lag (falling)
//	lag = f * min(raw, 2*threshold) + (1-f) * lag
//
// Rising and falling samples get complementary weights: alpha on the way up,
// 1-alpha on the way down. With alpha = 1 a quiet tick leaves the estimate
// untouched; with the default 1/3 the estimate rises over several ticks and
// falls back within a few. The clamp at twice the threshold bounds the weight
// of one pathological stall.
//
// # The Decision
//
// TooBusy never sheds before the first sample, nor at or below the threshold
// (default 70ms). Above it, work is shed with probability
//
//	p = min((lag - threshold) / threshold, 1)
//
// drawn fresh on every call: 0% at the threshold, 50% at 1.5x, 100% at 2x.
// There is no cliff where crossing the threshold rejects everything at once.
//
//	lag   threshold   shed
//	 50       70        0%
//	 84       70       20%
//	105       70       50%
//	140       70      100%
//
// # Tuning
//
//	lagshed.SetThreshold(50)         // ms, >= 10
//	lagshed.SetInterval(250)         // ms, >= 16; resets the estimate
//	lagshed.SetSmoothingFactor(0.5)  // (0, 1]
//
// Setters return an *ArgumentError wrapping ErrInvalidArgument for values out
// of range or not a number. A Config can also be loaded from YAML:
//
//	threshold_ms: 50
//	interval_ms: 250
//	smoothing_factor: 0.5
//
// # Lag Events
//
// Listeners are called off the sampler goroutine whenever the estimate
// exceeds their bound:
//
//	cancel := lagshed.OnLag(func(lag int) {
//	    slog.Warn("scheduling lag", "lag_ms", lag)
//	})
//	defer cancel()
//
// OnLag captures the threshold at registration time; OnLagAbove takes an
// explicit bound. Listeners share the lowest registered bound: once a tick
// exceeds it, every listener is called. Delivery never delays the sampler;
// events that cannot be queued are dropped and counted in Stats.
//
// # Independent Monitors
//
// New builds a separate, initially stopped monitor. Inject a clock for
// deterministic tests:
//
//	mock := clock.NewMock()
//	m, _ := lagshed.New(lagshed.WithClock(mock), lagshed.WithConfig(cfg))
//
// # Observability
//
// NewCollector exports the estimate, threshold and decision counters as
// Prometheus metrics.
//
// # See Also
//
//   - middleware/ - net/http and gin integrations
//   - cmd/lagshed/ - demo server and local stress run
//   - examples/ - Working code samples
package lagshed
