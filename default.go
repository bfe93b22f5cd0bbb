package lagshed

// Process-wide monitor, started at init with DefaultConfig.
var std = mustNew()

func init() {
	std.Start()
}

func mustNew(opts ...Option) *Monitor {
	m, err := New(opts...)
	if err != nil {
		panic("lagshed: " + err.Error())
	}
	return m
}

// Default returns the process-wide monitor used by the package-level functions.
func Default() *Monitor { return std }

// TooBusy reports whether the process-wide monitor says to shed work.
func TooBusy() bool { return std.TooBusy() }

// Decide runs an admission check on the process-wide monitor.
func Decide() Decision { return std.Decide() }

// Lag returns the process-wide lag estimate in milliseconds.
func Lag() int { return std.Lag() }

// Threshold returns the process-wide shedding threshold in milliseconds.
func Threshold() float64 { return std.Threshold() }

// SetThreshold sets the process-wide shedding threshold.
func SetThreshold(ms float64) error { return std.SetThreshold(ms) }

// Interval returns the process-wide sampling period in milliseconds.
func Interval() int { return std.Interval() }

// SetInterval sets the process-wide sampling period.
func SetInterval(ms float64) error { return std.SetInterval(ms) }

// SmoothingFactor returns the process-wide smoothing factor.
func SmoothingFactor() float64 { return std.SmoothingFactor() }

// SetSmoothingFactor sets the process-wide smoothing factor.
func SetSmoothingFactor(f float64) error { return std.SetSmoothingFactor(f) }

// OnLag registers a lag listener on the process-wide monitor.
func OnLag(fn LagFunc) func() { return std.OnLag(fn) }

// OnLagAbove registers a lag listener with an explicit bound.
func OnLagAbove(ms float64, fn LagFunc) func() { return std.OnLagAbove(ms, fn) }

// Start arms the process-wide sampler.
func Start() { std.Start() }

// Shutdown stops the process-wide sampler and drops its listeners.
func Shutdown() { std.Shutdown() }

// IsRunning reports whether the process-wide sampler is armed.
func IsRunning() bool { return std.IsRunning() }

// Reset zeroes the process-wide estimate.
func Reset() { std.Reset() }

// GetStats snapshots the process-wide monitor.
func GetStats() Stats { return std.Stats() }
