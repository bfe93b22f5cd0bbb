package lagshed

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultConfig and by the process-wide monitor.
const (
	DefaultThresholdMs     = 70
	DefaultIntervalMs      = 500
	DefaultSmoothingFactor = 1.0 / 3.0

	MinThresholdMs = 10
	MinIntervalMs  = 16

	// MaxIntervalMs is the longest period a time.Duration can hold.
	MaxIntervalMs = 9223372036854
)

// Config holds the tunable parameters of a Monitor.
//
// All values are in milliseconds except SmoothingFactor, which is the weight
// given to the newest lag sample.
type Config struct {
	ThresholdMs     float64 `yaml:"threshold_ms" validate:"gte=10"`
	IntervalMs      int     `yaml:"interval_ms" validate:"gte=16,lte=9223372036854"`
	SmoothingFactor float64 `yaml:"smoothing_factor" validate:"gt=0,lte=1"`
}

// DefaultConfig returns a 70ms threshold sampled every 500ms with a smoothing
// factor of 1/3.
func DefaultConfig() Config {
	return Config{
		ThresholdMs:     DefaultThresholdMs,
		IntervalMs:      DefaultIntervalMs,
		SmoothingFactor: DefaultSmoothingFactor,
	}
}

type rule struct {
	param  string
	tag    string
	reason string
	// overrides reason for a failed upper bound
	maxReason string
}

var (
	thresholdRule = rule{param: "threshold", tag: "gte=10", reason: "must be greater than 10ms"}
	intervalRule  = rule{
		param:     "interval",
		tag:       "gte=16,lte=9223372036854",
		reason:    "must be greater than 16ms",
		maxReason: "must be at most 9223372036854ms",
	}
	smoothingRule = rule{param: "smoothing factor", tag: "gt=0,lte=1", reason: "must be greater than 0 and at most 1"}

	// keyed by Config struct field
	fieldRules = map[string]rule{
		"ThresholdMs":     thresholdRule,
		"IntervalMs":      intervalRule,
		"SmoothingFactor": smoothingRule,
	}
)

var validate = validator.New()

// Validate checks every field and returns the first violation as an
// *ArgumentError.
func (c Config) Validate() error {
	if err := checkNumber(thresholdRule.param, c.ThresholdMs); err != nil {
		return err
	}
	if err := checkNumber(smoothingRule.param, c.SmoothingFactor); err != nil {
		return err
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := verrs[0]
	r, ok := fieldRules[fe.StructField()]
	if !ok {
		return invalid(fe.StructField(), fe.Value(), fe.Tag())
	}
	return r.fail(fe.Tag(), fe.Value())
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result. Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func checkNumber(param string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(param, v, "must be a number")
	}
	return nil
}

func (r rule) check(v any) error {
	err := validate.Var(v, r.tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return r.fail(verrs[0].Tag(), v)
	}
	return invalid(r.param, v, r.reason)
}

func (r rule) fail(tag string, v any) error {
	if tag == "lte" && r.maxReason != "" {
		return invalid(r.param, v, r.maxReason)
	}
	return invalid(r.param, v, r.reason)
}

// Threshold returns the lag, in milliseconds, above which TooBusy starts
// shedding work.
func (m *Monitor) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold changes the shedding threshold. The new value applies to the
// next decision and to the sample clamp of the next tick.
func (m *Monitor) SetThreshold(ms float64) error {
	if err := checkNumber(thresholdRule.param, ms); err != nil {
		return err
	}
	if err := thresholdRule.check(ms); err != nil {
		return err
	}

	m.mu.Lock()
	m.threshold = ms
	m.mu.Unlock()
	return nil
}

// Interval returns the sampling period in milliseconds.
func (m *Monitor) Interval() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

// SetInterval changes the sampling period. ms is rounded to a whole number of
// milliseconds. A different period discards the current estimate and, when
// the sampler is running, re-arms it at the new period.
func (m *Monitor) SetInterval(ms float64) error {
	if err := checkNumber(intervalRule.param, ms); err != nil {
		return err
	}
	// rounding a larger value to int would wrap
	if ms > MaxIntervalMs {
		return invalid(intervalRule.param, ms, intervalRule.maxReason)
	}
	n := int(math.Round(ms))
	if err := intervalRule.check(n); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setIntervalLocked(n)
	return nil
}

func (m *Monitor) setIntervalLocked(n int) {
	if n == m.interval {
		return
	}
	m.interval = n
	m.lag = 0
	if m.running {
		m.disarmLocked()
		m.armLocked()
	}
	m.logger.Debug("lagshed: sampling interval changed", "interval_ms", n, "running", m.running)
}

// Apply validates cfg and sets threshold, interval and smoothing factor
// together. A new interval behaves as in SetInterval.
func (m *Monitor) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = cfg.ThresholdMs
	m.alpha = cfg.SmoothingFactor
	m.setIntervalLocked(cfg.IntervalMs)
	return nil
}

// SmoothingFactor returns the weight given to a rising lag sample.
func (m *Monitor) SmoothingFactor() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alpha
}

// SetSmoothingFactor changes the smoothing weight. It is used from the next
// tick on; the current estimate is not recomputed.
func (m *Monitor) SetSmoothingFactor(f float64) error {
	if err := checkNumber(smoothingRule.param, f); err != nil {
		return err
	}
	if err := smoothingRule.check(f); err != nil {
		return err
	}

	m.mu.Lock()
	m.alpha = f
	m.mu.Unlock()
	return nil
}
