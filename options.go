package lagshed

import (
	"log/slog"
	"math/rand/v2"

	"github.com/benbjohnson/clock"
)

// Option configures a Monitor created with New.
type Option func(*options)

type options struct {
	cfg         Config
	clock       clock.Clock
	logger      *slog.Logger
	rand        func() float64
	eventBuffer int
}

func defaultOptions() options {
	return options{
		cfg:         DefaultConfig(),
		clock:       clock.New(),
		logger:      slog.Default(),
		rand:        rand.Float64,
		eventBuffer: 16,
	}
}

// WithConfig sets threshold, interval and smoothing factor. The config is
// validated by New.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithClock replaces the wall clock used for sampling. Tests pass a
// *clock.Mock to drive ticks deterministically.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger used for lifecycle and listener failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRand sets the uniform [0,1) source used by the probabilistic decision.
// The function must be safe for concurrent use.
func WithRand(fn func() float64) Option {
	return func(o *options) {
		if fn != nil {
			o.rand = fn
		}
	}
}

// WithEventBuffer sets how many lag events may wait for delivery before new
// ones are dropped. Default is 16.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		o.eventBuffer = n
	}
}
