// Package middleware sheds HTTP requests when a lag monitor reports the
// process is too busy.
//
//	mon := lagshed.Default()
//	http.ListenAndServe(":8080", middleware.Handler(mon, mux))
//
// Shed requests get 503 Service Unavailable with a Retry-After header. The
// check runs before the wrapped handler, so a shed request costs one
// TooBusy call.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Checker is the admission check. *lagshed.Monitor satisfies it.
type Checker interface {
	TooBusy() bool
}

// Option configures Handler and Gin.
type Option func(*config)

type config struct {
	retryAfter time.Duration
	reject     http.Handler
	logger     *slog.Logger
	logLimit   *rate.Limiter
}

func newConfig(opts []Option) *config {
	c := &config{
		retryAfter: time.Second,
		logger:     slog.Default(),
		logLimit:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reject == nil {
		c.reject = retryAfterHandler(c.retryAfter)
	}
	return c
}

// WithRetryAfter sets the Retry-After value of the default rejection.
// Sub-second values are rounded up to one second.
func WithRetryAfter(d time.Duration) Option {
	return func(c *config) {
		c.retryAfter = d
	}
}

// WithRejectHandler replaces the default 503 response.
func WithRejectHandler(h http.Handler) Option {
	return func(c *config) {
		c.reject = h
	}
}

// WithLogger sets the logger for shed requests.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLogRate caps how often shed requests are logged. Default is one per
// second.
func WithLogRate(every time.Duration) Option {
	return func(c *config) {
		c.logLimit = rate.NewLimiter(rate.Every(every), 1)
	}
}

// Handler wraps next, answering with the reject handler whenever c is too busy.
func Handler(c Checker, next http.Handler, opts ...Option) http.Handler {
	cfg := newConfig(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.TooBusy() {
			cfg.logShed(r)
			cfg.reject.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *config) logShed(r *http.Request) {
	if !c.logLimit.Allow() {
		return
	}
	c.logger.Warn("lagshed: shedding request",
		"method", r.Method,
		"path", r.URL.Path)
}

func retryAfterHandler(d time.Duration) http.Handler {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	value := strconv.Itoa(secs)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", value)
		http.Error(w, "Service temporarily overloaded", http.StatusServiceUnavailable)
	})
}
