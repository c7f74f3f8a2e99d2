// Package fault decides when the simulated endpoints misbehave: whether
// /api/error fails and how long /api/slow waits.
package fault

import (
	"math/rand/v2"
	"time"

	"github.com/mumumio1/wtarget/internal/config"
)

// probabilisticFailureRate is the failure probability for
// config.ErrorModeProbabilistic.
const probabilisticFailureRate = 0.5

// Injector decides whether a request to /api/error fails
type Injector struct {
	mode  config.ErrorMode
	float func() float64
}

// Option configures an Injector
type Option func(*Injector)

// WithRandom replaces the uniform [0,1) source used in probabilistic mode
func WithRandom(f func() float64) Option {
	return func(i *Injector) {
		i.float = f
	}
}

// NewInjector returns an injector for mode. Modes other than "always" and
// "probabilistic" never fail.
func NewInjector(mode config.ErrorMode, opts ...Option) *Injector {
	i := &Injector{
		mode:  mode,
		float: rand.Float64,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Mode returns the configured mode
func (i *Injector) Mode() config.ErrorMode {
	return i.mode
}

// ShouldFail draws a decision for one request
func (i *Injector) ShouldFail() bool {
	switch i.mode {
	case config.ErrorModeAlways:
		return true
	case config.ErrorModeProbabilistic:
		return i.float() < probabilisticFailureRate
	default:
		return false
	}
}

// Delay resolves the wait for one /api/slow request. raw is the ms query
// value; when it does not start with an integer fallbackMs is used. The
// returned ms is reported back to the caller verbatim, wait is the same
// value as a Duration (saturated, never clamped to zero).
func Delay(raw string, fallbackMs int64) (ms int64, wait time.Duration) {
	ms = fallbackMs
	if n, ok := config.ParseInt64(raw); ok {
		ms = n
	}
	return ms, config.Millis(ms)
}
