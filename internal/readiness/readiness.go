// Package readiness holds the process-wide ready flag reported by /ready.
package readiness

import (
	"sync"
	"sync/atomic"
	"time"
)

// Gate flips from not ready to ready exactly once. The zero value is a
// gate that is not ready and has no timer.
type Gate struct {
	ready   atomic.Bool
	started time.Time

	initDone  sync.Once
	closeDone sync.Once
	done      chan struct{}
}

// After returns a gate that becomes ready once delay has elapsed. A delay
// of zero or less makes it ready immediately.
func After(delay time.Duration) *Gate {
	g := &Gate{started: time.Now()}
	if delay <= 0 {
		g.MarkReady()
		return g
	}
	time.AfterFunc(delay, g.MarkReady)
	return g
}

// MarkReady flips the gate. Calling it more than once is harmless.
func (g *Gate) MarkReady() {
	g.ready.Store(true)
	g.closeDone.Do(func() {
		close(g.doneChan())
	})
}

// Ready reports whether the gate has flipped
func (g *Gate) Ready() bool {
	return g.ready.Load()
}

// Done is closed when the gate flips
func (g *Gate) Done() <-chan struct{} {
	return g.doneChan()
}

// Since is how long the gate has existed
func (g *Gate) Since() time.Duration {
	if g.started.IsZero() {
		return 0
	}
	return time.Since(g.started)
}

func (g *Gate) doneChan() chan struct{} {
	g.initDone.Do(func() {
		g.done = make(chan struct{})
	})
	return g.done
}
