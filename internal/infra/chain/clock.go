// Package chain provides the ledger height source.
//
// Heights are the only notion of time inside the ledger: poll periods and
// stake locks are measured in heights, never wall-clock durations. In a
// running daemon a Clock produces one height per block interval; tests
// advance it by hand.
package chain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ric-network/catalogdao/internal/domain"
)

// Clock is a monotonically increasing ledger height.
// Thread-safe; Height may be called from any goroutine.
type Clock struct {
	height atomic.Uint64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	onBlock func(height uint64)
}

// NewClock creates a clock starting at the given height.
func NewClock(start uint64) *Clock {
	c := &Clock{}
	c.height.Store(start)
	return c
}

// Height returns the current height.
func (c *Clock) Height() uint64 { return c.height.Load() }

// Advance mines n blocks and returns the new height.
func (c *Clock) Advance(n uint64) uint64 {
	return c.height.Add(n)
}

// Set moves the clock to h. Heights never move backwards.
func (c *Clock) Set(h uint64) error {
	for {
		cur := c.height.Load()
		if h < cur {
			return domain.ErrHeightRegression
		}
		if c.height.CompareAndSwap(cur, h) {
			return nil
		}
	}
}

// OnBlock registers a callback invoked after every automatically mined block.
func (c *Clock) OnBlock(fn func(height uint64)) {
	c.mu.Lock()
	c.onBlock = fn
	c.mu.Unlock()
}

// ─── Automine ───────────────────────────────────────────────────────────────

// Start mines one block per interval until Stop is called.
// Calling Start on a running clock is a no-op.
func (c *Clock) Start(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil || interval <= 0 {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(interval, c.stop, c.done)
}

func (c *Clock) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h := c.Advance(1)
			c.mu.Lock()
			fn := c.onBlock
			c.mu.Unlock()
			if fn != nil {
				fn(h)
			}
		}
	}
}

// Stop halts automining and waits for the miner goroutine to exit.
func (c *Clock) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether automining is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}
