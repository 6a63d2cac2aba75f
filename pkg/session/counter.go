package session

import (
	"fmt"
	"sync"
)

// Counter manages the outgoing sequence number of one direction. Values are
// monotonic, start at 1 and are never reused within a session. Safe for
// concurrent use.
type Counter struct {
	mu    sync.Mutex
	value uint32
}

// NewCounter creates a counter at its initial value.
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next sequence number.
func (c *Counter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Current returns the last issued sequence number, zero if none.
func (c *Counter) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Reset returns the counter to its initial value. Called on session
// establishment.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = 0
}

// ReplayGuard enforces strictly increasing receive sequence numbers.
// Accept is the single indivisible accept-and-advance step: callers invoke
// it only after a frame has fully decrypted and decoded, and deliver the
// frame immediately after it returns nil. A frame rejected here is dropped
// without advancing the counter.
type ReplayGuard struct {
	mu   sync.Mutex
	last uint32
}

// NewReplayGuard creates a guard accepting any sequence number above zero.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{}
}

// Accept validates and records a received sequence number. Any value not
// greater than the last accepted one is rejected as a replay.
func (g *ReplayGuard) Accept(seq uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq <= g.last {
		return fmt.Errorf("%w: got %d, last accepted %d", ErrReplayOrOutOfOrder, seq, g.last)
	}
	g.last = seq
	return nil
}

// Last returns the last accepted sequence number, zero if none.
func (g *ReplayGuard) Last() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Reset clears the guard. Called on session establishment.
func (g *ReplayGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = 0
}
