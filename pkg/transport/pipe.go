package transport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures link behavior simulation. Use it to exercise
// protocol behavior under a lossy radio.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay added to each datagram.
	DelayMin time.Duration

	// DelayMax is the maximum delay added to each datagram. The actual
	// delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of duplicating a datagram (0.0 - 1.0).
	DuplicateRate float64
}

// Pipe provides a bidirectional in-memory link between a host end and a
// device end. It wraps pion's test.Bridge and adds network condition
// simulation, giving deterministic, flake-free protocol tests without real
// radio I/O.
//
// Messages are delivered by a background processing goroutine by default.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.RWMutex
	condition NetworkCondition
	closed    bool

	rngMu sync.Mutex
	rng   *rand.Rand

	host   *pipeEnd
	device *pipeEnd

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}
	p.host = newPipeEnd(p, p.bridge.GetConn0())
	p.device = newPipeEnd(p, p.bridge.GetConn1())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
	return p
}

// HostEnd returns the connection the protocol core uses.
func (p *Pipe) HostEnd() Connection { return p.host }

// DeviceEnd returns the connection a simulated device uses.
func (p *Pipe) DeviceEnd() Connection { return p.device }

// SetCondition configures link condition simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Close closes both ends and stops the processing goroutine. The ends are
// closed first: the bridge only delivers EOF to a blocked read on a later
// tick, so the tick goroutine must keep running until both read loops have
// drained.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err0 := p.host.Close()
	err1 := p.device.Close()

	close(p.stopCh)
	p.wg.Wait()
	if err0 != nil {
		return err0
	}
	return err1
}

// chance draws one loss/duplication decision. The rng is shared between both
// ends, so draws are serialized.
func (p *Pipe) chance(rate float64) bool {
	if rate <= 0 {
		return false
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64() < rate
}

// jitter draws a delay uniformly distributed between min and max.
func (p *Pipe) jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

// pipeEnd adapts one bridge endpoint to the Connection interface: a read
// loop feeds the notify handler, Send applies the pipe's link conditions.
type pipeEnd struct {
	pipe *Pipe
	conn net.Conn

	mu      sync.Mutex
	handler func([]byte)
	closed  bool
	wg      sync.WaitGroup
}

func newPipeEnd(p *Pipe, conn net.Conn) *pipeEnd {
	e := &pipeEnd{pipe: p, conn: conn}
	e.wg.Add(1)
	go e.readLoop()
	return e
}

func (e *pipeEnd) readLoop() {
	defer e.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return
		}
		e.mu.Lock()
		h := e.handler
		e.mu.Unlock()
		if h != nil {
			msg := make([]byte, n)
			copy(msg, buf[:n])
			h(msg)
		}
	}
}

// Send writes one datagram to the peer, subject to the pipe's conditions.
func (e *pipeEnd) Send(b []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	e.pipe.mu.RLock()
	cond := e.pipe.condition
	e.pipe.mu.RUnlock()

	if e.pipe.chance(cond.DropRate) {
		return nil // silently dropped, like a radio would
	}
	if cond.DelayMax > 0 {
		if delay := e.pipe.jitter(cond.DelayMin, cond.DelayMax); delay > 0 {
			time.Sleep(delay)
		}
	}
	if e.pipe.chance(cond.DuplicateRate) {
		if _, err := e.conn.Write(b); err != nil {
			return err
		}
	}

	_, err := e.conn.Write(b)
	return err
}

// SetNotifyHandler installs the inbound callback.
func (e *pipeEnd) SetNotifyHandler(h func(b []byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Close closes this end. The peer's read loop terminates as well.
func (e *pipeEnd) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.conn.Close()
	e.wg.Wait()
	return err
}
