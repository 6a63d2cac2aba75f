// Package dispatch serializes outgoing commands over one device connection.
//
// Low-power radio targets have a single shallow receive buffer, so the core
// invariant here is: at most one command is in flight per connection at any
// instant. Commands queue FIFO behind the in-flight one; a command leaves
// the head only by matching response, exhausted retries or disconnect, so a
// dead command never blocks the queue past its retry budget.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"

	"github.com/tuyable/tuyable/pkg/datapoint"
	"github.com/tuyable/tuyable/pkg/frame"
)

// ResponseKind says what inbound traffic completes a command.
type ResponseKind int

const (
	// ExpectNone resolves the command as soon as it is transmitted.
	ExpectNone ResponseKind = iota

	// ExpectAck resolves on any response frame matching the frame number.
	ExpectAck

	// ExpectReport resolves on a matching response frame and hands its
	// datapoints to the caller.
	ExpectReport
)

// Command is one outgoing protocol command.
type Command struct {
	Code       frame.CommandCode
	Datapoints []datapoint.Datapoint
	Expect     ResponseKind
}

// EncodeFunc turns a command into transmit-ready wire fragments. The
// dispatcher keeps the returned fragments for retransmission, so one command
// is encoded exactly once and retried byte-identical.
type EncodeFunc func(cmd Command) (frameNumber uint16, fragments [][]byte, err error)

// SendFunc transmits one wire fragment.
type SendFunc func(b []byte) error

// Config configures a Dispatcher.
type Config struct {
	// Encode and Send are required.
	Encode EncodeFunc
	Send   SendFunc

	// Timeout is the first-attempt response timeout (default 2s). Retry
	// timeouts grow exponentially from it.
	Timeout time.Duration

	// MaxRetries is the number of retransmissions after the first attempt
	// (default 2). Negative disables retransmission.
	MaxRetries int

	// LoggerFactory provides the dispatcher logger
	// (default logging.NewDefaultLoggerFactory()).
	LoggerFactory logging.LoggerFactory
}

// Dispatcher is the per-connection command queue. Safe for concurrent use.
type Dispatcher struct {
	cfg Config
	log logging.LeveledLogger

	mu       sync.Mutex
	queue    []*pending
	inflight *pending
	closed   bool
}

// pending is one queued or in-flight command.
type pending struct {
	handle      *Handle
	cmd         Command
	frameNumber uint16
	fragments   [][]byte
	attempts    int
	timer       *time.Timer
	backoff     backoff.BackOff
}

// DefaultTimeout is the default first-attempt response timeout.
const DefaultTimeout = 2 * time.Second

// DefaultMaxRetries is the default retransmission budget.
const DefaultMaxRetries = 2

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Encode == nil || cfg.Send == nil {
		return nil, fmt.Errorf("dispatch: Encode and Send are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Dispatcher{
		cfg: cfg,
		log: cfg.LoggerFactory.NewLogger("dispatch"),
	}, nil
}

// Submit appends a command to the queue and returns its handle. If nothing
// is in flight the command transmits immediately.
func (d *Dispatcher) Submit(cmd Command) (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	p := &pending{handle: newHandle(), cmd: cmd}
	d.queue = append(d.queue, p)
	d.log.Debugf("submit %s (%s), %d queued", cmd.Code, p.handle.CorrelationID, len(d.queue))
	if d.inflight == nil {
		d.advanceLocked()
	}
	return p.handle, nil
}

// Pending returns the number of queued plus in-flight commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.inflight != nil {
		n++
	}
	return n
}

// InFlight reports whether a command is currently awaiting its response.
func (d *Dispatcher) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight != nil
}

// advanceLocked promotes queue heads until one is successfully in flight or
// the queue is empty. Caller holds d.mu.
func (d *Dispatcher) advanceLocked() {
	for d.inflight == nil && len(d.queue) > 0 && !d.closed {
		p := d.queue[0]
		d.queue = d.queue[1:]

		frameNumber, fragments, err := d.cfg.Encode(p.cmd)
		if err != nil {
			d.log.Warnf("encode %s failed: %v", p.cmd.Code, err)
			p.handle.resolve(nil, err)
			continue
		}
		p.frameNumber = frameNumber
		p.fragments = fragments

		if err := d.transmitLocked(p); err != nil {
			p.handle.resolve(nil, err)
			continue
		}

		if p.cmd.Expect == ExpectNone {
			p.handle.resolve(nil, nil)
			continue
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = d.cfg.Timeout
		bo.RandomizationFactor = 0.1
		bo.Multiplier = 1.5
		bo.MaxElapsedTime = 0
		p.backoff = bo

		d.inflight = p
		d.armTimerLocked(p, bo.NextBackOff())
	}
}

// transmitLocked sends every fragment of a command. Caller holds d.mu.
func (d *Dispatcher) transmitLocked(p *pending) error {
	p.attempts++
	for _, f := range p.fragments {
		if err := d.cfg.Send(f); err != nil {
			d.log.Warnf("send frame %d failed: %v", p.frameNumber, err)
			return fmt.Errorf("dispatch: send: %w", err)
		}
	}
	d.log.Tracef("transmitted frame %d (%s), attempt %d", p.frameNumber, p.cmd.Code, p.attempts)
	return nil
}

// armTimerLocked starts the response timeout for the in-flight command.
// Caller holds d.mu.
func (d *Dispatcher) armTimerLocked(p *pending, timeout time.Duration) {
	p.timer = time.AfterFunc(timeout, func() { d.onTimeout(p) })
}

// onTimeout fires when the in-flight command got no response in time.
func (d *Dispatcher) onTimeout(p *pending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.inflight != p {
		return // stale timer, command already resolved
	}

	if p.attempts > d.cfg.MaxRetries {
		d.log.Warnf("frame %d (%s) timed out after %d attempts", p.frameNumber, p.cmd.Code, p.attempts)
		d.inflight = nil
		p.handle.resolve(nil, ErrTimeout)
		d.advanceLocked()
		return
	}

	d.log.Debugf("frame %d (%s) timed out, retransmitting (attempt %d)", p.frameNumber, p.cmd.Code, p.attempts+1)
	if err := d.transmitLocked(p); err != nil {
		d.inflight = nil
		p.handle.resolve(nil, err)
		d.advanceLocked()
		return
	}
	d.armTimerLocked(p, p.backoff.NextBackOff())
}

// HandleResponse correlates an inbound frame with the in-flight command.
// Correlation is by frame number equality only. It returns true when the
// frame completed a command; false means the frame was unsolicited (or a
// late response for a command that already timed out) and the caller should
// treat it as a device report.
func (d *Dispatcher) HandleResponse(frameNumber uint16, dps []datapoint.Datapoint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.inflight
	if p == nil || p.frameNumber != frameNumber {
		d.log.Tracef("frame %d matches no in-flight command, treating as unsolicited", frameNumber)
		return false
	}

	p.timer.Stop()
	d.inflight = nil
	if p.cmd.Expect == ExpectReport {
		p.handle.resolve(dps, nil)
	} else {
		p.handle.resolve(nil, nil)
	}
	d.log.Debugf("frame %d (%s) resolved", frameNumber, p.cmd.Code)
	d.advanceLocked()
	return true
}

// Flush resolves every pending and queued command with err (ErrDisconnected
// if nil) and cancels all timers. Called on transport disconnect.
func (d *Dispatcher) Flush(err error) {
	if err == nil {
		err = ErrDisconnected
	}

	d.mu.Lock()
	inflight := d.inflight
	queue := d.queue
	d.inflight = nil
	d.queue = nil
	d.mu.Unlock()

	if inflight != nil {
		inflight.timer.Stop()
		inflight.handle.resolve(nil, err)
	}
	for _, p := range queue {
		p.handle.resolve(nil, err)
	}
	count := len(queue)
	if inflight != nil {
		count++
	}
	if count > 0 {
		d.log.Debugf("flushed %d commands: %v", count, err)
	}
}

// Close flushes the queue with ErrDisconnected and rejects further Submits.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.Flush(ErrDisconnected)
}
