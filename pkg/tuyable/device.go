// Package tuyable is the exposed boundary of the protocol core. Callers hand
// it a paired device credential and an already connected transport link; Open
// negotiates a session key and returns a Device whose methods speak the
// category's domain vocabulary (positions, programs, locks) instead of raw
// datapoints.
//
// One Device per connection. The Device owns the session, the frame codecs,
// the reassembler and the command dispatcher; it never persists credentials
// and negotiates a fresh key on every Open.
package tuyable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"

	"github.com/tuyable/tuyable/pkg/datapoint"
	"github.com/tuyable/tuyable/pkg/device"
	"github.com/tuyable/tuyable/pkg/dispatch"
	"github.com/tuyable/tuyable/pkg/frame"
	"github.com/tuyable/tuyable/pkg/session"
	"github.com/tuyable/tuyable/pkg/transport"
)

// Device is one connected, session-established device.
type Device struct {
	cfg  Config
	cred session.Credential
	conn transport.Connection
	log  logging.LeveledLogger

	sess      *session.Session
	authCodec *frame.Codec
	mapper    device.Mapper
	fb        *device.FingerbotMapper // non-nil for the actuator category
	reasm     *frame.Reassembler

	mu    sync.Mutex
	codec *frame.Codec
	disp  *dispatch.Dispatcher

	negoCh chan negoReply

	cbMu     sync.Mutex
	onState  func(device.State)
	onButton func(pressed bool)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// negoReply is one decrypted session-negotiation response.
type negoReply struct {
	frameNumber uint16
	command     frame.CommandCode
	body        []byte
}

// Open negotiates a session over an already connected link and returns the
// device handle. The context bounds the whole negotiation; a key mismatch
// aborts immediately, lost handshake frames are retried up to the configured
// attempt budget.
//
// Open takes over the connection's notify handler. The connection itself
// stays owned by the caller; Close tears down the protocol state but not the
// link.
func Open(ctx context.Context, cred session.Credential, conn transport.Connection, cfg Config) (*Device, error) {
	cfg.applyDefaults()

	mapper, err := device.NewMapper(cfg.Category, cfg.ProductID)
	if err != nil {
		return nil, err
	}

	authKey, err := cred.AuthKey()
	if err != nil {
		return nil, err
	}
	authCodec, err := frame.NewCodec(authKey[:])
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:       cfg,
		cred:      cred,
		conn:      conn,
		log:       cfg.LoggerFactory.NewLogger("tuyable"),
		sess:      session.New(cred),
		authCodec: authCodec,
		mapper:    mapper,
		reasm:     frame.NewReassembler(),
		negoCh:    make(chan negoReply, 4),
		stopCh:    make(chan struct{}),
	}
	d.fb, _ = mapper.(*device.FingerbotMapper)

	conn.SetNotifyHandler(d.onNotify)

	if err := d.negotiate(ctx); err != nil {
		d.sess.Expire()
		return nil, err
	}

	key, err := d.sess.Key()
	if err != nil {
		return nil, err
	}
	codec, err := frame.NewCodec(key[:])
	if err != nil {
		return nil, err
	}
	disp, err := dispatch.New(dispatch.Config{
		Encode:        d.encodeCommand,
		Send:          conn.Send,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		LoggerFactory: cfg.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.codec = codec
	d.disp = disp
	d.mu.Unlock()

	d.log.Infof("session established with %s", cred.Redacted())

	d.wg.Add(1)
	go d.evictionLoop()
	if cfg.HeartbeatInterval > 0 {
		d.wg.Add(1)
		go d.heartbeatLoop()
	}
	return d, nil
}

// negotiate runs the key exchange with retry pacing. A fresh Exchange is
// created per attempt so nonces are never reused.
func (d *Device) negotiate(ctx context.Context) error {
	if err := d.sess.BeginNegotiation(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.RandomizationFactor = 0.1
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 1; attempt <= d.cfg.NegotiationAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.attemptExchange(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, session.ErrKeyMismatch) {
			d.log.Warnf("key mismatch negotiating with %s", d.cred.Redacted())
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Debugf("negotiation attempt %d failed: %v", attempt, err)
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %v",
		session.ErrNegotiationTimeout, d.cfg.NegotiationAttempts, lastErr)
}

// attemptExchange runs one start/response/finish/ack round trip. The session
// only becomes Established once the device has acknowledged the finish; until
// then the device may still be in setup and would drop data frames.
func (d *Device) attemptExchange(ctx context.Context) error {
	exch := d.cfg.NewExchange(d.cred)
	start, err := exch.Start()
	if err != nil {
		return err
	}

	// Drop replies left over from an earlier attempt.
drain:
	for {
		select {
		case <-d.negoCh:
		default:
			break drain
		}
	}

	fn := d.sess.NextFrameNumber()
	if err := d.sendSetup(fn, frame.CmdSessionStart, start); err != nil {
		return err
	}

	response, err := d.awaitSetupReply(ctx, fn, frame.CmdSessionResponse)
	if err != nil {
		return err
	}
	key, confirm, err := exch.Finish(response)
	if err != nil {
		return err
	}

	// The finish carries the confirmation tag; retransmit it byte-for-byte
	// until the device acks, so a lost finish cannot strand the two ends in
	// different states.
	fn2 := d.sess.NextFrameNumber()
	frags, err := d.authCodec.EncodePayload(fn2, frame.CmdSessionFinish, d.sess.NextSeq(), confirm, d.cfg.MTU)
	if err != nil {
		return err
	}
	for try := 1; ; try++ {
		for _, f := range frags {
			if err := d.conn.Send(f); err != nil {
				return fmt.Errorf("tuyable: send: %w", err)
			}
		}
		_, err := d.awaitSetupReply(ctx, fn2, frame.CmdSessionFinish)
		if err == nil {
			return d.sess.Establish(key)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if try >= d.cfg.NegotiationAttempts {
			return session.ErrNegotiationTimeout
		}
		d.log.Debugf("finish attempt %d unacknowledged, retransmitting", try)
	}
}

// sendSetup encodes and transmits one handshake payload under the auth key.
func (d *Device) sendSetup(frameNumber uint16, cmd frame.CommandCode, body []byte) error {
	frags, err := d.authCodec.EncodePayload(frameNumber, cmd, d.sess.NextSeq(), body, d.cfg.MTU)
	if err != nil {
		return err
	}
	for _, f := range frags {
		if err := d.conn.Send(f); err != nil {
			return fmt.Errorf("tuyable: send: %w", err)
		}
	}
	return nil
}

// awaitSetupReply waits for one handshake reply matching the frame number
// and command, bounded by the per-step timeout.
func (d *Device) awaitSetupReply(ctx context.Context, frameNumber uint16, cmd frame.CommandCode) ([]byte, error) {
	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()
	for {
		select {
		case reply := <-d.negoCh:
			if reply.frameNumber != frameNumber || reply.command != cmd {
				continue
			}
			return reply.body, nil
		case <-timer.C:
			return nil, session.ErrNegotiationTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// onNotify is the single inbound funnel. Routing follows the session state:
// setup frames during negotiation, data frames once established, everything
// else dropped.
func (d *Device) onNotify(b []byte) {
	switch d.sess.State() {
	case session.Negotiating:
		d.negotiationFrame(b)
	case session.Established:
		d.dataFrame(b)
	default:
	}
}

// negotiationFrame decodes a setup frame under the auth key and hands the
// response body to the waiting exchange.
func (d *Device) negotiationFrame(b []byte) {
	f, err := d.authCodec.DecodeFragment(b)
	if err != nil {
		d.log.Debugf("dropping setup fragment: %v", err)
		return
	}
	fr, err := d.reasm.Add(f)
	if err != nil || fr == nil {
		return
	}
	if fr.Command != frame.CmdSessionResponse && fr.Command != frame.CmdSessionFinish {
		d.log.Debugf("dropping %s frame during negotiation", fr.Command)
		return
	}
	_, body, err := d.authCodec.Open(*fr)
	if err != nil {
		d.log.Debugf("dropping setup frame %d: %v", fr.FrameNumber, err)
		return
	}
	select {
	case d.negoCh <- negoReply{frameNumber: fr.FrameNumber, command: fr.Command, body: body}:
	default:
	}
}

// dataFrame runs the established-session inbound path: checksum-verified
// decode, reassembly, decryption, replay check, then dispatcher correlation
// or report delivery. Every failure drops the frame with a debug log; inbound
// traffic never takes the connection down.
func (d *Device) dataFrame(b []byte) {
	d.mu.Lock()
	codec, disp := d.codec, d.disp
	d.mu.Unlock()
	if codec == nil || disp == nil {
		return
	}

	f, err := codec.DecodeFragment(b)
	if err != nil {
		d.log.Debugf("dropping fragment: %v", err)
		return
	}
	fr, err := d.reasm.Add(f)
	if err != nil {
		d.log.Debugf("dropping fragment of frame %d: %v", f.FrameNumber, err)
		return
	}
	if fr == nil {
		return
	}

	seq, dps, err := codec.OpenDatapoints(*fr)
	if err != nil {
		d.log.Debugf("dropping frame %d: %v", fr.FrameNumber, err)
		return
	}
	if err := d.sess.AcceptSeq(seq); err != nil {
		d.log.Debugf("dropping frame %d seq %d: %v", fr.FrameNumber, seq, err)
		return
	}

	solicited := disp.HandleResponse(fr.FrameNumber, dps)
	if fr.Command == frame.CmdStatus && len(dps) > 0 {
		d.handleReport(dps, !solicited)
	}
}

// handleReport maps a datapoint batch to device state and fires callbacks.
// An unsolicited switch report from a product with a physical button is the
// button-press event.
func (d *Device) handleReport(dps []datapoint.Datapoint, unsolicited bool) {
	st, unknown, err := d.mapper.Report(dps)
	if err != nil {
		d.log.Warnf("undecodable report: %v", err)
		return
	}
	for _, dp := range unknown {
		d.log.Debugf("ignoring unknown datapoint %d (%s)", dp.ID, dp.Type)
	}

	d.cbMu.Lock()
	onState, onButton := d.onState, d.onButton
	d.cbMu.Unlock()

	if unsolicited && onButton != nil && d.fb != nil && d.fb.HasManualControl() {
		if fs, ok := st.(device.FingerbotState); ok && fs.SwitchSeen {
			onButton(fs.Switch)
		}
	}
	if onState != nil {
		onState(st)
	}
}

// encodeCommand is the dispatcher's encode hook: one fresh frame number and
// sequence number per command, encrypted under the session key.
func (d *Device) encodeCommand(cmd dispatch.Command) (uint16, [][]byte, error) {
	d.mu.Lock()
	codec := d.codec
	d.mu.Unlock()

	fn := d.sess.NextFrameNumber()
	frags, err := codec.Encode(fn, cmd.Code, d.sess.NextSeq(), cmd.Datapoints, d.cfg.MTU)
	if err != nil {
		return 0, nil, err
	}
	return fn, frags, nil
}

// OnStateUpdate registers the state callback. It fires for every decodable
// status report, solicited or not, from the inbound goroutine; keep it short
// or hand off.
func (d *Device) OnStateUpdate(fn func(device.State)) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onState = fn
}

// OnButtonPress registers the physical-button callback. It only fires for
// actuator products with manual control, on unsolicited switch reports.
func (d *Device) OnButtonPress(fn func(pressed bool)) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onButton = fn
}

// Mapper returns the category mapper the device was opened with.
func (d *Device) Mapper() device.Mapper { return d.mapper }

// SessionState returns the session lifecycle state.
func (d *Device) SessionState() session.State { return d.sess.State() }

// Submit queues a raw protocol command and returns its handle.
func (d *Device) Submit(cmd dispatch.Command) (*dispatch.Handle, error) {
	return d.disp.Submit(cmd)
}

// control submits a datapoint write and waits for the acknowledgement.
func (d *Device) control(ctx context.Context, dps []datapoint.Datapoint) error {
	h, err := d.disp.Submit(dispatch.Command{
		Code:       frame.CmdControl,
		Datapoints: dps,
		Expect:     dispatch.ExpectAck,
	})
	if err != nil {
		return err
	}
	_, err = h.Wait(ctx)
	return err
}

// SetSwitch presses (true) or releases the actuator.
func (d *Device) SetSwitch(ctx context.Context, on bool) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	return d.control(ctx, d.fb.SetSwitch(on))
}

// SetMode selects the actuator operating mode.
func (d *Device) SetMode(ctx context.Context, mode device.FingerbotMode) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	return d.control(ctx, d.fb.SetMode(mode))
}

// SetPosition moves the actuator arm to a percent position.
func (d *Device) SetPosition(ctx context.Context, pos uint8) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	dps, err := d.fb.SetPosition(pos)
	if err != nil {
		return err
	}
	return d.control(ctx, dps)
}

// SetHoldTime sets how long the arm stays down, in seconds.
func (d *Device) SetHoldTime(ctx context.Context, seconds uint16) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	return d.control(ctx, d.fb.SetHoldTime(seconds))
}

// SetProgram stores a program on the device.
func (d *Device) SetProgram(ctx context.Context, p device.Program) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	dps, err := d.fb.SetProgram(p)
	if err != nil {
		return err
	}
	return d.control(ctx, dps)
}

// Unlock unlocks a smart lock.
func (d *Device) Unlock(ctx context.Context) error {
	lm, ok := d.mapper.(*device.LockMapper)
	if !ok {
		return ErrNotLock
	}
	return d.control(ctx, lm.Unlock())
}

// QueryDatapoints asks the device for its current datapoint values and
// returns the reported batch.
func (d *Device) QueryDatapoints(ctx context.Context) ([]datapoint.Datapoint, error) {
	h, err := d.disp.Submit(dispatch.Command{
		Code:   frame.CmdDPQuery,
		Expect: dispatch.ExpectReport,
	})
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// RunProgram executes a program host-side: each step moves the arm and holds,
// the whole sequence repeats per the program's repeat settings, and the arm
// finishes at the idle position. Cancelling the context stops between steps.
func (d *Device) RunProgram(ctx context.Context, prog device.Program) error {
	if d.fb == nil {
		return ErrNotFingerbot
	}
	if err := prog.Validate(); err != nil {
		return err
	}

	runs := 1 + int(prog.RepeatCount)
	for run := 0; prog.RepeatForever || run < runs; run++ {
		if len(prog.Steps) == 0 {
			break
		}
		for _, step := range prog.Steps {
			if err := d.SetPosition(ctx, step.Position); err != nil {
				return err
			}
			if step.Hold == 0 {
				continue
			}
			select {
			case <-time.After(time.Duration(step.Hold) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			case <-d.stopCh:
				return ErrClosed
			}
		}
	}
	return d.SetPosition(ctx, prog.IdlePosition)
}

// heartbeatLoop keeps the session alive. Missed heartbeats are logged, not
// fatal; the device decides when a silent link is dead.
func (d *Device) heartbeatLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			h, err := d.disp.Submit(dispatch.Command{
				Code:   frame.CmdHeartbeat,
				Expect: dispatch.ExpectAck,
			})
			if err != nil {
				return
			}
			if _, err := h.Result(); err != nil {
				d.log.Warnf("heartbeat failed: %v", err)
			}
		}
	}
}

// evictionLoop bounds the lifetime of incomplete reassembly buffers.
func (d *Device) evictionLoop() {
	defer d.wg.Done()
	interval := d.cfg.StaleAfter / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if n := d.reasm.EvictStale(d.cfg.StaleAfter); n > 0 {
				d.log.Debugf("evicted %d stale reassembly buffers", n)
			}
		}
	}
}

// Close expires the session and resolves every pending command with
// Disconnected. Idempotent. The underlying connection is the caller's to
// close; call Close on link loss as well as on shutdown.
func (d *Device) Close() error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.sess.Expire()
		d.disp.Close()
		d.wg.Wait()
		d.reasm.Reset()
		d.log.Infof("closed %s", d.cred.Redacted())
	})
	return nil
}
