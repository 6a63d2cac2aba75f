package tuyable

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pion/logging"

	"github.com/tuyable/tuyable/pkg/datapoint"
	"github.com/tuyable/tuyable/pkg/device"
	"github.com/tuyable/tuyable/pkg/frame"
	"github.com/tuyable/tuyable/pkg/session"
	"github.com/tuyable/tuyable/pkg/transport"
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// ProductID selects the simulated product's datapoint ids (default a
	// Fingerbot Plus).
	ProductID string

	// MTU caps the wire size of outgoing fragments (default
	// frame.DefaultMTU).
	MTU int

	// LoggerFactory provides the simulator logger
	// (default logging.NewDefaultLoggerFactory()).
	LoggerFactory logging.LoggerFactory
}

// Simulator is a protocol-correct in-memory device: the responder side of
// the key exchange, a datapoint store, and the ack/report behavior of real
// firmware. It exists for tests and demos; it speaks the same wire format as
// a real device, down to checksums and replay protection.
type Simulator struct {
	cred session.Credential
	conn transport.Connection
	log  logging.LeveledLogger
	mtu  int
	info device.FingerbotInfo

	authCodec *frame.Codec
	reasm     *frame.Reassembler

	mu          sync.Mutex
	responder   *session.NonceResponder
	pendingKey  [16]byte
	codec       *frame.Codec
	established bool
	frameNum    uint16
	send        *session.Counter
	guard       *session.ReplayGuard
	store       map[uint8]datapoint.Datapoint
	dropNext    int
	heartbeats  int
}

// NewSimulator attaches a simulated device to the device end of a link.
func NewSimulator(cred session.Credential, conn transport.Connection, cfg SimulatorConfig) (*Simulator, error) {
	if cfg.ProductID == "" {
		cfg.ProductID = "blliqpsj"
	}
	if cfg.MTU <= 0 {
		cfg.MTU = frame.DefaultMTU
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	product, ok := device.LookupProduct(device.CategoryFingerbot, cfg.ProductID)
	var info device.FingerbotInfo
	if ok && product.Fingerbot != nil {
		info = *product.Fingerbot
	}

	authKey, err := cred.AuthKey()
	if err != nil {
		return nil, err
	}
	authCodec, err := frame.NewCodec(authKey[:])
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cred:      cred,
		conn:      conn,
		log:       cfg.LoggerFactory.NewLogger("simulator"),
		mtu:       cfg.MTU,
		info:      info,
		authCodec: authCodec,
		reasm:     frame.NewReassembler(),
		// Device-initiated frame numbers live in the upper half so they
		// never collide with the host's.
		frameNum: 0x8000,
		send:     session.NewCounter(),
		guard:    session.NewReplayGuard(),
		store:    make(map[uint8]datapoint.Datapoint),
	}
	conn.SetNotifyHandler(s.handle)
	return s, nil
}

// Established reports whether a session key is in place.
func (s *Simulator) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

// Heartbeats returns how many keep-alives the simulator has answered.
func (s *Simulator) Heartbeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

// DropNext makes the simulator ignore the next n inbound notifications,
// simulating lost frames.
func (s *Simulator) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = n
}

// SetDatapoint seeds or overwrites one stored datapoint.
func (s *Simulator) SetDatapoint(dp datapoint.Datapoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[dp.ID] = dp
}

// Datapoint returns one stored datapoint.
func (s *Simulator) Datapoint(id uint8) (datapoint.Datapoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dp, ok := s.store[id]
	return dp, ok
}

// Report pushes an unsolicited status report to the host.
func (s *Simulator) Report(dps []datapoint.Datapoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.established {
		return session.ErrNotEstablished
	}
	for _, dp := range dps {
		s.store[dp.ID] = dp
	}
	return s.replyLocked(s.codec, s.nextFrameNumLocked(), frame.CmdStatus, dps)
}

// PressButton simulates a physical button press: the switch datapoint flips
// device-side and an unsolicited report goes out.
func (s *Simulator) PressButton(pressed bool) error {
	if s.info.Switch == 0 {
		return fmt.Errorf("tuyable: simulated product has no switch datapoint")
	}
	return s.Report([]datapoint.Datapoint{datapoint.NewBool(s.info.Switch, pressed)})
}

// handle is the simulator's inbound funnel. Setup frames stay under the auth
// key even after establishment so a retransmitted finish, whose earlier ack
// was lost, gets acked again instead of failing the session-codec checksum.
func (s *Simulator) handle(b []byte) {
	s.mu.Lock()
	if s.dropNext > 0 {
		s.dropNext--
		s.mu.Unlock()
		return
	}
	established := s.established
	s.mu.Unlock()

	if f, err := s.authCodec.DecodeFragment(b); err == nil && f.Command.IsSessionSetup() {
		s.setupFrame(f)
		return
	}
	if established {
		s.dataFrame(b)
	}
}

// setupFrame handles the device side of key negotiation.
func (s *Simulator) setupFrame(f frame.Fragment) {
	fr, err := s.reasm.Add(f)
	if err != nil || fr == nil {
		return
	}
	_, body, err := s.authCodec.Open(*fr)
	if err != nil {
		s.log.Debugf("dropping setup frame %d: %v", fr.FrameNumber, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch fr.Command {
	case frame.CmdSessionStart:
		// A new start replaces any earlier session; the host only
		// renegotiates when it never saw the finish ack.
		s.responder = session.NewNonceResponder(s.cred)
		resp, key, err := s.responder.Respond(body)
		if err != nil {
			s.log.Debugf("rejecting session start: %v", err)
			return
		}
		s.pendingKey = key
		s.established = false
		if err := s.replyLocked(s.authCodec, fr.FrameNumber, frame.CmdSessionResponse, nil, resp...); err != nil {
			s.log.Warnf("session response failed: %v", err)
		}
	case frame.CmdSessionFinish:
		if s.responder == nil {
			return
		}
		if err := s.responder.VerifyConfirm(body); err != nil {
			s.log.Warnf("rejecting session finish: %v", err)
			return
		}
		if !s.established {
			codec, err := frame.NewCodec(s.pendingKey[:])
			if err != nil {
				return
			}
			s.codec = codec
			s.established = true
			s.send.Reset()
			s.guard.Reset()
			s.log.Infof("session established with host")
		}
		// Ack every verified finish; the previous ack may have been lost.
		if err := s.replyLocked(s.authCodec, fr.FrameNumber, frame.CmdSessionFinish, nil); err != nil {
			s.log.Warnf("session finish ack failed: %v", err)
		}
	default:
		s.log.Debugf("dropping %s frame during setup", fr.Command)
	}
}

// dataFrame handles established-session traffic: acks controls with an
// echoing status report, answers queries, answers heartbeats.
func (s *Simulator) dataFrame(b []byte) {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()

	f, err := codec.DecodeFragment(b)
	if err != nil {
		s.log.Debugf("dropping fragment: %v", err)
		return
	}
	fr, err := s.reasm.Add(f)
	if err != nil || fr == nil {
		return
	}
	seq, dps, err := codec.OpenDatapoints(*fr)
	if err != nil {
		s.log.Debugf("dropping frame %d: %v", fr.FrameNumber, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard.Accept(seq); err != nil {
		s.log.Debugf("dropping frame %d seq %d: %v", fr.FrameNumber, seq, err)
		return
	}

	switch fr.Command {
	case frame.CmdControl:
		for _, dp := range dps {
			s.store[dp.ID] = dp
		}
		if err := s.replyLocked(codec, fr.FrameNumber, frame.CmdStatus, dps); err != nil {
			s.log.Warnf("control ack failed: %v", err)
		}
	case frame.CmdDPQuery:
		if err := s.replyLocked(codec, fr.FrameNumber, frame.CmdStatus, s.storedLocked()); err != nil {
			s.log.Warnf("query report failed: %v", err)
		}
	case frame.CmdHeartbeat:
		s.heartbeats++
		if err := s.replyLocked(codec, fr.FrameNumber, frame.CmdHeartbeat, nil); err != nil {
			s.log.Warnf("heartbeat ack failed: %v", err)
		}
	default:
		s.log.Debugf("ignoring %s frame", fr.Command)
	}
}

// storedLocked returns the datapoint store in id order. Caller holds s.mu.
func (s *Simulator) storedLocked() []datapoint.Datapoint {
	ids := make([]int, 0, len(s.store))
	for id := range s.store {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	dps := make([]datapoint.Datapoint, 0, len(ids))
	for _, id := range ids {
		dps = append(dps, s.store[uint8(id)])
	}
	return dps
}

// nextFrameNumLocked returns the next device-initiated frame number. Caller
// holds s.mu.
func (s *Simulator) nextFrameNumLocked() uint16 {
	s.frameNum++
	if s.frameNum < 0x8000 {
		s.frameNum = 0x8001
	}
	return s.frameNum
}

// replyLocked encodes and sends one frame. Datapoint replies marshal dps;
// raw replies pass body bytes. Caller holds s.mu.
func (s *Simulator) replyLocked(codec *frame.Codec, frameNumber uint16, cmd frame.CommandCode, dps []datapoint.Datapoint, body ...byte) error {
	var frags [][]byte
	var err error
	if body != nil {
		frags, err = codec.EncodePayload(frameNumber, cmd, s.send.Next(), body, s.mtu)
	} else {
		frags, err = codec.Encode(frameNumber, cmd, s.send.Next(), dps, s.mtu)
	}
	if err != nil {
		return err
	}
	for _, f := range frags {
		if err := s.conn.Send(f); err != nil {
			return err
		}
	}
	return nil
}
