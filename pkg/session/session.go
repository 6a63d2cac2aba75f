// Package session implements the cryptographic and sequencing context of one
// connected device: credential handling, the pluggable key-negotiation
// strategy, the session state machine and both directions of sequence-number
// bookkeeping.
//
// A Session belongs to exactly one connection. It is created on connect,
// expired on disconnect and never persisted; reconnecting always negotiates
// a fresh key.
package session

import "sync"

// State is the session lifecycle state.
type State int

const (
	// Unauthenticated is the initial state, before negotiation starts.
	Unauthenticated State = iota

	// Negotiating means the key exchange is in flight.
	Negotiating

	// Established means the session key is agreed and frames flow.
	Established

	// Expired is terminal: transport disconnect or key mismatch. A new
	// connection gets a new Session.
	Expired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case Negotiating:
		return "Negotiating"
	case Established:
		return "Established"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Session holds the live protocol state of one device connection.
// Safe for concurrent use.
type Session struct {
	mu sync.Mutex

	cred  Credential
	state State
	key   [16]byte

	send     *Counter
	recv     *ReplayGuard
	frameNum uint16
}

// New creates an unauthenticated session for a credential.
func New(cred Credential) *Session {
	return &Session{
		cred:  cred,
		state: Unauthenticated,
		send:  NewCounter(),
		recv:  NewReplayGuard(),
	}
}

// Credential returns the credential the session was created with.
func (s *Session) Credential() Credential {
	return s.cred
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginNegotiation moves Unauthenticated → Negotiating.
func (s *Session) BeginNegotiation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Unauthenticated:
		s.state = Negotiating
		return nil
	case Expired:
		return ErrExpired
	default:
		return ErrInvalidTransition
	}
}

// Establish installs the negotiated session key and resets both sequence
// counters to their initial values.
func (s *Session) Establish(key [16]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Negotiating:
		s.state = Established
		s.key = key
		s.send.Reset()
		s.recv.Reset()
		return nil
	case Expired:
		return ErrExpired
	default:
		return ErrInvalidTransition
	}
}

// Expire moves the session to Expired from any state. Idempotent. Called on
// transport disconnect or key mismatch.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Expired
	s.key = [16]byte{}
}

// Key returns the session key of an established session.
func (s *Session) Key() ([16]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established {
		return [16]byte{}, ErrNotEstablished
	}
	return s.key, nil
}

// NextFrameNumber returns the next outgoing frame number. Frame numbers are
// 16-bit and wrap; zero is skipped so that it never collides with an
// uninitialized correlation slot.
func (s *Session) NextFrameNumber() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameNum++
	if s.frameNum == 0 {
		s.frameNum = 1
	}
	return s.frameNum
}

// NextSeq returns the next outgoing sequence number.
func (s *Session) NextSeq() uint32 {
	return s.send.Next()
}

// AcceptSeq validates and records a received sequence number. This is the
// accept-and-advance step: call it after a frame has fully decrypted and
// decoded, deliver on nil, drop on error.
func (s *Session) AcceptSeq(seq uint32) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != Established {
		return ErrNotEstablished
	}
	return s.recv.Accept(seq)
}

// LastAcceptedSeq returns the last accepted receive sequence number.
func (s *Session) LastAcceptedSeq() uint32 {
	return s.recv.Last()
}
