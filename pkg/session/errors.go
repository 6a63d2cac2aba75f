package session

import "errors"

// Errors returned by the session package.
var (
	// ErrKeyMismatch is returned when the device's handshake tag does not
	// verify under the derived session key. The credential is wrong; this
	// is fatal for the credential and must not be retried.
	ErrKeyMismatch = errors.New("session: key mismatch, wrong local key")

	// ErrNegotiationTimeout is returned when the device does not answer a
	// negotiation frame in time. Retryable up to a bounded attempt count.
	ErrNegotiationTimeout = errors.New("session: negotiation timed out")

	// ErrBadExchangePayload is returned for malformed handshake payloads.
	ErrBadExchangePayload = errors.New("session: malformed exchange payload")

	// ErrNotEstablished is returned when an operation requires an
	// established session.
	ErrNotEstablished = errors.New("session: not established")

	// ErrExpired is returned for operations on an expired session.
	ErrExpired = errors.New("session: expired")

	// ErrInvalidTransition is returned for state transitions the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrReplayOrOutOfOrder is returned when a decoded sequence number is
	// not greater than the last accepted one for that direction.
	ErrReplayOrOutOfOrder = errors.New("session: replay or out-of-order sequence number")

	// ErrInvalidLocalKey is returned for credentials whose local key is not
	// 16 bytes.
	ErrInvalidLocalKey = errors.New("session: local key must be 16 bytes")
)
