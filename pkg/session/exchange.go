package session

import (
	"fmt"

	"github.com/tuyable/tuyable/pkg/crypto"
)

// Exchange is the pluggable key-negotiation strategy. The concrete nonce
// mixing differs between device firmware families and has to be validated
// against hardware captures, so the handshake driver only depends on this
// interface.
//
// The shape is fixed: the host opens with a payload (SessionStart), the
// device answers (SessionResponse), and Finish derives the session key and
// the confirmation payload the host sends back (SessionFinish).
type Exchange interface {
	// Start returns the opening handshake payload. Called once.
	Start() ([]byte, error)

	// Finish consumes the device's response payload and returns the
	// established session key together with the confirmation payload.
	// A failed verification returns ErrKeyMismatch.
	Finish(response []byte) (key [16]byte, confirm []byte, err error)
}

// Derivation labels. Pinned protocol constants; both sides must agree.
var (
	sessionKeyInfo = []byte("TUYA_BLE_SESSION_KEY")
)

// tagSize is the handshake confirmation tag size.
const tagSize = 16

// NonceExchange is the default strategy: both sides contribute a random
// 16-byte nonce, the session key is HKDF-SHA256 of the local key salted with
// both nonces, and each side proves key possession with a truncated HMAC
// over the other side's nonce.
type NonceExchange struct {
	cred      Credential
	hostNonce [crypto.NonceSize]byte
	started   bool
}

// NewNonceExchange creates the default exchange for a credential.
func NewNonceExchange(cred Credential) *NonceExchange {
	return &NonceExchange{cred: cred}
}

// Start generates the host nonce.
func (e *NonceExchange) Start() ([]byte, error) {
	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	e.hostNonce = nonce
	e.started = true
	return nonce[:], nil
}

// Finish verifies the device response `deviceNonce (16) | tag (16)` and
// derives the session key.
func (e *NonceExchange) Finish(response []byte) ([16]byte, []byte, error) {
	var key [16]byte
	if !e.started {
		return key, nil, fmt.Errorf("%w: Finish before Start", ErrBadExchangePayload)
	}
	if len(response) != crypto.NonceSize+tagSize {
		return key, nil, fmt.Errorf("%w: %d bytes", ErrBadExchangePayload, len(response))
	}
	deviceNonce := response[:crypto.NonceSize]
	tag := response[crypto.NonceSize:]

	key, err := deriveSessionKey(e.cred, e.hostNonce[:], deviceNonce)
	if err != nil {
		return key, nil, err
	}

	// The device proves it derived the same key by tagging our nonce.
	want := crypto.HMACSHA256(key[:], e.hostNonce[:])[:tagSize]
	if !crypto.HMACEqual(want, tag) {
		return [16]byte{}, nil, ErrKeyMismatch
	}

	confirm := crypto.HMACSHA256(key[:], deviceNonce)[:tagSize]
	return key, confirm, nil
}

// deriveSessionKey mixes the local key with both nonces.
func deriveSessionKey(cred Credential, hostNonce, deviceNonce []byte) ([16]byte, error) {
	salt := make([]byte, 0, len(hostNonce)+len(deviceNonce))
	salt = append(salt, hostNonce...)
	salt = append(salt, deviceNonce...)
	return crypto.DeriveKey16(cred.LocalKey[:], salt, sessionKeyInfo)
}

// NonceResponder is the device side of NonceExchange. The library itself is
// always the host; the responder exists for simulators and tests.
type NonceResponder struct {
	cred        Credential
	key         [16]byte
	deviceNonce [crypto.NonceSize]byte
}

// NewNonceResponder creates the device-side half for a credential.
func NewNonceResponder(cred Credential) *NonceResponder {
	return &NonceResponder{cred: cred}
}

// Respond consumes the host's opening payload and returns the response
// payload together with the derived session key.
func (r *NonceResponder) Respond(start []byte) ([]byte, [16]byte, error) {
	var zero [16]byte
	if len(start) != crypto.NonceSize {
		return nil, zero, fmt.Errorf("%w: %d bytes", ErrBadExchangePayload, len(start))
	}
	deviceNonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, zero, err
	}

	key, err := deriveSessionKey(r.cred, start, deviceNonce[:])
	if err != nil {
		return nil, zero, err
	}
	r.key = key
	r.deviceNonce = deviceNonce

	tag := crypto.HMACSHA256(key[:], start)[:tagSize]
	response := make([]byte, 0, crypto.NonceSize+tagSize)
	response = append(response, deviceNonce[:]...)
	response = append(response, tag...)
	return response, key, nil
}

// VerifyConfirm checks the host's confirmation payload against the derived
// key.
func (r *NonceResponder) VerifyConfirm(confirm []byte) error {
	want := crypto.HMACSHA256(r.key[:], r.deviceNonce[:])[:tagSize]
	if !crypto.HMACEqual(want, confirm) {
		return ErrKeyMismatch
	}
	return nil
}
