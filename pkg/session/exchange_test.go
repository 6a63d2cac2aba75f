package session

import (
	"errors"
	"testing"
)

func TestNonceExchangeAgainstResponder(t *testing.T) {
	cred := testCredential(t)
	host := NewNonceExchange(cred)
	device := NewNonceResponder(cred)

	start, err := host.Start()
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	response, deviceKey, err := device.Respond(start)
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	hostKey, confirm, err := host.Finish(response)
	if err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	if hostKey != deviceKey {
		t.Error("host and device derived different session keys")
	}
	if hostKey == ([16]byte{}) {
		t.Error("derived session key is all zero")
	}
	if err := device.VerifyConfirm(confirm); err != nil {
		t.Errorf("VerifyConfirm() error: %v", err)
	}
}

func TestNonceExchangeKeyMismatch(t *testing.T) {
	host := NewNonceExchange(testCredential(t))

	wrong, err := NewCredential("bf138bd1a8b7test", []byte("fedcba9876543210"))
	if err != nil {
		t.Fatal(err)
	}
	device := NewNonceResponder(wrong)

	start, err := host.Start()
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	response, _, err := device.Respond(start)
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if _, _, err := host.Finish(response); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("Finish() error = %v, want ErrKeyMismatch", err)
	}
}

func TestNonceExchangePayloadValidation(t *testing.T) {
	cred := testCredential(t)

	host := NewNonceExchange(cred)
	if _, _, err := host.Finish(make([]byte, 32)); !errors.Is(err, ErrBadExchangePayload) {
		t.Errorf("Finish() before Start(): error = %v, want ErrBadExchangePayload", err)
	}

	host = NewNonceExchange(cred)
	if _, err := host.Start(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := host.Finish(make([]byte, 7)); !errors.Is(err, ErrBadExchangePayload) {
		t.Errorf("short response: error = %v, want ErrBadExchangePayload", err)
	}

	device := NewNonceResponder(cred)
	if _, _, err := device.Respond(make([]byte, 3)); !errors.Is(err, ErrBadExchangePayload) {
		t.Errorf("short start: error = %v, want ErrBadExchangePayload", err)
	}
}

func TestSessionKeysDifferPerHandshake(t *testing.T) {
	cred := testCredential(t)

	run := func() [16]byte {
		host := NewNonceExchange(cred)
		device := NewNonceResponder(cred)
		start, err := host.Start()
		if err != nil {
			t.Fatal(err)
		}
		response, _, err := device.Respond(start)
		if err != nil {
			t.Fatal(err)
		}
		key, _, err := host.Finish(response)
		if err != nil {
			t.Fatal(err)
		}
		return key
	}

	if run() == run() {
		t.Error("two handshakes derived the same session key")
	}
}

func TestAuthKeyDeterministic(t *testing.T) {
	cred := testCredential(t)
	a, err := cred.AuthKey()
	if err != nil {
		t.Fatalf("AuthKey() error: %v", err)
	}
	b, err := cred.AuthKey()
	if err != nil {
		t.Fatalf("AuthKey() error: %v", err)
	}
	if a != b {
		t.Error("AuthKey() is not deterministic")
	}
	if a == cred.LocalKey {
		t.Error("auth key equals the raw local key")
	}
}
