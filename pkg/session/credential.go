package session

import (
	"fmt"

	"github.com/tuyable/tuyable/pkg/crypto"
)

// LocalKeySize is the size of a device local key in bytes.
const LocalKeySize = 16

// Credential identifies one paired device: the cloud-issued device id and
// the 16-byte local key. Credentials are supplied by the caller and owned by
// the caller; this module never persists them.
type Credential struct {
	DeviceID string
	LocalKey [LocalKeySize]byte
}

// NewCredential builds a credential from a device id and a raw local key.
// Tuya local keys are 16 ASCII characters, so a string key works directly.
func NewCredential(deviceID string, localKey []byte) (Credential, error) {
	if len(localKey) != LocalKeySize {
		return Credential{}, fmt.Errorf("%w: got %d bytes", ErrInvalidLocalKey, len(localKey))
	}
	c := Credential{DeviceID: deviceID}
	copy(c.LocalKey[:], localKey)
	return c, nil
}

// Redacted returns a log-safe representation. The local key is never logged
// in full.
func (c Credential) Redacted() string {
	return fmt.Sprintf("%s (local key …%02x%02x)", c.DeviceID, c.LocalKey[14], c.LocalKey[15])
}

// authKeyInfo is the derivation label for the pre-session auth key.
var authKeyInfo = []byte("TUYA_BLE_AUTH_KEY")

// AuthKey derives the key protecting session-negotiation frames. It is
// pinned to the credential, so only a host holding the local key can open a
// negotiation.
func (c Credential) AuthKey() ([16]byte, error) {
	return crypto.DeriveKey16(c.LocalKey[:], nil, authKeyInfo)
}
