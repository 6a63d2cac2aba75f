package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA256 derives key material using HKDF-SHA256 (RFC 5869).
// All key derivation in the protocol (auth key, session key, per-frame IV
// input) goes through this one function.
//
// Parameters:
//   - inputKey: input keying material (IKM)
//   - salt: optional salt value (can be nil or empty)
//   - info: optional context/application-specific info (can be nil or empty)
//   - length: number of bytes to derive
//
// Returns the derived key material of the specified length.
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeriveKey16 is a convenience wrapper deriving a 16-byte AES key.
func DeriveKey16(inputKey, salt, info []byte) ([16]byte, error) {
	var key [16]byte
	b, err := HKDFSHA256(inputKey, salt, info, KeySize)
	if err != nil {
		return key, err
	}
	copy(key[:], b)
	return key, nil
}
