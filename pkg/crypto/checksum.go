package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// ChecksumSize is the length of the truncated-HMAC frame checksum in bytes.
const ChecksumSize = 8

// HMACSHA256 computes the HMAC-SHA256 of a message using the given key.
// Returns the full 32-byte MAC.
func HMACSHA256(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// HMACEqual compares two MACs for equality in constant time.
// This should be used instead of bytes.Equal to prevent timing attacks.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}

// Checksum computes the truncated-HMAC integrity check appended to each
// frame fragment. It covers the fragment header and ciphertext and is keyed
// by the same key the payload is encrypted under, so a frame forged or
// corrupted in transit is rejected before any decryption is attempted.
func Checksum(key, headerAndCiphertext []byte) [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], HMACSHA256(key, headerAndCiphertext))
	return sum
}

// VerifyChecksum reports whether the given checksum matches the data, in
// constant time.
func VerifyChecksum(key, headerAndCiphertext []byte, sum []byte) bool {
	want := Checksum(key, headerAndCiphertext)
	return hmac.Equal(want[:], sum)
}

// frameIVInfo is the derivation label for per-frame IVs.
var frameIVInfo = []byte("TUYA_BLE_FRAME_IV")

// FrameIV derives the CBC IV for one frame from the payload key and the
// frame number. Frame numbers wrap at 16 bits; the derivation only has to
// separate frames that are close in time, not be globally unique.
func FrameIV(key []byte, frameNumber uint16) [BlockSize]byte {
	var num [2]byte
	binary.BigEndian.PutUint16(num[:], frameNumber)

	h := hmac.New(sha256.New, key)
	h.Write(frameIVInfo)
	h.Write(num[:])

	var iv [BlockSize]byte
	copy(iv[:], h.Sum(nil))
	return iv
}
