package frame

import "errors"

// Errors returned by the frame package. Every one of these invalidates a
// single frame or fragment, never the session or the process.
var (
	// ErrBadMagic is returned when a fragment does not start with the
	// protocol magic.
	ErrBadMagic = errors.New("frame: bad magic")

	// ErrUnsupportedVersion is returned for protocol versions other than 3.
	ErrUnsupportedVersion = errors.New("frame: unsupported protocol version")

	// ErrTruncated is returned when a fragment is shorter than its header
	// and declared length require.
	ErrTruncated = errors.New("frame: truncated fragment")

	// ErrChecksumMismatch is returned when the fragment checksum does not
	// verify. Checked before any decryption is attempted.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")

	// ErrFragmentBounds is returned for inconsistent fragment index/total
	// fields (index >= total, total of zero, or a total disagreeing with
	// earlier fragments of the same frame).
	ErrFragmentBounds = errors.New("frame: fragment index/total out of bounds")

	// ErrPayloadTooShort is returned when a decrypted payload is too short
	// to carry the sequence number.
	ErrPayloadTooShort = errors.New("frame: payload too short")

	// ErrMTUTooSmall is returned when the configured MTU cannot fit a
	// fragment header, checksum and at least one ciphertext byte.
	ErrMTUTooSmall = errors.New("frame: MTU too small")

	// ErrInvalidKey is returned for keys that are not 16 bytes.
	ErrInvalidKey = errors.New("frame: invalid key size, must be 16 bytes")
)
