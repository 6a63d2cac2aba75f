// Package frame implements the wire framing of the Tuya local protocol:
// encryption, checksumming and fragmentation of outgoing payloads, and the
// reverse path for inbound bytes.
//
// Fragment wire layout (big-endian):
//
//	magic (2 = 0x55AA) | version (1 = 0x03) | flags (1) |
//	frame number (2) | command (2) | length (2) |
//	fragment index (1) | fragment total (1)      — only if flags&FlagFragmented
//	ciphertext (length bytes) | checksum (8)
//
// The payload of a frame is `sequence number (4) | body` encrypted with
// AES-128-CBC under an IV derived from the key and the frame number. The
// checksum is a truncated HMAC over header plus ciphertext, keyed with the
// same key, and is verified before anything is decrypted. An oversized
// payload is encrypted once and its ciphertext split across fragments that
// share a frame number; each fragment carries its own header and checksum.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/tuyable/tuyable/pkg/crypto"
	"github.com/tuyable/tuyable/pkg/datapoint"
)

// Wire format constants.
const (
	// Magic is the two-byte frame prefix.
	Magic uint16 = 0x55AA

	// Version is the protocol version this codec speaks.
	Version uint8 = 0x03

	// FlagFragmented marks a fragment of a multi-fragment frame.
	FlagFragmented uint8 = 0x01

	// headerSize is the fixed fragment header size:
	// magic (2) + version (1) + flags (1) + frame number (2) +
	// command (2) + length (2).
	headerSize = 10

	// fragFieldsSize is the extra header size of a fragmented frame.
	fragFieldsSize = 2

	// seqSize is the sequence number prefix inside the encrypted payload.
	seqSize = 4

	// DefaultMTU is the default transport MTU, sized for a BLE link with
	// data length extension.
	DefaultMTU = 244

	// MaxFragments bounds fragment totals; with it, a frame tops out at a
	// little under 64 KiB of ciphertext at the default MTU.
	MaxFragments = 255
)

// Fragment is one decoded wire unit: a whole frame, or one piece of a
// fragmented frame. Ciphertext is still encrypted; checksum verification has
// already happened by the time a Fragment exists.
type Fragment struct {
	FrameNumber uint16
	Command     CommandCode
	Fragmented  bool
	Index       uint8
	Total       uint8
	Ciphertext  []byte
}

// Frame is a fully reassembled frame ready to be opened.
type Frame struct {
	FrameNumber uint16
	Command     CommandCode
	Ciphertext  []byte
}

// Codec encrypts and frames outgoing payloads and decodes inbound fragments
// under one fixed key. It is stateless and safe for concurrent use; sequence
// bookkeeping lives with the session.
type Codec struct {
	key []byte
}

// NewCodec creates a codec bound to a 16-byte payload key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != crypto.KeySize {
		return nil, ErrInvalidKey
	}
	return &Codec{key: append([]byte(nil), key...)}, nil
}

// EncodePayload encrypts a raw payload and returns the wire bytes of each
// fragment, ready to transmit in order.
func (c *Codec) EncodePayload(frameNumber uint16, cmd CommandCode, seq uint32, body []byte, mtu int) ([][]byte, error) {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	// Worst-case overhead: fragmented header plus checksum.
	maxChunk := mtu - headerSize - fragFieldsSize - crypto.ChecksumSize
	if maxChunk < 1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMTUTooSmall, mtu)
	}

	plaintext := make([]byte, seqSize+len(body))
	binary.BigEndian.PutUint32(plaintext[:seqSize], seq)
	copy(plaintext[seqSize:], body)

	iv := crypto.FrameIV(c.key, frameNumber)
	ciphertext, err := crypto.EncryptCBC(c.key, iv[:], plaintext)
	if err != nil {
		return nil, err
	}

	// Single fragment if the whole ciphertext fits an unfragmented frame.
	if len(ciphertext) <= mtu-headerSize-crypto.ChecksumSize {
		return [][]byte{c.seal(frameNumber, cmd, false, 0, 1, ciphertext)}, nil
	}

	total := (len(ciphertext) + maxChunk - 1) / maxChunk
	if total > MaxFragments {
		return nil, fmt.Errorf("%w: %d fragments needed", ErrFragmentBounds, total)
	}

	frags := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		lo := i * maxChunk
		hi := lo + maxChunk
		if hi > len(ciphertext) {
			hi = len(ciphertext)
		}
		frags = append(frags, c.seal(frameNumber, cmd, true, uint8(i), uint8(total), ciphertext[lo:hi]))
	}
	return frags, nil
}

// Encode marshals a batch of datapoints and encrypts them into wire
// fragments.
func (c *Codec) Encode(frameNumber uint16, cmd CommandCode, seq uint32, dps []datapoint.Datapoint, mtu int) ([][]byte, error) {
	body, err := datapoint.Marshal(dps)
	if err != nil {
		return nil, err
	}
	return c.EncodePayload(frameNumber, cmd, seq, body, mtu)
}

// seal builds the wire bytes of one fragment: header, ciphertext chunk and
// checksum.
func (c *Codec) seal(frameNumber uint16, cmd CommandCode, fragmented bool, index, total uint8, chunk []byte) []byte {
	size := headerSize + len(chunk) + crypto.ChecksumSize
	if fragmented {
		size += fragFieldsSize
	}
	out := make([]byte, 0, size)

	out = binary.BigEndian.AppendUint16(out, Magic)
	out = append(out, Version)
	var flags uint8
	if fragmented {
		flags |= FlagFragmented
	}
	out = append(out, flags)
	out = binary.BigEndian.AppendUint16(out, frameNumber)
	out = binary.BigEndian.AppendUint16(out, uint16(cmd))
	out = binary.BigEndian.AppendUint16(out, uint16(len(chunk)))
	if fragmented {
		out = append(out, index, total)
	}
	out = append(out, chunk...)

	sum := crypto.Checksum(c.key, out)
	return append(out, sum[:]...)
}

// DecodeFragment parses and validates one wire fragment. The checksum is
// verified before anything else is trusted; a corrupt fragment never reaches
// the cipher.
func (c *Codec) DecodeFragment(b []byte) (Fragment, error) {
	if len(b) < headerSize+crypto.ChecksumSize {
		return Fragment{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	if binary.BigEndian.Uint16(b[0:2]) != Magic {
		return Fragment{}, ErrBadMagic
	}
	if b[2] != Version {
		return Fragment{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[2])
	}

	flags := b[3]
	fragmented := flags&FlagFragmented != 0
	hdrLen := headerSize
	if fragmented {
		hdrLen += fragFieldsSize
	}
	length := int(binary.BigEndian.Uint16(b[8:10]))
	if len(b) != hdrLen+length+crypto.ChecksumSize {
		return Fragment{}, fmt.Errorf("%w: have %d bytes, header declares %d",
			ErrTruncated, len(b), hdrLen+length+crypto.ChecksumSize)
	}

	body := b[:hdrLen+length]
	sum := b[hdrLen+length:]
	if !crypto.VerifyChecksum(c.key, body, sum) {
		return Fragment{}, ErrChecksumMismatch
	}

	f := Fragment{
		FrameNumber: binary.BigEndian.Uint16(b[4:6]),
		Command:     CommandCode(binary.BigEndian.Uint16(b[6:8])),
		Fragmented:  fragmented,
		Ciphertext:  append([]byte(nil), b[hdrLen:hdrLen+length]...),
	}
	if fragmented {
		f.Index = b[10]
		f.Total = b[11]
		if f.Total == 0 || f.Index >= f.Total {
			return Fragment{}, fmt.Errorf("%w: index %d of %d", ErrFragmentBounds, f.Index, f.Total)
		}
	}
	return f, nil
}

// Open decrypts a reassembled frame and splits off the sequence number.
func (c *Codec) Open(f Frame) (seq uint32, body []byte, err error) {
	iv := crypto.FrameIV(c.key, f.FrameNumber)
	plaintext, err := crypto.DecryptCBC(c.key, iv[:], f.Ciphertext)
	if err != nil {
		return 0, nil, err
	}
	if len(plaintext) < seqSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(plaintext))
	}
	return binary.BigEndian.Uint32(plaintext[:seqSize]), plaintext[seqSize:], nil
}

// OpenDatapoints decrypts a reassembled frame and decodes its body as a
// datapoint batch.
func (c *Codec) OpenDatapoints(f Frame) (uint32, []datapoint.Datapoint, error) {
	seq, body, err := c.Open(f)
	if err != nil {
		return 0, nil, err
	}
	dps, err := datapoint.DecodeAll(body)
	if err != nil {
		return 0, nil, err
	}
	return seq, dps, nil
}
