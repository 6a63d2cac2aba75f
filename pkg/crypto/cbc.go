// AES-CBC implementation for Tuya local protocol payload encryption.
// The protocol encrypts frame payloads with AES-128-CBC and PKCS#7 padding
// under a per-frame IV derived from the session key and frame number.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// Symmetric cipher constants.
const (
	// KeySize is the AES-128 key size in bytes. Local keys and session keys
	// are both this size.
	KeySize = 16

	// BlockSize is the AES block size (always 16 bytes).
	BlockSize = 16
)

// Errors for AES-CBC operations.
var (
	ErrInvalidKeySize   = errors.New("cbc: invalid key size, must be 16 bytes")
	ErrInvalidIVSize    = errors.New("cbc: invalid IV size, must be 16 bytes")
	ErrNotBlockAligned  = errors.New("cbc: ciphertext is not block aligned")
	ErrBadPadding       = errors.New("cbc: bad PKCS#7 padding")
	ErrEmptyCiphertext  = errors.New("cbc: empty ciphertext")
)

// EncryptCBC encrypts plaintext with AES-128-CBC and PKCS#7 padding.
// The output length is always a whole number of blocks; an empty plaintext
// yields one block of padding.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != BlockSize {
		return nil, ErrInvalidIVSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptCBC decrypts AES-128-CBC ciphertext and strips PKCS#7 padding.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != BlockSize {
		return nil, ErrInvalidIVSize
	}
	if len(ciphertext) == 0 {
		return nil, ErrEmptyCiphertext
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotBlockAligned, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

// pkcs7Pad appends PKCS#7 padding to a whole block boundary.
func pkcs7Pad(b []byte) []byte {
	n := BlockSize - len(b)%BlockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

// pkcs7Unpad validates and strips PKCS#7 padding.
func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%BlockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > BlockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
