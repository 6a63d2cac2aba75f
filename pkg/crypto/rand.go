package crypto

import "crypto/rand"

// NonceSize is the length of handshake nonces in bytes.
const NonceSize = 16

// RandomBytes fills a new slice of length n from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomNonce generates a fresh 16-byte handshake nonce.
func RandomNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}
	return nonce, nil
}
