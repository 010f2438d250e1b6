// Package cipher implements the per-session symmetric encryption of
// chat frames.
//
// Each connection gets a fresh 32-byte key at handshake time and every
// frame on that connection is sealed with XChaCha20-Poly1305.  The
// nonce is random per frame and prepended to the box, so sealed frames
// are self-contained.  Authentication failures surface as errors from
// Open; callers treat them as recoverable frame-level faults.
package cipher

import (
	aeadcipher "crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"secchat/internal/errors"
)

// KeySize is the session key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Cipher seals and opens opaque payloads with a session key.
type Cipher interface {
	// Seal encrypts and authenticates plaintext.
	Seal(plaintext []byte) ([]byte, error)
	// Open decrypts and verifies a sealed payload.  It fails on
	// tampering, truncation, or a mismatched key.
	Open(sealed []byte) ([]byte, error)
}

// NewKey generates a fresh random session key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// New returns an XChaCha20-Poly1305 cipher for the given key.
func New(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", errors.ErrKeyWrongLength, len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &xchacha{aead: aead}, nil
}

type xchacha struct {
	aead aeadcipher.AEAD
}

func (c *xchacha) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *xchacha) Open(sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}
	plaintext, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return plaintext, nil
}
