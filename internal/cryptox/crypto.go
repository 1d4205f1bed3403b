// Package cryptox implements the server-side cryptographic surface of the
// vault: symmetric key wrapping/unwrapping with AES-GCM, password key
// derivation with argon2id, and share-token generation.
//
// Bulk content encryption never happens here. Clients encrypt file contents
// before upload; the server only ever re-wraps the per-file content key for
// sharing and unwraps it transiently during an authorized access.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// KDFParams carries the argon2id cost parameters stored alongside every
// share link, so a password can be re-derived with the exact settings used
// at share creation even if server defaults change later.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams returns the current argon2id cost settings for new
// share links.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// SaltSize is the length in bytes of a freshly generated KDF salt.
const SaltSize = 16

// shareTokenSize is the number of random bytes behind a share token.
// 32 bytes = 256 bits, comfortably above the 128-bit floor.
const shareTokenSize = 32

// DeriveKey derives a 32-byte wrapping key from a password and salt using
// argon2id with the given cost parameters.
func DeriveKey(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, 32)
}

// WrapKey encrypts a symmetric content key under the given key-encryption
// key using AES-GCM.
//
// The KEK must be a valid AES key length (16, 24, or 32 bytes). A new random
// nonce is generated for each call and returned separately; both the wrapped
// key and the nonce must be stored to unwrap later.
func WrapKey(key, kek []byte) (wrapped, nonce []byte, err error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	wrapped = aesgcm.Seal(nil, nonce, key, nil)
	return wrapped, nonce, nil
}

// UnwrapKey decrypts a wrapped content key with the given KEK and nonce.
// A wrong KEK fails GCM authentication and returns an error; callers must
// treat that error as an authentication failure, not report its detail.
func UnwrapKey(wrapped, nonce, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, nonce, wrapped, nil)
}

// NewShareToken generates an opaque, URL-safe share token backed by 256 bits
// of randomness. Tokens carry no embedded metadata.
func NewShareToken() (string, error) {
	b := make([]byte, shareTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSalt generates a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	b := make([]byte, SaltSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
