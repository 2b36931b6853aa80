// Package seal binds persistent blobs to the enclave identity with
// AES-GCM-128. The sealed layout is IV ‖ CT ‖ TAG with a 12-byte random IV
// and a 16-byte authentication tag, the enclave measurement rides along as
// additional authenticated data. Unsealing fails closed on any tag
// mismatch.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// IVLen is the length of the GCM nonce prepended to the ciphertext.
	IVLen = 12
	// TagLen is the length of the GCM authentication tag.
	TagLen = 16
)

// Sealing errors.
var (
	// ErrAuthFail is returned when a sealed blob fails authentication,
	// either because it was tampered with or because it was sealed by a
	// different identity.
	ErrAuthFail = errors.New("sealed data authentication failed")
	// ErrFormat is returned for blobs too short to carry IV and tag.
	ErrFormat = errors.New("invalid sealed data format")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealing cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts data under the given key with aad as additional
// authenticated data and returns IV ‖ CT ‖ TAG.
func Seal(key, aad, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("sealing IV: %w", err)
	}
	// GCM appends CT ‖ TAG to the IV slice.
	return gcm.Seal(iv, iv, data, aad), nil
}

// Open authenticates and decrypts a blob produced by Seal. It returns
// ErrAuthFail for any authentication mismatch and ErrFormat for blobs not
// even long enough to parse.
func Open(key, aad, blob []byte) ([]byte, error) {
	if len(blob) < IVLen+TagLen {
		return nil, ErrFormat
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	data, err := gcm.Open(nil, blob[:IVLen], blob[IVLen:], aad)
	if err != nil {
		return nil, ErrAuthFail
	}
	return data, nil
}
