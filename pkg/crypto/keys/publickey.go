package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// SignatureLen is the length of a fixed-width r‖s P-256 signature.
const SignatureLen = 64

// PublicKeyLen is the length of an encoded public key (X‖Y coordinates,
// 32 bytes each, no prefix byte).
const PublicKeyLen = 64

// PublicKey represents the public part of an enclave signing key. It is
// encoded on the wire as 64 bytes of X and Y coordinates.
type PublicKey ecdsa.PublicKey

// NewPublicKeyFromBytes returns a public key created from the given X‖Y
// coordinate bytes.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeyLen {
		return nil, fmt.Errorf(
			"invalid byte length: expected %d bytes got %d", PublicKeyLen, len(b),
		)
	}
	var (
		c = elliptic.P256()
		x = new(big.Int).SetBytes(b[:32])
		y = new(big.Int).SetBytes(b[32:])
	)
	if !c.IsOnCurve(x, y) {
		return nil, errors.New("encoded point is not on the P-256 curve")
	}
	return &PublicKey{Curve: c, X: x, Y: y}, nil
}

// Bytes returns the byte array representation of the public key.
func (p *PublicKey) Bytes() []byte {
	if p.IsInfinity() {
		return make([]byte, PublicKeyLen)
	}
	b := make([]byte, PublicKeyLen)
	_ = p.X.FillBytes(b[:32])
	_ = p.Y.FillBytes(b[32:])
	return b
}

// IsInfinity checks if the key is infinite (null, basically).
func (p *PublicKey) IsInfinity() bool {
	return p.X == nil && p.Y == nil
}

// String implements the Stringer interface.
func (p *PublicKey) String() string {
	return hex.EncodeToString(p.Bytes())
}

// Equal returns true in case public keys are equal.
func (p *PublicKey) Equal(key *PublicKey) bool {
	if p == key {
		return true
	}
	if p == nil || key == nil {
		return false
	}
	return (*ecdsa.PublicKey)(p).Equal((*ecdsa.PublicKey)(key))
}

// Verify returns true if the signature is valid and corresponds to the hash
// and public key.
func (p *PublicKey) Verify(signature []byte, hash []byte) bool {
	if p.X == nil || p.Y == nil || len(signature) != SignatureLen {
		return false
	}
	rBytes := new(big.Int).SetBytes(signature[0:32])
	sBytes := new(big.Int).SetBytes(signature[32:64])
	pk := ecdsa.PublicKey(*p)
	return ecdsa.Verify(&pk, hash, rBytes, sBytes)
}
