package verifier

import (
	"errors"

	"github.com/attestvm/attestvm/pkg/crypto/keys"
	"github.com/attestvm/attestvm/pkg/io"
	"github.com/attestvm/attestvm/pkg/util"
)

// NonceLen is the length of the proof freshness nonce.
const NonceLen = 16

// ProofSize is the size of an encoded proof in bytes.
const ProofSize = util.Uint256Size + 8 + NonceLen + keys.PublicKeyLen + keys.SignatureLen

// ErrBadProofFormat is returned when decoding a blob that is not a
// well-formed proof.
var ErrBadProofFormat = errors.New("bad proof format")

// Proof is the signed execution proof binding an execution hash to the
// enclave signing key, with a timestamp and nonce preventing cross-context
// replay. All integers are little-endian on the wire.
type Proof struct {
	ExecHash    util.Uint256
	TimestampMS uint64
	Nonce       [NonceLen]byte
	PublicKey   *keys.PublicKey
	Signature   [keys.SignatureLen]byte
}

// signedData returns the byte range covered by the signature:
// exec_hash ‖ timestamp ‖ nonce ‖ pubkey.
func (p *Proof) signedData() []byte {
	w := io.NewBufBinWriter()
	w.WriteBytes(p.ExecHash.BytesBE())
	w.WriteU64LE(p.TimestampMS)
	w.WriteBytes(p.Nonce[:])
	w.WriteBytes(p.PublicKey.Bytes())
	return w.Bytes()
}

// EncodeBinary implements the io.Serializable interface.
func (p *Proof) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(p.ExecHash.BytesBE())
	w.WriteU64LE(p.TimestampMS)
	w.WriteBytes(p.Nonce[:])
	w.WriteBytes(p.PublicKey.Bytes())
	w.WriteBytes(p.Signature[:])
}

// DecodeBinary implements the io.Serializable interface.
func (p *Proof) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(p.ExecHash[:])
	p.TimestampMS = r.ReadU64LE()
	r.ReadBytes(p.Nonce[:])

	var pub [keys.PublicKeyLen]byte
	r.ReadBytes(pub[:])
	if r.Err == nil {
		p.PublicKey, r.Err = keys.NewPublicKeyFromBytes(pub[:])
	}
	r.ReadBytes(p.Signature[:])
}

// Bytes returns the fixed-width encoding of the proof.
func (p *Proof) Bytes() ([]byte, error) {
	return io.ToByteArray(p)
}

// NewProofFromBytes decodes a proof from its fixed-width encoding.
func NewProofFromBytes(data []byte) (*Proof, error) {
	if len(data) != ProofSize {
		return nil, ErrBadProofFormat
	}
	p := new(Proof)
	if err := io.FromByteArray(p, data); err != nil {
		return nil, ErrBadProofFormat
	}
	return p, nil
}
