package enclave

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/attestvm/attestvm/pkg/crypto/hash"
	"github.com/attestvm/attestvm/pkg/util"
	"golang.org/x/crypto/hkdf"
)

// reportMagic prefixes local pseudo-reports.
var reportMagic = []byte("AVMRPT01")

// LocalPlatform is a deterministic software stand-in for a hardware
// trusted-execution platform. The measurement is derived from the module
// identity string, the sealing key from a machine secret via HKDF bound to
// the measurement. It provides no hardware isolation and exists so the
// trust-boundary code runs and tests unchanged on a plain host.
type LocalPlatform struct {
	measurement util.Uint256
	secret      []byte
}

// NewLocalPlatform returns a local platform for the given module identity
// and machine secret. The secret must be non-empty, it takes the place of
// the hardware root of trust for seal-key derivation.
func NewLocalPlatform(identity string, secret []byte) (*LocalPlatform, error) {
	if len(identity) == 0 {
		return nil, errors.New("empty platform identity")
	}
	if len(secret) == 0 {
		return nil, errors.New("empty platform secret")
	}
	return &LocalPlatform{
		measurement: hash.Sha256([]byte(identity)),
		secret:      append([]byte{}, secret...),
	}, nil
}

// Measurement implements the Platform interface.
func (p *LocalPlatform) Measurement() util.Uint256 {
	return p.measurement
}

// SealKey implements the Platform interface. The key is re-derived on every
// call, it is never stored.
func (p *LocalPlatform) SealKey() ([]byte, error) {
	r := hkdf.New(sha256.New, p.secret, p.measurement.BytesBE(), []byte("sealing"))
	key := make([]byte, SealKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Report implements the Platform interface. The pseudo-report binds the
// measurement and user data under a digest, it carries no hardware
// signature and must not be trusted remotely.
func (p *LocalPlatform) Report(userData [ReportUserDataLen]byte) ([]byte, error) {
	body := make([]byte, 0, len(reportMagic)+util.Uint256Size+ReportUserDataLen+util.Uint256Size)
	body = append(body, reportMagic...)
	body = append(body, p.measurement.BytesBE()...)
	body = append(body, userData[:]...)
	digest := hash.Sha256(body)
	return append(body, digest.BytesBE()...), nil
}
