// Package enclave abstracts the trusted-execution platform: the identity
// measurement of the loaded module, the sealing-key derivation bound to that
// identity and attestation report creation. The concrete platform is opaque
// to the rest of the system, which makes the core testable on a plain host
// with the deterministic local platform.
package enclave

import (
	"github.com/attestvm/attestvm/pkg/util"
)

// ReportUserDataLen is the length of caller-supplied data bound into an
// attestation report.
const ReportUserDataLen = 64

// SealKeyLen is the length of the platform-derived AES-128 sealing key.
const SealKeyLen = 16

// Platform provides the primitives of the trusted-execution environment.
type Platform interface {
	// Measurement returns the 32-byte identity of the loaded trusted
	// module. It is stable across restarts of the same module.
	Measurement() util.Uint256
	// SealKey derives the sealing key bound to the module's identity.
	// Only the same module on the same platform can re-derive it.
	SealKey() ([]byte, error)
	// Report produces an opaque attestation report with the given user
	// data bound into it.
	Report(userData [ReportUserDataLen]byte) ([]byte, error)
}
