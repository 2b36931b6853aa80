// Package hash contains wrappers for SHA-256 hashing used throughout the
// project.
package hash

import (
	"crypto/sha256"

	"github.com/attestvm/attestvm/pkg/util"
)

// Sha256 hashes the incoming byte slice using the sha256 algorithm.
func Sha256(data []byte) util.Uint256 {
	hash := sha256.Sum256(data)
	return hash
}
