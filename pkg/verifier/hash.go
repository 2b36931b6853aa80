package verifier

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/attestvm/attestvm/pkg/crypto/hash"
	"github.com/attestvm/attestvm/pkg/util"
)

// ExecutionHash derives the 32-byte digest canonically binding a successful
// run to its code, input, output and gas consumption:
//
//	SHA256( SHA256(code) ‖ SHA256(input) ‖ output ‖ LE64(gasUsed) )
//
// An empty input contributes the empty-string digest. The hash depends on
// nothing else, identical runs under different gas limits produce the same
// digest.
func ExecutionHash(code, input, output []byte, gasUsed uint64) util.Uint256 {
	var (
		codeHash  = hash.Sha256(code)
		inputHash = hash.Sha256(input)
		gas       [8]byte
	)
	binary.LittleEndian.PutUint64(gas[:], gasUsed)

	h := sha256.New()
	h.Write(codeHash.BytesBE())
	h.Write(inputHash.BytesBE())
	h.Write(output)
	h.Write(gas[:])

	var res util.Uint256
	copy(res[:], h.Sum(nil))
	return res
}
