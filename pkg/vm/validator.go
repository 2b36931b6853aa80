package vm

import (
	"encoding/binary"

	"github.com/attestvm/attestvm/pkg/vm/opcode"
)

// MaxCodeSize is the maximum length of contract bytecode in bytes.
const MaxCodeSize = 1 << 20

// JumpSet records the code offsets that begin an instruction. Jump targets
// are valid iff they are members of the set.
type JumpSet []uint64

func newJumpSet(n int) JumpSet {
	return make(JumpSet, (n+63)/64)
}

func (js JumpSet) set(i int) {
	js[i/64] |= 1 << uint(i%64)
}

// Contains returns true if offset i begins an instruction.
func (js JumpSet) Contains(i int) bool {
	if i < 0 || i/64 >= len(js) {
		return false
	}
	return js[i/64]&(1<<uint(i%64)) != 0
}

// Validate performs the static structural check of contract bytecode: all
// opcodes are known, operands lie strictly inside the code, every jump
// points at an instruction boundary and the program ends with HALT. On
// success it returns the precomputed instruction boundary set. Validate is
// pure, same input always produces the same result.
func Validate(code []byte) (JumpSet, error) {
	if len(code) == 0 {
		return nil, &CodeError{Kind: CodeEmpty}
	}
	if len(code) > MaxCodeSize {
		return nil, &CodeError{Kind: CodeTooLarge}
	}

	var (
		jumps  = newJumpSet(len(code))
		lastOp opcode.Opcode
	)
	for i := 0; i < len(code); {
		op := opcode.Opcode(code[i])
		if !opcode.IsValid(op) {
			return nil, &CodeError{Kind: CodeUnknownOpcode, Offset: i}
		}
		jumps.set(i)
		lastOp = op

		size := opcode.OperandSize(op)
		if i+1+size > len(code) {
			return nil, &CodeError{Kind: CodeTruncatedOperand, Offset: i}
		}
		i += 1 + size
	}
	if lastOp != opcode.HALT {
		return nil, &CodeError{Kind: CodeMissingHalt}
	}

	// Second pass, jump targets against the boundary set.
	for i := 0; i < len(code); {
		op := opcode.Opcode(code[i])
		if op == opcode.JMP || op == opcode.JMPIF {
			tgt := int(binary.LittleEndian.Uint32(code[i+1:]))
			if tgt >= len(code) {
				return nil, &CodeError{Kind: CodeOutOfRangeJump, Offset: i, Target: tgt}
			}
			if !jumps.Contains(tgt) {
				return nil, &CodeError{Kind: CodeJumpIntoOperand, Offset: i, Target: tgt}
			}
		}
		i += 1 + opcode.OperandSize(op)
	}
	return jumps, nil
}
