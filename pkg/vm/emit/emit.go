// Package emit provides convenience functions to build VM programs.
package emit

import (
	"github.com/attestvm/attestvm/pkg/io"
	"github.com/attestvm/attestvm/pkg/vm/opcode"
)

// Instruction emits a VM Instruction with the given operand bytes to the
// given buffer.
func Instruction(w *io.BinWriter, op opcode.Opcode, b []byte) {
	w.WriteB(byte(op))
	w.WriteBytes(b)
}

// Opcodes emits a single VM Instruction without arguments to the given
// buffer for each of the given opcodes.
func Opcodes(w *io.BinWriter, ops ...opcode.Opcode) {
	for _, op := range ops {
		w.WriteB(byte(op))
	}
}

// Push emits a PUSH instruction with the given immediate.
func Push(w *io.BinWriter, val uint64) {
	w.WriteB(byte(opcode.PUSH))
	w.WriteU64LE(val)
}

// Jmp emits a JMP or JMPIF instruction with the given absolute target.
func Jmp(w *io.BinWriter, op opcode.Opcode, tgt uint32) {
	w.WriteB(byte(op))
	w.WriteU32LE(tgt)
}

// Halt emits a HALT instruction.
func Halt(w *io.BinWriter) {
	w.WriteB(byte(opcode.HALT))
}
