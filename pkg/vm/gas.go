package vm

import "github.com/attestvm/attestvm/pkg/vm/opcode"

// gasCosts is a dense per-opcode cost table. Opcodes never reaching the
// interpreter (the validator rejects them) keep the zero entry.
var gasCosts = [256]uint64{
	opcode.NOP:    1,
	opcode.PUSH:   3,
	opcode.POP:    2,
	opcode.ADD:    3,
	opcode.SUB:    3,
	opcode.MUL:    5,
	opcode.DIV:    5,
	opcode.MOD:    5,
	opcode.AND:    3,
	opcode.OR:     3,
	opcode.XOR:    3,
	opcode.NOT:    3,
	opcode.EQ:     3,
	opcode.LT:     3,
	opcode.GT:     3,
	opcode.JMP:    3,
	opcode.JMPIF:  4,
	opcode.LOAD:   3,
	opcode.STORE:  5,
	opcode.HASH:   30,
	opcode.VERIFY: 100,
	opcode.HALT:   0,
}

// GasCost returns the gas cost of the given opcode.
func GasCost(op opcode.Opcode) uint64 {
	return gasCosts[op]
}

// charge pre-deducts cost from the remaining gas. A failed charge leaves
// gasUsed unchanged and puts the VM into OutOfGasState.
func (v *VM) charge(cost uint64) bool {
	if v.gasUsed+cost > v.gasLimit {
		v.state = OutOfGasState
		v.err = ErrOutOfGas
		v.output = nil
		return false
	}
	v.gasUsed += cost
	return true
}
