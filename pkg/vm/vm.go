// Package vm implements the contract bytecode virtual machine: a compact
// stack machine over 64-bit words with static validation, per-opcode gas
// metering and deterministic execution.
package vm

import (
	"encoding/binary"

	"github.com/attestvm/attestvm/pkg/crypto/hash"
	"github.com/attestvm/attestvm/pkg/vm/opcode"
)

const (
	// MemorySize is the size of the scratch memory in bytes.
	MemorySize = 4096
	// WordSize is the size of a VM word in bytes.
	WordSize = 8
)

// VM represents an instance of the contract virtual machine. A VM executes
// exactly one program and is not reused across executions.
type VM struct {
	code   []byte
	jumps  JumpSet
	estack *Stack
	memory [MemorySize]byte

	pc       int
	gasLimit uint64
	gasUsed  uint64
	state    State
	err      error
	output   []byte
}

// New validates the given bytecode and returns a VM ready to Run it within
// the given gas limit. The code slice is borrowed read-only for the
// lifetime of the VM.
func New(code []byte, gasLimit uint64) (*VM, error) {
	jumps, err := Validate(code)
	if err != nil {
		return nil, err
	}
	return NewWithJumpSet(code, jumps, gasLimit), nil
}

// NewWithJumpSet returns a VM over pre-validated bytecode and its boundary
// set. The caller is responsible for jumps actually belonging to code.
func NewWithJumpSet(code []byte, jumps JumpSet, gasLimit uint64) *VM {
	return &VM{
		code:     code,
		jumps:    jumps,
		estack:   NewStack(),
		gasLimit: gasLimit,
		state:    InitState,
	}
}

// Run executes the program to a terminal state.
func (v *VM) Run() {
	if v.state != InitState {
		return
	}
	v.state = RunningState
	for v.state == RunningState {
		v.step()
	}
}

// step fetches, charges and executes a single instruction.
func (v *VM) step() {
	if v.pc >= len(v.code) {
		v.fault(ErrUnterminatedProgram)
		return
	}
	op := opcode.Opcode(v.code[v.pc])
	if !v.charge(gasCosts[op]) {
		return
	}
	if err := v.execute(op); err != nil {
		v.fault(err)
	}
}

func (v *VM) fault(err error) {
	v.state = ErrorState
	v.err = err
	v.output = nil
}

// execute applies the effect of a single instruction and advances pc past
// the opcode and its operand. The validator guarantees operands are in
// bounds, jump targets are re-checked against the boundary set as a cheap
// invariant.
func (v *VM) execute(op opcode.Opcode) error {
	switch op {
	case opcode.NOP:
		v.pc++

	case opcode.PUSH:
		val := binary.LittleEndian.Uint64(v.code[v.pc+1:])
		if err := v.estack.Push(val); err != nil {
			return err
		}
		v.pc += 1 + opcode.PushOperandSize

	case opcode.POP:
		if _, err := v.estack.Pop(); err != nil {
			return err
		}
		v.pc++

	case opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV, opcode.MOD,
		opcode.AND, opcode.OR, opcode.XOR, opcode.EQ, opcode.LT, opcode.GT:
		b, err := v.estack.Pop()
		if err != nil {
			return err
		}
		a, err := v.estack.Pop()
		if err != nil {
			return err
		}
		r, err := binop(op, a, b)
		if err != nil {
			return err
		}
		if err := v.estack.Push(r); err != nil {
			return err
		}
		v.pc++

	case opcode.NOT:
		a, err := v.estack.Pop()
		if err != nil {
			return err
		}
		if err := v.estack.Push(^a); err != nil {
			return err
		}
		v.pc++

	case opcode.JMP:
		return v.jump(int(binary.LittleEndian.Uint32(v.code[v.pc+1:])))

	case opcode.JMPIF:
		c, err := v.estack.Pop()
		if err != nil {
			return err
		}
		if c != 0 {
			return v.jump(int(binary.LittleEndian.Uint32(v.code[v.pc+1:])))
		}
		v.pc += 1 + opcode.JumpOperandSize

	case opcode.LOAD:
		k, err := v.estack.Pop()
		if err != nil {
			return err
		}
		if k >= MemorySize-WordSize {
			return ErrMemoryOutOfRange
		}
		if err := v.estack.Push(binary.LittleEndian.Uint64(v.memory[k:])); err != nil {
			return err
		}
		v.pc++

	case opcode.STORE:
		val, err := v.estack.Pop()
		if err != nil {
			return err
		}
		k, err := v.estack.Pop()
		if err != nil {
			return err
		}
		if k >= MemorySize-WordSize {
			return ErrMemoryOutOfRange
		}
		binary.LittleEndian.PutUint64(v.memory[k:], val)
		v.pc++

	case opcode.HASH:
		length, err := v.estack.Pop()
		if err != nil {
			return err
		}
		addr, err := v.estack.Pop()
		if err != nil {
			return err
		}
		if length > MemorySize || addr > MemorySize-length {
			return ErrMemoryOutOfRange
		}
		h := hash.Sha256(v.memory[addr : addr+length])
		if err := v.estack.Push(binary.LittleEndian.Uint64(h[:WordSize])); err != nil {
			return err
		}
		v.pc++

	case opcode.VERIFY:
		// Signature verification stub, always true in this revision.
		if _, err := v.estack.Pop(); err != nil {
			return err
		}
		if err := v.estack.Push(1); err != nil {
			return err
		}
		v.pc++

	case opcode.HALT:
		v.halt()

	default:
		// Unreachable, the validator rejects unknown opcodes.
		return errInvalidOpcode
	}
	return nil
}

// binop applies a two-operand instruction. Arithmetic wraps around modulo
// 2^64, comparisons produce 0 or 1.
func binop(op opcode.Opcode, a, b uint64) (uint64, error) {
	switch op {
	case opcode.ADD:
		return a + b, nil
	case opcode.SUB:
		return a - b, nil
	case opcode.MUL:
		return a * b, nil
	case opcode.DIV:
		if b == 0 {
			return 0, ErrDivByZero
		}
		return a / b, nil
	case opcode.MOD:
		if b == 0 {
			return 0, ErrDivByZero
		}
		return a % b, nil
	case opcode.AND:
		return a & b, nil
	case opcode.OR:
		return a | b, nil
	case opcode.XOR:
		return a ^ b, nil
	case opcode.EQ:
		return bool2word(a == b), nil
	case opcode.LT:
		return bool2word(a < b), nil
	case opcode.GT:
		return bool2word(a > b), nil
	}
	return 0, errInvalidOpcode
}

func bool2word(c bool) uint64 {
	if c {
		return 1
	}
	return 0
}

// jump moves pc to an absolute code offset after re-checking it against the
// boundary set.
func (v *VM) jump(tgt int) error {
	if !v.jumps.Contains(tgt) {
		return ErrBadJumpTarget
	}
	v.pc = tgt
	return nil
}

// halt terminates the program and binds its canonical output: the
// top-of-stack value as 8 little-endian bytes, or empty output for an
// empty stack.
func (v *VM) halt() {
	v.state = CompletedState
	if top, err := v.estack.Peek(); err == nil {
		out := make([]byte, WordSize)
		binary.LittleEndian.PutUint64(out, top)
		v.output = out
	}
}

// State returns the state of the VM.
func (v *VM) State() State {
	return v.state
}

// GasUsed returns the amount of gas consumed so far.
func (v *VM) GasUsed() uint64 {
	return v.gasUsed
}

// GasLimit returns the gas limit the VM was created with.
func (v *VM) GasLimit() uint64 {
	return v.gasLimit
}

// Output returns the canonical contract output. It is non-nil only in
// CompletedState and only when the stack was non-empty at HALT.
func (v *VM) Output() []byte {
	return v.output
}

// Err returns the error that put the VM into a failed terminal state.
func (v *VM) Err() error {
	return v.err
}

// Estack returns the operand stack, used by tests.
func (v *VM) Estack() *Stack {
	return v.estack
}
