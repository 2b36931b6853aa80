package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"testing"

	"github.com/attestvm/attestvm/pkg/io"
	"github.com/attestvm/attestvm/pkg/vm/emit"
	"github.com/attestvm/attestvm/pkg/vm/opcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProgram(t *testing.T, code []byte, gasLimit uint64) *VM {
	v, err := New(code, gasLimit)
	require.NoError(t, err)
	v.Run()
	return v
}

func TestAddAndHalt(t *testing.T) {
	// The canonical smoke-test program: 10 + 20, byte-exact.
	code := []byte{
		0x01, 0x0A, 0, 0, 0, 0, 0, 0, 0,
		0x01, 0x14, 0, 0, 0, 0, 0, 0, 0,
		0x03,
		0xFF,
	}
	v := runProgram(t, code, 1000)

	assert.Equal(t, CompletedState, v.State())
	assert.Equal(t, []byte{0x1E, 0, 0, 0, 0, 0, 0, 0}, v.Output())
	assert.EqualValues(t, 9, v.GasUsed())
	assert.NoError(t, v.Err())
}

func TestDivByZero(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 5)
		emit.Push(w, 0)
		emit.Opcodes(w, opcode.DIV)
	})
	v := runProgram(t, code, 1000)

	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrDivByZero)
	assert.Nil(t, v.Output())
	// DIV charges before failing.
	assert.EqualValues(t, 11, v.GasUsed())
}

func TestModByZero(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 5)
		emit.Push(w, 0)
		emit.Opcodes(w, opcode.MOD)
	})
	v := runProgram(t, code, 1000)

	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrDivByZero)
}

func TestOutOfGas(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 1)
	})
	v := runProgram(t, code, 2)

	assert.Equal(t, OutOfGasState, v.State())
	assert.ErrorIs(t, v.Err(), ErrOutOfGas)
	assert.Nil(t, v.Output())
	// A failed charge leaves the counter unchanged.
	assert.EqualValues(t, 0, v.GasUsed())
}

func TestOutOfGasMidProgram(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 10)
		emit.Push(w, 20)
		emit.Opcodes(w, opcode.ADD)
	})
	v := runProgram(t, code, 8)

	assert.Equal(t, OutOfGasState, v.State())
	assert.EqualValues(t, 6, v.GasUsed())
}

func TestGasNeverExceedsLimit(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 10)
		emit.Push(w, 20)
		emit.Opcodes(w, opcode.ADD)
	})
	for limit := uint64(0); limit < 12; limit++ {
		v := runProgram(t, code, limit)
		assert.LessOrEqual(t, v.GasUsed(), limit, "limit %d", limit)
		if limit < 9 {
			assert.Equal(t, OutOfGasState, v.State(), "limit %d", limit)
		} else {
			assert.Equal(t, CompletedState, v.State(), "limit %d", limit)
		}
	}
}

func TestArithmeticWrapsAround(t *testing.T) {
	testCases := []struct {
		name     string
		op       opcode.Opcode
		a, b     uint64
		expected uint64
	}{
		{"add wraps", opcode.ADD, math.MaxUint64, 2, 1},
		{"sub wraps", opcode.SUB, 0, 1, math.MaxUint64},
		{"mul wraps", opcode.MUL, math.MaxUint64, 2, math.MaxUint64 - 1},
		{"div", opcode.DIV, 7, 2, 3},
		{"mod", opcode.MOD, 7, 2, 1},
		{"and", opcode.AND, 0b1100, 0b1010, 0b1000},
		{"or", opcode.OR, 0b1100, 0b1010, 0b1110},
		{"xor", opcode.XOR, 0b1100, 0b1010, 0b0110},
		{"eq false", opcode.EQ, 1, 2, 0},
		{"eq true", opcode.EQ, 2, 2, 1},
		{"lt", opcode.LT, 1, 2, 1},
		{"lt unsigned", opcode.LT, math.MaxUint64, 1, 0},
		{"gt", opcode.GT, 2, 1, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := makeProgram(t, func(w *io.BinWriter) {
				emit.Push(w, tc.a)
				emit.Push(w, tc.b)
				emit.Opcodes(w, tc.op)
			})
			v := runProgram(t, code, 1000)
			require.Equal(t, CompletedState, v.State())

			expected := make([]byte, 8)
			binary.LittleEndian.PutUint64(expected, tc.expected)
			assert.Equal(t, expected, v.Output())
		})
	}
}

func TestNot(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 0)
		emit.Opcodes(w, opcode.NOT)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())

	expected := make([]byte, 8)
	binary.LittleEndian.PutUint64(expected, math.MaxUint64)
	assert.Equal(t, expected, v.Output())
}

func TestStackUnderflow(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Opcodes(w, opcode.POP)
	})
	v := runProgram(t, code, 1000)

	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrStackUnderflow)
	assert.Nil(t, v.Output())
}

func TestStackOverflow(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		for i := 0; i < MaxStackSize+1; i++ {
			emit.Push(w, uint64(i))
		}
	})
	v := runProgram(t, code, math.MaxUint64)

	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrStackOverflow)
	assert.Equal(t, MaxStackSize, v.Estack().Len())
}

func TestEmptyStackOutput(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 1)
		emit.Opcodes(w, opcode.POP)
	})
	v := runProgram(t, code, 1000)

	assert.Equal(t, CompletedState, v.State())
	assert.Nil(t, v.Output())
}

func TestJmpSkipsDeadCode(t *testing.T) {
	// 0: JMP 15; 5: PUSH 1 (dead); 14: POP (dead); 15: PUSH 2; 24: HALT.
	buf := io.NewBufBinWriter()
	emit.Jmp(buf.BinWriter, opcode.JMP, 15)
	emit.Push(buf.BinWriter, 1)
	emit.Opcodes(buf.BinWriter, opcode.POP)
	emit.Push(buf.BinWriter, 2)
	emit.Halt(buf.BinWriter)
	require.NoError(t, buf.Err)

	v := runProgram(t, buf.Bytes(), 1000)
	require.Equal(t, CompletedState, v.State())

	expected := make([]byte, 8)
	binary.LittleEndian.PutUint64(expected, 2)
	assert.Equal(t, expected, v.Output())
	// JMP(3) + PUSH(3) + HALT(0).
	assert.EqualValues(t, 6, v.GasUsed())
}

func TestJmpIf(t *testing.T) {
	// Condition taken: skip over a PUSH of 111.
	makeCond := func(cond uint64) []byte {
		buf := io.NewBufBinWriter()
		emit.Push(buf.BinWriter, cond)      // 0..8
		emit.Jmp(buf.BinWriter, opcode.JMPIF, 23) // 9..13
		emit.Push(buf.BinWriter, 111)       // 14..22
		emit.Push(buf.BinWriter, 222)       // 23..31
		emit.Halt(buf.BinWriter)            // 32
		if buf.Err != nil {
			t.Fatal(buf.Err)
		}
		return buf.Bytes()
	}

	v := runProgram(t, makeCond(1), 1000)
	require.Equal(t, CompletedState, v.State())
	assert.Equal(t, 1, v.Estack().Len())

	v = runProgram(t, makeCond(0), 1000)
	require.Equal(t, CompletedState, v.State())
	// Fall-through path pushes both values.
	assert.Equal(t, 2, v.Estack().Len())
}

func TestLoop(t *testing.T) {
	// Count down from 3 with memory cell 0 holding the counter and a
	// backward JMPIF driving the loop.
	buf := io.NewBufBinWriter()
	emit.Push(buf.BinWriter, 0)  // 0: k
	emit.Push(buf.BinWriter, 3)  // 9: v
	emit.Opcodes(buf.BinWriter, opcode.STORE) // 18: mem[0] = 3
	// loop head at 19: mem[0] -= 1; JMPIF mem[0] != 0.
	emit.Push(buf.BinWriter, 0)  // 19
	emit.Push(buf.BinWriter, 0)  // 28: k for LOAD
	emit.Opcodes(buf.BinWriter, opcode.LOAD) // 37
	emit.Push(buf.BinWriter, 1)  // 38
	emit.Opcodes(buf.BinWriter, opcode.SUB)  // 47: stack: 0, mem[0]-1
	emit.Opcodes(buf.BinWriter, opcode.STORE) // 48: mem[0] -= 1
	emit.Push(buf.BinWriter, 0)  // 49
	emit.Opcodes(buf.BinWriter, opcode.LOAD) // 58
	emit.Jmp(buf.BinWriter, opcode.JMPIF, 19) // 59
	emit.Halt(buf.BinWriter) // 64
	require.NoError(t, buf.Err)

	v := runProgram(t, buf.Bytes(), 1000)
	require.NoError(t, v.Err())
	require.Equal(t, CompletedState, v.State())
	assert.Nil(t, v.Output())
	// Setup: 3+3+5 = 11. Loop body: 3+3+3+3+3+5+3+3+4 = 30, three times.
	assert.EqualValues(t, 101, v.GasUsed())
}

func TestLoadStore(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 128)        // k
		emit.Push(w, 0xDEADBEEF) // v
		emit.Opcodes(w, opcode.STORE)
		emit.Push(w, 128)
		emit.Opcodes(w, opcode.LOAD)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())

	expected := make([]byte, 8)
	binary.LittleEndian.PutUint64(expected, 0xDEADBEEF)
	assert.Equal(t, expected, v.Output())
}

func TestLoadUninitializedMemoryIsZero(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 512)
		emit.Opcodes(w, opcode.LOAD)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())
	assert.Equal(t, make([]byte, 8), v.Output())
}

func TestMemoryOutOfRange(t *testing.T) {
	testCases := []struct {
		name string
		addr uint64
	}{
		{"last word", MemorySize - 8},
		{"past end", MemorySize},
		{"huge", math.MaxUint64},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := makeProgram(t, func(w *io.BinWriter) {
				emit.Push(w, tc.addr)
				emit.Opcodes(w, opcode.LOAD)
			})
			v := runProgram(t, code, 1000)
			assert.Equal(t, ErrorState, v.State())
			assert.ErrorIs(t, v.Err(), ErrMemoryOutOfRange)
		})
	}

	t.Run("store", func(t *testing.T) {
		code := makeProgram(t, func(w *io.BinWriter) {
			emit.Push(w, MemorySize-8)
			emit.Push(w, 1)
			emit.Opcodes(w, opcode.STORE)
		})
		v := runProgram(t, code, 1000)
		assert.Equal(t, ErrorState, v.State())
		assert.ErrorIs(t, v.Err(), ErrMemoryOutOfRange)
	})

	t.Run("last valid slot", func(t *testing.T) {
		code := makeProgram(t, func(w *io.BinWriter) {
			emit.Push(w, MemorySize-9)
			emit.Opcodes(w, opcode.LOAD)
		})
		v := runProgram(t, code, 1000)
		assert.Equal(t, CompletedState, v.State())
	})
}

func TestHashOpcode(t *testing.T) {
	// Hash 16 zero bytes of fresh memory.
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 0)  // addr
		emit.Push(w, 16) // len
		emit.Opcodes(w, opcode.HASH)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())

	digest := sha256.Sum256(make([]byte, 16))
	assert.Equal(t, digest[:8], v.Output())
	// PUSH + PUSH + HASH.
	assert.EqualValues(t, 36, v.GasUsed())
}

func TestHashOutOfRange(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 8)
		emit.Push(w, MemorySize)
		emit.Opcodes(w, opcode.HASH)
	})
	v := runProgram(t, code, 1000)
	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrMemoryOutOfRange)
}

func TestHashWholeMemory(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 0)
		emit.Push(w, MemorySize)
		emit.Opcodes(w, opcode.HASH)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())

	digest := sha256.Sum256(make([]byte, MemorySize))
	assert.Equal(t, digest[:8], v.Output())
}

func TestVerifyStub(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 0xABCD)
		emit.Opcodes(w, opcode.VERIFY)
	})
	v := runProgram(t, code, 1000)
	require.Equal(t, CompletedState, v.State())

	expected := make([]byte, 8)
	binary.LittleEndian.PutUint64(expected, 1)
	assert.Equal(t, expected, v.Output())
	assert.EqualValues(t, 103, v.GasUsed())
}

func TestUnterminatedProgram(t *testing.T) {
	// Only reachable with a hand-made jump set, Validate rejects such code.
	code := []byte{byte(opcode.NOP)}
	jumps := newJumpSet(len(code))
	jumps.set(0)
	v := NewWithJumpSet(code, jumps, 1000)
	v.Run()

	assert.Equal(t, ErrorState, v.State())
	assert.ErrorIs(t, v.Err(), ErrUnterminatedProgram)
}

func TestDeterminism(t *testing.T) {
	code := makeProgram(t, func(w *io.BinWriter) {
		emit.Push(w, 0)
		emit.Push(w, 1234)
		emit.Opcodes(w, opcode.STORE)
		emit.Push(w, 0)
		emit.Push(w, 8)
		emit.Opcodes(w, opcode.HASH)
	})
	first := runProgram(t, code, 1000)
	second := runProgram(t, code, 1000)

	require.Equal(t, first.State(), second.State())
	require.Equal(t, first.GasUsed(), second.GasUsed())
	require.Equal(t, first.Output(), second.Output())
}

func TestVMIsNotReusable(t *testing.T) {
	code := []byte{byte(opcode.HALT)}
	v := runProgram(t, code, 10)
	require.Equal(t, CompletedState, v.State())

	// A second Run is a no-op on a terminal VM.
	v.Run()
	require.Equal(t, CompletedState, v.State())
	require.EqualValues(t, 0, v.GasUsed())
}
