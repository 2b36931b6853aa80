package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Nothing more than to keep 100% coverage.
func TestStringer(t *testing.T) {
	tests := map[Opcode]string{
		ADD:          "ADD",
		SUB:          "SUB",
		PUSH:         "PUSH",
		HALT:         "HALT",
		Opcode(0xA7): "UNKNOWN",
	}
	for o, s := range tests {
		assert.Equal(t, s, o.String())
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NOP))
	assert.True(t, IsValid(PUSH))
	assert.True(t, IsValid(VERIFY))
	assert.True(t, IsValid(HALT))

	// Reserved for the next revision.
	assert.False(t, IsValid(CALL))
	assert.False(t, IsValid(RET))

	assert.False(t, IsValid(Opcode(0x17)))
	assert.False(t, IsValid(Opcode(0xFE)))
}

func TestOperandSize(t *testing.T) {
	assert.Equal(t, 8, OperandSize(PUSH))
	assert.Equal(t, 4, OperandSize(JMP))
	assert.Equal(t, 4, OperandSize(JMPIF))
	assert.Equal(t, 0, OperandSize(ADD))
	assert.Equal(t, 0, OperandSize(HALT))
}
