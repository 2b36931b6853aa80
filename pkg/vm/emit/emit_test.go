package emit

import (
	"testing"

	"github.com/attestvm/attestvm/pkg/io"
	"github.com/attestvm/attestvm/pkg/vm/opcode"
	"github.com/stretchr/testify/require"
)

func TestEmitPush(t *testing.T) {
	buf := io.NewBufBinWriter()
	Push(buf.BinWriter, 10)
	require.NoError(t, buf.Err)

	result := buf.Bytes()
	require.Equal(t, []byte{0x01, 0x0A, 0, 0, 0, 0, 0, 0, 0}, result)
}

func TestEmitJmp(t *testing.T) {
	buf := io.NewBufBinWriter()
	Jmp(buf.BinWriter, opcode.JMP, 0x1234)
	require.NoError(t, buf.Err)

	result := buf.Bytes()
	require.Equal(t, []byte{0x0F, 0x34, 0x12, 0, 0}, result)
}

func TestEmitProgram(t *testing.T) {
	buf := io.NewBufBinWriter()
	Push(buf.BinWriter, 10)
	Push(buf.BinWriter, 20)
	Opcodes(buf.BinWriter, opcode.ADD)
	Halt(buf.BinWriter)
	require.NoError(t, buf.Err)

	result := buf.Bytes()
	require.Len(t, result, 20)
	require.Equal(t, byte(opcode.ADD), result[18])
	require.Equal(t, byte(opcode.HALT), result[19])
}
