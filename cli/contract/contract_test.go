package contract_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/attestvm/attestvm/cli/app"
	"github.com/attestvm/attestvm/pkg/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func runApp(t *testing.T, args ...string) (string, error) {
	// Exit errors would otherwise terminate the test binary via os.Exit
	// instead of being returned from Run.
	cli.OsExiter = func(int) {}
	ctl := app.New()
	out := bytes.NewBuffer(nil)
	ctl.Writer = out
	ctl.ErrWriter = out
	err := ctl.Run(append([]string{"attestvm"}, args...))
	return out.String(), err
}

func extractLine(t *testing.T, out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	t.Fatalf("no %q line in output:\n%s", prefix, out)
	return ""
}

func TestContractRoundtrip(t *testing.T) {
	tmp := t.TempDir()
	program := filepath.Join(tmp, "program.avm")
	proofFile := filepath.Join(tmp, "proof.bin")

	_, err := runApp(t, "contract", "emit-sample", "--out", program)
	require.NoError(t, err)
	code, err := os.ReadFile(program)
	require.NoError(t, err)
	require.Len(t, code, 20)

	out, err := runApp(t, "contract", "run", "--in", program)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", extractLine(t, out, "state:"))
	assert.Equal(t, "9", extractLine(t, out, "gas used:"))
	assert.Equal(t, "1e00000000000000", extractLine(t, out, "output:"))

	out, err = runApp(t, "contract", "prove", "--in", program, "--out", proofFile)
	require.NoError(t, err)
	execHash := extractLine(t, out, "exec hash:")

	proofData, err := os.ReadFile(proofFile)
	require.NoError(t, err)
	require.Len(t, proofData, verifier.ProofSize)

	_, err = runApp(t, "contract", "verify", "--proof", proofFile, "--hash", execHash)
	require.NoError(t, err)

	// A wrong expected hash fails verification and exits non-zero.
	wrong := strings.Repeat("00", 32)
	_, err = runApp(t, "contract", "verify", "--proof", proofFile, "--hash", wrong)
	require.Error(t, err)
}

func TestContractRunFailures(t *testing.T) {
	tmp := t.TempDir()

	_, err := runApp(t, "contract", "run")
	require.Error(t, err)

	// Invalid bytecode.
	bad := filepath.Join(tmp, "bad.avm")
	require.NoError(t, os.WriteFile(bad, []byte{0x17}, 0o644))
	_, err = runApp(t, "contract", "run", "--in", bad)
	require.Error(t, err)

	// Valid bytecode, failing run.
	program := filepath.Join(tmp, "program.avm")
	_, err = runApp(t, "contract", "emit-sample", "--out", program)
	require.NoError(t, err)
	out, err := runApp(t, "contract", "run", "--in", program, "--gas", "2")
	require.Error(t, err)
	assert.Equal(t, "OUT_OF_GAS", extractLine(t, out, "state:"))
}
