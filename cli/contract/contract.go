// Package contract contains CLI commands executing and proving contract
// bytecode.
package contract

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/attestvm/attestvm/cli/options"
	"github.com/attestvm/attestvm/pkg/io"
	"github.com/attestvm/attestvm/pkg/util"
	"github.com/attestvm/attestvm/pkg/verifier"
	"github.com/attestvm/attestvm/pkg/vm/emit"
	"github.com/attestvm/attestvm/pkg/vm/opcode"
	"github.com/urfave/cli"
)

var contractFlags = append([]cli.Flag{
	cli.StringFlag{
		Name:  "in, i",
		Usage: "file with contract bytecode",
	},
	cli.StringFlag{
		Name:  "input",
		Usage: "hex-encoded contract input",
	},
	cli.Uint64Flag{
		Name:  "gas, g",
		Usage: "gas limit for this execution",
	},
}, options.Config...)

// NewCommands returns 'contract' command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:  "contract",
		Usage: "execute and prove contract bytecode",
		Subcommands: []cli.Command{
			{
				Name:      "run",
				Usage:     "execute contract bytecode",
				UsageText: "attestvm contract run -i program.avm [--input hex] [-g gas]",
				Action:    run,
				Flags:     contractFlags,
			},
			{
				Name:      "prove",
				Usage:     "execute contract bytecode and emit a signed execution proof",
				UsageText: "attestvm contract prove -i program.avm -o proof.bin [--input hex] [-g gas]",
				Action:    prove,
				Flags: append([]cli.Flag{
					cli.StringFlag{
						Name:  "out, o",
						Usage: "file to write the proof to",
					},
				}, contractFlags...),
			},
			{
				Name:      "verify",
				Usage:     "verify a signed execution proof against an expected execution hash",
				UsageText: "attestvm contract verify --proof proof.bin --hash hex",
				Action:    verifyProof,
				Flags: append([]cli.Flag{
					cli.StringFlag{
						Name:  "proof",
						Usage: "file with the encoded proof",
					},
					cli.StringFlag{
						Name:  "hash",
						Usage: "hex-encoded expected execution hash",
					},
				}, options.Config...),
			},
			{
				Name:      "emit-sample",
				Usage:     "write the add-and-halt sample program",
				UsageText: "attestvm contract emit-sample -o program.avm",
				Action:    emitSample,
				Flags: []cli.Flag{
					cli.StringFlag{
						Name:  "out, o",
						Usage: "file to write the program to",
					},
				},
			},
		},
	}}
}

func readContract(ctx *cli.Context) ([]byte, []byte, error) {
	in := ctx.String("in")
	if len(in) == 0 {
		return nil, nil, cli.NewExitError(fmt.Errorf("no input file given, specify a file with the '--in' flag"), 1)
	}
	code, err := os.ReadFile(in)
	if err != nil {
		return nil, nil, cli.NewExitError(fmt.Errorf("failed to read contract: %w", err), 1)
	}
	var input []byte
	if s := ctx.String("input"); len(s) != 0 {
		input, err = hex.DecodeString(s)
		if err != nil {
			return nil, nil, cli.NewExitError(fmt.Errorf("invalid input hex: %w", err), 1)
		}
	}
	return code, input, nil
}

func run(ctx *cli.Context) error {
	code, input, err := readContract(ctx)
	if err != nil {
		return err
	}
	gas, err := options.GetGasFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := v.Execute(code, input, gas)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	printResult(ctx, res)
	if res.State.HasFailed() {
		return cli.NewExitError(fmt.Errorf("execution failed: %s", res.State), 1)
	}
	return nil
}

func prove(ctx *cli.Context) error {
	code, input, err := readContract(ctx)
	if err != nil {
		return err
	}
	out := ctx.String("out")
	if len(out) == 0 {
		return cli.NewExitError(fmt.Errorf("no output file given, specify a file with the '--out' flag"), 1)
	}
	gas, err := options.GetGasFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	proof, res, err := v.ProveExecution(code, input, gas)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	printResult(ctx, res)

	data, err := proof.Bytes()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to write proof: %w", err), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "proof:     %s\n", hex.EncodeToString(data))
	fmt.Fprintf(ctx.App.Writer, "timestamp: %d\n", proof.TimestampMS)
	return nil
}

func verifyProof(ctx *cli.Context) error {
	proofPath := ctx.String("proof")
	if len(proofPath) == 0 {
		return cli.NewExitError(fmt.Errorf("no proof file given, specify a file with the '--proof' flag"), 1)
	}
	data, err := os.ReadFile(proofPath)
	if err != nil {
		return cli.NewExitError(fmt.Errorf("failed to read proof: %w", err), 1)
	}
	expected, err := util.Uint256DecodeStringBE(ctx.String("hash"))
	if err != nil {
		return cli.NewExitError(fmt.Errorf("invalid execution hash: %w", err), 1)
	}

	proof, err := verifier.NewProofFromBytes(data)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !v.VerifyProof(proof, expected) {
		return cli.NewExitError(fmt.Errorf("proof verification failed"), 1)
	}
	fmt.Fprintln(ctx.App.Writer, "proof is valid")
	return nil
}

func emitSample(ctx *cli.Context) error {
	out := ctx.String("out")
	if len(out) == 0 {
		return cli.NewExitError(fmt.Errorf("no output file given, specify a file with the '--out' flag"), 1)
	}

	buf := io.NewBufBinWriter()
	emit.Push(buf.BinWriter, 10)
	emit.Push(buf.BinWriter, 20)
	emit.Opcodes(buf.BinWriter, opcode.ADD)
	emit.Halt(buf.BinWriter)
	if buf.Err != nil {
		return cli.NewExitError(buf.Err, 1)
	}

	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to write program: %w", err), 1)
	}
	return nil
}

func printResult(ctx *cli.Context, res *verifier.Result) {
	fmt.Fprintf(ctx.App.Writer, "state:     %s\n", res.State)
	fmt.Fprintf(ctx.App.Writer, "gas used:  %d\n", res.GasUsed)
	if len(res.Output) != 0 {
		fmt.Fprintf(ctx.App.Writer, "output:    %s\n", hex.EncodeToString(res.Output))
	}
	if res.State.HasFailed() && res.Err != nil {
		fmt.Fprintf(ctx.App.Writer, "error:     %s\n", res.Err)
	}
	if !res.ExecHash.Equals(util.Uint256{}) {
		fmt.Fprintf(ctx.App.Writer, "exec hash: %s\n", res.ExecHash.StringBE())
	}
}
