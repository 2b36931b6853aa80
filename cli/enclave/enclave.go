// Package enclave contains CLI commands exposing the enclave identity and
// sealing operations.
package enclave

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/attestvm/attestvm/cli/options"
	"github.com/attestvm/attestvm/pkg/enclave"
	"github.com/urfave/cli"
)

// NewCommands returns 'enclave' command.
func NewCommands() []cli.Command {
	fileFlags := append([]cli.Flag{
		cli.StringFlag{
			Name:  "in, i",
			Usage: "input file",
		},
		cli.StringFlag{
			Name:  "out, o",
			Usage: "output file",
		},
	}, options.Config...)

	return []cli.Command{{
		Name:  "enclave",
		Usage: "enclave identity and sealed storage",
		Subcommands: []cli.Command{
			{
				Name:      "measurement",
				Usage:     "print the enclave measurement",
				UsageText: "attestvm enclave measurement",
				Action:    measurement,
				Flags:     options.Config,
			},
			{
				Name:      "report",
				Usage:     "create an attestation report with optional user data bound into it",
				UsageText: "attestvm enclave report [--data hex]",
				Action:    report,
				Flags: append([]cli.Flag{
					cli.StringFlag{
						Name:  "data",
						Usage: "hex-encoded user data (at most 64 bytes)",
					},
				}, options.Config...),
			},
			{
				Name:      "seal",
				Usage:     "seal a file to the enclave identity",
				UsageText: "attestvm enclave seal -i state.bin -o state.sealed",
				Action:    sealData,
				Flags:     fileFlags,
			},
			{
				Name:      "unseal",
				Usage:     "unseal a file sealed by this enclave identity",
				UsageText: "attestvm enclave unseal -i state.sealed -o state.bin",
				Action:    unsealData,
				Flags:     fileFlags,
			},
		},
	}}
}

func measurement(ctx *cli.Context) error {
	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintln(ctx.App.Writer, v.Measurement().StringBE())
	return nil
}

func report(ctx *cli.Context) error {
	var userData [enclave.ReportUserDataLen]byte
	if s := ctx.String("data"); len(s) != 0 {
		b, err := hex.DecodeString(s)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("invalid user data hex: %w", err), 1)
		}
		if len(b) > enclave.ReportUserDataLen {
			return cli.NewExitError(fmt.Errorf("user data is longer than %d bytes", enclave.ReportUserDataLen), 1)
		}
		copy(userData[:], b)
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := v.CreateReport(userData)
	if err != nil {
		return cli.NewExitError(fmt.Errorf("report creation: %w", err), 1)
	}
	fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(rep))
	return nil
}

func readInputFile(ctx *cli.Context) ([]byte, string, error) {
	in := ctx.String("in")
	if len(in) == 0 {
		return nil, "", cli.NewExitError(fmt.Errorf("no input file given, specify a file with the '--in' flag"), 1)
	}
	out := ctx.String("out")
	if len(out) == 0 {
		return nil, "", cli.NewExitError(fmt.Errorf("no output file given, specify a file with the '--out' flag"), 1)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, "", cli.NewExitError(fmt.Errorf("failed to read input: %w", err), 1)
	}
	return data, out, nil
}

func sealData(ctx *cli.Context) error {
	data, out, err := readInputFile(ctx)
	if err != nil {
		return err
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	blob, err := v.Seal(data)
	if err != nil {
		return cli.NewExitError(fmt.Errorf("sealing: %w", err), 1)
	}
	if err := os.WriteFile(out, blob, 0o600); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to write sealed data: %w", err), 1)
	}
	return nil
}

func unsealData(ctx *cli.Context) error {
	blob, out, err := readInputFile(ctx)
	if err != nil {
		return err
	}

	v, cleanup, err := options.GetVerifierFromContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := v.Unseal(blob)
	if err != nil {
		return cli.NewExitError(fmt.Errorf("unsealing: %w", err), 1)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to write unsealed data: %w", err), 1)
	}
	return nil
}
