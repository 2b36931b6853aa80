package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/attestvm/attestvm/cli/contract"
	"github.com/attestvm/attestvm/cli/enclave"
	"github.com/attestvm/attestvm/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "AttestVM\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates an AttestVM instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "attestvm"
	ctl.Version = config.Version
	ctl.Usage = "Verifiable contract execution with signed proofs"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, contract.NewCommands()...)
	ctl.Commands = append(ctl.Commands, enclave.NewCommands()...)
	return ctl
}
