// Command ghostauthctl is the local-first TOTP vault CLI.
package main

import (
	"os"

	"github.com/ghost-auth/vaultcore/cli"
	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"
)

func main() {
	iostreams := genericclioptions.NewDefaultIOStreams()
	cmd := cli.NewDefaultCommand(iostreams, os.Args[1:])

	clierror.Check(cmd.Execute())
}
