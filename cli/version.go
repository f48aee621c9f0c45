package cli

import (
	"github.com/ghost-auth/vaultcore/genericclioptions"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time; "dev" otherwise.
var version = "dev"

// NewCmdVersion creates the `version` cobra command.
func NewCmdVersion(stdio *genericclioptions.StdioOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ghostauthctl version",
		Run: func(_ *cobra.Command, _ []string) {
			stdio.Printf("ghostauthctl %s\n", version)
		},
	}
}
