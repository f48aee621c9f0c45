package cli

import (
	"context"
	"os"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"
	"github.com/ghost-auth/vaultcore/input"

	"github.com/spf13/cobra"
)

const backupPasswordMinLen = 8

// ExportOptions holds the data required to export an encrypted backup.
type ExportOptions struct {
	*genericclioptions.StdioOptions

	api    *VaultAPIOptions
	output string
}

var _ genericclioptions.CmdOptions = &ExportOptions{}

func NewExportOptions(stdio *genericclioptions.StdioOptions, api *VaultAPIOptions) *ExportOptions {
	return &ExportOptions{StdioOptions: stdio, api: api}
}

func (*ExportOptions) Complete() error { return nil }

func (*ExportOptions) Validate() error { return nil }

func (o *ExportOptions) Run(_ context.Context, _ ...string) error {
	password, err := input.PromptNewPassword(o.Out, int(o.In.Fd()), backupPasswordMinLen)
	if err != nil {
		return err
	}
	defer clear(password)

	data, err := o.api.API.ExportBackup(string(password))
	if err != nil {
		return err
	}

	if err := os.WriteFile(o.output, data, 0o600); err != nil {
		return err
	}

	o.Infof("exported to %s\n", o.output)

	return nil
}

// NewCmdExport creates the `export` cobra command.
func NewCmdExport(defaults *DefaultOptions) *cobra.Command {
	o := NewExportOptions(defaults.StdioOptions, defaults.vaultOptions)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every account to a password-encrypted backup file",
		Long: `Export every account, including secrets, to a password-encrypted backup file.

The backup password is independent of the vault's master key; anyone holding
the file still needs the password to decrypt it.`,
		Example: `  ghostauthctl export --output vault-backup.ghostauth`,
		Run: func(cmd *cobra.Command, args []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, args...))
		},
	}

	cmd.Flags().StringVarP(&o.output, "output", "o", "", "backup output file path")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
