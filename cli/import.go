package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"
	"github.com/ghost-auth/vaultcore/input"

	"github.com/spf13/cobra"
)

// ImportOptions holds the data required to import an encrypted backup.
type ImportOptions struct {
	*genericclioptions.StdioOptions

	api   *VaultAPIOptions
	input string
}

var _ genericclioptions.CmdOptions = &ImportOptions{}

func NewImportOptions(stdio *genericclioptions.StdioOptions, api *VaultAPIOptions) *ImportOptions {
	return &ImportOptions{StdioOptions: stdio, api: api}
}

func (*ImportOptions) Complete() error { return nil }

func (*ImportOptions) Validate() error { return nil }

func (o *ImportOptions) Run(_ context.Context, _ ...string) error {
	data, err := os.ReadFile(filepath.Clean(o.input))
	if err != nil {
		return err
	}

	password, err := input.PromptReadSecure(o.Out, int(o.In.Fd()), "Backup password: ")
	if err != nil {
		return err
	}
	defer clear(password)

	imported, skipped, err := o.api.API.ImportBackup(data, string(password))
	if err != nil {
		return err
	}

	o.Infof("imported %d account(s), skipped %d duplicate(s)\n", imported, skipped)

	return nil
}

// NewCmdImport creates the `import` cobra command.
func NewCmdImport(defaults *DefaultOptions) *cobra.Command {
	o := NewImportOptions(defaults.StdioOptions, defaults.vaultOptions)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import accounts from a password-encrypted backup file",
		Long: `Import accounts from a password-encrypted backup file, skipping any
account whose issuer/label/secret already exists in the vault.`,
		Example: `  ghostauthctl import --file vault-backup.ghostauth`,
		Run: func(cmd *cobra.Command, args []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, args...))
		},
	}

	cmd.Flags().StringVarP(&o.input, "file", "f", "", "backup input file path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
