package cli

import (
	"context"
	"errors"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"

	"github.com/spf13/cobra"
)

// UpdateOptions holds the data required to rename an account.
type UpdateOptions struct {
	*genericclioptions.StdioOptions

	api *VaultAPIOptions

	id     string
	issuer string
	label  string
}

var _ genericclioptions.CmdOptions = &UpdateOptions{}

func NewUpdateOptions(stdio *genericclioptions.StdioOptions, api *VaultAPIOptions) *UpdateOptions {
	return &UpdateOptions{StdioOptions: stdio, api: api}
}

func (*UpdateOptions) Complete() error { return nil }

func (o *UpdateOptions) Validate() error {
	if len(o.id) == 0 {
		return errors.New("update: --id is required")
	}

	if len(o.issuer) == 0 && len(o.label) == 0 {
		return errors.New("update: at least one of --issuer or --label must be set")
	}

	return nil
}

func (o *UpdateOptions) Run(_ context.Context, _ ...string) error {
	accounts, err := o.api.API.List()
	if err != nil {
		return err
	}

	issuer, label := o.issuer, o.label

	for _, acc := range accounts {
		if acc.ID != o.id {
			continue
		}

		if len(issuer) == 0 {
			issuer = acc.Issuer
		}

		if len(label) == 0 {
			label = acc.Label
		}

		break
	}

	if err := o.api.API.UpdateMetadata(o.id, issuer, label); err != nil {
		return err
	}

	o.Infof("updated %s\n", o.id)

	return nil
}

// NewCmdUpdate creates the `update` cobra command.
func NewCmdUpdate(defaults *DefaultOptions) *cobra.Command {
	o := NewUpdateOptions(defaults.StdioOptions, defaults.vaultOptions)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Rename an account's issuer or label",
		Example: `  ghostauthctl update --id 3fae1f8a-... --label bob@example.com`,
		Run: func(cmd *cobra.Command, args []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, args...))
		},
	}

	cmd.Flags().StringVarP(&o.id, "id", "", "", "account id to update")
	cmd.Flags().StringVarP(&o.issuer, "issuer", "", "", "new issuer value, leave unset to keep the current one")
	cmd.Flags().StringVarP(&o.label, "label", "", "", "new label value, leave unset to keep the current one")

	_ = cmd.MarkFlagRequired("id")

	return cmd
}
