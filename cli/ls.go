package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"

	"github.com/spf13/cobra"
)

// ListOptions holds the data required to list accounts.
type ListOptions struct {
	*genericclioptions.StdioOptions

	api    *VaultAPIOptions
	search *genericclioptions.SearchOptions
}

var _ genericclioptions.CmdOptions = &ListOptions{}

func NewListOptions(stdio *genericclioptions.StdioOptions, api *VaultAPIOptions) *ListOptions {
	return &ListOptions{
		StdioOptions: stdio,
		api:          api,
		search:       &genericclioptions.SearchOptions{},
	}
}

func (*ListOptions) Complete() error { return nil }

func (*ListOptions) Validate() error { return nil }

func (o *ListOptions) Run(_ context.Context, _ ...string) error {
	accounts, err := o.api.API.List()
	if err != nil {
		return err
	}

	matched := make([]account.Account, 0, len(accounts))

	for _, acc := range accounts {
		if o.search.Matches(acc.ID, acc.Issuer, acc.Label) {
			matched = append(matched, acc)
		}
	}

	printAccountTable(o.Out, matched)

	return nil
}

func printAccountTable(w io.Writer, accounts []account.Account) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	fmt.Fprintln(tw, "ID\tISSUER\tLABEL\tALGO\tDIGITS\tPERIOD")

	for _, acc := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			acc.ID, acc.Issuer, acc.Label, acc.Algorithm, acc.Digits, acc.Period)
	}
}

// NewCmdList creates the `ls` cobra command.
func NewCmdList(defaults *DefaultOptions) *cobra.Command {
	o := NewListOptions(defaults.StdioOptions, defaults.vaultOptions)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List accounts in the vault",
		Run: func(cmd *cobra.Command, args []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, args...))
		},
	}

	cmd.Flags().StringSliceVarP(&o.search.IDs, "id", "", nil, o.search.Usage(genericclioptions.ID))
	cmd.Flags().StringVarP(&o.search.Issuer, "issuer", "", "", o.search.Usage(genericclioptions.ISSUER))
	cmd.Flags().StringSliceVarP(&o.search.Labels, "label", "", nil, o.search.Usage(genericclioptions.LABELS))

	return cmd
}
