package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"
	"github.com/ghost-auth/vaultcore/input"

	"github.com/spf13/cobra"
)

// RemoveOptions holds the data required to run the remove command.
type RemoveOptions struct {
	*genericclioptions.StdioOptions

	api       *VaultAPIOptions
	search    *genericclioptions.SearchOptions
	assumeYes bool
	removeAll bool
}

var _ genericclioptions.CmdOptions = &RemoveOptions{}

func NewRemoveOptions(stdio *genericclioptions.StdioOptions, api *VaultAPIOptions) *RemoveOptions {
	return &RemoveOptions{
		StdioOptions: stdio,
		api:          api,
		search:       &genericclioptions.SearchOptions{},
	}
}

func (*RemoveOptions) Complete() error { return nil }

func (*RemoveOptions) Validate() error { return nil }

func (o *RemoveOptions) Run(_ context.Context, _ ...string) error {
	accounts, err := o.api.API.List()
	if err != nil {
		return err
	}

	var matched []account.Account

	for _, acc := range accounts {
		if o.search.Matches(acc.ID, acc.Issuer, acc.Label) {
			matched = append(matched, acc)
		}
	}

	count := len(matched)

	if count > 0 && !o.assumeYes {
		printAccountTable(o.Out, matched)
	}

	switch count {
	case 1:
		o.Debugf("found one match.\n")
	case 0:
		o.Errorf("no match found.\n")
		return nil
	default:
		o.Errorf("found %d matching accounts.\n", count)

		if !o.removeAll {
			return fmt.Errorf("rm: %d matching accounts found, use --all to delete all", count)
		}
	}

	if !o.assumeYes {
		yes, err := confirm(o.Out, o.In, "Delete %d account(s)? (y/N): ", count)
		if err != nil {
			return err
		}

		if !yes {
			return nil
		}
	}

	for _, acc := range matched {
		if err := o.api.API.Delete(acc.ID); err != nil {
			return err
		}
	}

	o.Infof("deleted %d account(s)\n", count)

	return nil
}

func confirm(out io.Writer, in io.Reader, prompt string, a ...any) (bool, error) {
	response, err := input.PromptRead(out, in, prompt, a...)
	if err != nil {
		return false, err
	}

	normalized := strings.ToLower(strings.TrimSpace(response))

	return slices.Contains([]string{"y", "yes"}, normalized), nil
}

// NewCmdRemove creates the `rm` cobra command.
func NewCmdRemove(defaults *DefaultOptions) *cobra.Command {
	o := NewRemoveOptions(defaults.StdioOptions, defaults.vaultOptions)

	cmd := &cobra.Command{
		Use:     "rm",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove accounts from the vault",
		Long: `Remove one or more accounts from the vault, leaving a tombstone for sync.

Use --id, --issuer, or --label to select which accounts to remove.`,
		Example: `  # Remove an account by id
  ghostauthctl rm --id 3fae1f8a-...

  # Remove every account with a matching issuer, without confirmation
  ghostauthctl rm --issuer "Old Service*" --all --yes`,
		Run: func(cmd *cobra.Command, args []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, args...))
		},
	}

	cmd.Flags().StringSliceVarP(&o.search.IDs, "id", "", nil, o.search.Usage(genericclioptions.ID))
	cmd.Flags().StringVarP(&o.search.Issuer, "issuer", "", "", o.search.Usage(genericclioptions.ISSUER))
	cmd.Flags().StringSliceVarP(&o.search.Labels, "label", "", nil, o.search.Usage(genericclioptions.LABELS))
	cmd.Flags().BoolVarP(&o.assumeYes, "yes", "y", false, "skip confirmation prompts")
	cmd.Flags().BoolVar(&o.removeAll, "all", false, "remove all matching accounts")

	return cmd
}
