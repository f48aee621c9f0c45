package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"
	"github.com/ghost-auth/vaultcore/mergeengine"
	"github.com/ghost-auth/vaultcore/syncsession"
	"github.com/ghost-auth/vaultcore/vaultapi"

	"github.com/spf13/cobra"
)

// pairingPollInterval is how often `pair serve`/`pair join` poll
// [vaultapi.API.SyncPhase] while waiting for the exchange to finish.
const pairingPollInterval = 250 * time.Millisecond

// NewCmdPair creates the `pair` command group.
func NewCmdPair(defaults *DefaultOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair with another device to sync the vault",
	}

	cmd.AddCommand(newCmdPairServe(defaults))
	cmd.AddCommand(newCmdPairJoin(defaults))
	cmd.AddCommand(newCmdPairStatus(defaults))
	cmd.AddCommand(newCmdPairPreview(defaults))
	cmd.AddCommand(newCmdPairConfirm(defaults))
	cmd.AddCommand(newCmdPairCancel(defaults))

	return cmd
}

func newCmdPairServe(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for an incoming pairing request and stage a merge preview",
		Long: `Bind a listener on the first available private network address, print a
pairing code, and wait for a peer to connect, authenticate, and exchange
accounts. On success a merge preview is staged; run "pair preview" and
"pair confirm" to apply it.`,
		Run: func(cmd *cobra.Command, _ []string) {
			err := o.vaultOptions.API.StartPairing(func(code, addr string) {
				o.Printf("pairing code: %s\n", code)
				o.Printf("listening on %s\n", addr)
				o.Printf("scan or enter: %s\n", syncsession.URI(code, addr))
			})
			clierror.Check(err)

			clierror.Check(waitForPhase(cmd.Context(), o.vaultOptions.API, o.StdioOptions))
		},
	}

	return cmd
}

func newCmdPairJoin(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	var addr, code, uri string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Connect to a peer that is running `pair serve`",
		Long: `Connect to a peer that is running "pair serve", either by its printed
--addr/--code pair or by the single --uri it also prints (from a QR scan
or copy/paste).`,
		Example: `  ghostauthctl pair join --addr 192.168.1.14:54231 --code ABCD-EFGH-JKMN-PQRS-TUVW-XYZ2

  ghostauthctl pair join --uri "ghostauth://pair?addr=192.168.1.14:54231&code=ABCD-..."`,
		Run: func(cmd *cobra.Command, _ []string) {
			if len(uri) > 0 {
				parsedCode, parsedAddr, err := syncsession.ParseURI(uri)
				clierror.Check(err)

				code, addr = parsedCode, parsedAddr
			}

			err := o.vaultOptions.API.JoinPairing(addr, code)
			clierror.Check(err)

			clierror.Check(waitForPhase(cmd.Context(), o.vaultOptions.API, o.StdioOptions))
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "", "", "address printed by the peer's `pair serve`")
	cmd.Flags().StringVarP(&code, "code", "", "", "pairing code printed by the peer's `pair serve`")
	cmd.Flags().StringVarP(&uri, "uri", "", "", "pairing URI printed by the peer's `pair serve`, alternative to --addr/--code")

	return cmd
}

// waitForPhase blocks until the session reaches MergeReady or Failed.
func waitForPhase(ctx context.Context, api *vaultapi.API, io *genericclioptions.StdioOptions) error {
	ticker := time.NewTicker(pairingPollInterval)
	defer ticker.Stop()

	for {
		switch api.SyncPhase() {
		case vaultapi.MergeReady:
			io.Infof("merge ready; run `pair preview` then `pair confirm`.\n")
			return nil
		case vaultapi.Failed:
			return fmt.Errorf("pair: session failed")
		}

		select {
		case <-ctx.Done():
			api.CancelSync()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newCmdPairStatus(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	return &cobra.Command{
		Use:   "status",
		Short: "Print the current sync session phase",
		Run: func(_ *cobra.Command, _ []string) {
			o.Printf("%s\n", o.vaultOptions.API.SyncPhase())
		},
	}
}

func newCmdPairPreview(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	return &cobra.Command{
		Use:   "preview",
		Short: "Print the pending merge preview",
		Run: func(_ *cobra.Command, _ []string) {
			result, err := o.vaultOptions.API.Preview()
			clierror.Check(err)

			printMergePreview(o.StdioOptions, result)
		},
	}
}

func printMergePreview(io *genericclioptions.StdioOptions, r mergeengine.Result) {
	io.Printf("to add:        %d\n", len(r.ToAdd))
	io.Printf("auto-updated:  %d\n", len(r.AutoUpdated))
	io.Printf("unchanged:     %d\n", r.Unchanged)
	io.Printf("conflicts:     %d\n", len(r.Conflicts))

	for _, c := range r.Conflicts {
		io.Printf("  - %s: local %q vs remote %q (default: keep local)\n", c.Local.ID, c.Local.Label, c.Remote.Label)
	}

	io.Printf("remote deletions: %d\n", len(r.RemoteDeletions))

	for _, acc := range r.RemoteDeletions {
		io.Printf("  - %s: %q (default: keep local)\n", acc.ID, acc.Label)
	}
}

func newCmdPairConfirm(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	var keepRemote, applyDelete []string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Apply the pending merge, resolving conflicts and remote deletions",
		Long: `Apply the staged merge. Every automatic add/update is always applied.
Conflicts and remote deletions default to keeping the local copy unless
named with --keep-remote or --delete.`,
		Run: func(_ *cobra.Command, _ []string) {
			decisions := mergeengine.Decisions{}

			for _, id := range keepRemote {
				decisions[id] = mergeengine.KeepRemote
			}

			for _, id := range applyDelete {
				decisions[id] = mergeengine.Delete
			}

			clierror.Check(o.vaultOptions.API.Confirm(decisions))
			o.Infof("merge applied\n")
		},
	}

	cmd.Flags().StringSliceVarP(&keepRemote, "keep-remote", "", nil, "account ids whose conflict should resolve to the remote copy")
	cmd.Flags().StringSliceVarP(&applyDelete, "delete", "", nil, "account ids whose remote deletion should be applied")

	return cmd
}

func newCmdPairCancel(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the current sync session",
		Run: func(_ *cobra.Command, _ []string) {
			o.vaultOptions.API.CancelSync()
			o.Infof("cancelled\n")
		},
	}
}
