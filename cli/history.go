package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewCmdHistory creates the `sync-history` cobra command.
func NewCmdHistory(defaults *DefaultOptions) *cobra.Command {
	o := defaults

	return &cobra.Command{
		Use:     "sync-history",
		Aliases: []string{"history"},
		Short:   "List the last sync time recorded for every peer device",
		Run: func(_ *cobra.Command, _ []string) {
			entries := o.vaultOptions.API.SyncHistory()

			deviceIDs := make([]string, 0, len(entries))
			for id := range entries {
				deviceIDs = append(deviceIDs, id)
			}

			sort.Strings(deviceIDs)

			tw := tabwriter.NewWriter(o.Out, 0, 0, 3, ' ', 0)
			defer func() { _ = tw.Flush() }()

			fmt.Fprintln(tw, "DEVICE\tLAST SYNC")

			for _, id := range deviceIDs {
				t := time.Unix(entries[id], 0)
				fmt.Fprintf(tw, "%s\t%s\n", id, t.Format(time.RFC3339))
			}
		},
	}
}
