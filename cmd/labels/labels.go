// Package labels implements the labels subcommand.
package labels

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/leafnet-go/internal/classifier"
	"github.com/tphakala/leafnet-go/internal/conf"
)

// Command creates the labels command which lists each slot's labels in
// model output order.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the label set of every model slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Print(cmd.OutOrStdout(), classifier.SlotsFromSettings(settings))
		},
	}

	return cmd
}

// Print writes one block per slot, each label prefixed by its output index.
func Print(w io.Writer, slots []classifier.SlotConfig) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, slot := range slots {
		labels, err := classifier.ResolveLabels(slot)
		if err != nil {
			return fmt.Errorf("slot %q: %w", slot.Name, err)
		}

		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t(%d labels, %s)\n", slot.Name, len(labels), slot.ModelPath)
		for j, label := range labels {
			fmt.Fprintf(tw, "  %d\t%s\n", j, label)
		}
	}
	return tw.Flush()
}
