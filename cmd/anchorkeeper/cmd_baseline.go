package main

import (
	"fmt"
	"text/tabwriter"

	"anchorkeeper/internal/logging"
	"anchorkeeper/internal/store"

	"github.com/spf13/cobra"
)

// baselineCmd inspects and edits the persisted baseline
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect or edit the anchor baseline",
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered anchors",
	Args:  cobra.NoArgs,
	RunE:  baselineList,
}

var baselineForgetCmd = &cobra.Command{
	Use:   "forget [pid]",
	Short: "Remove an anchor from the baseline",
	Long: `Removes one anchor from the baseline. If the anchor still exists in a save
file it is added again, at its current position, the next time that file is
processed.`,
	Args: cobra.ExactArgs(1),
	RunE: baselineForget,
}

func baselineList(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	set := st.Load(commandContext(cmd))
	out := cmd.OutOrStdout()
	if set.Len() == 0 {
		fmt.Fprintln(out, "No anchors in baseline.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tLAT\tLON\tALT\tHGT")
	for _, a := range set.Sorted() {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.3f\t%.3f\n", a.PID, a.Lat, a.Lon, a.Alt, a.Hgt)
	}
	return tw.Flush()
}

func baselineForget(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	pid := args[0]
	removed, err := st.Forget(commandContext(cmd), pid)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no anchor with pid %s in baseline", pid)
	}
	logging.Store("Forgot anchor %s", pid)
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", pid)
	return nil
}
