package main

import (
	"errors"
	"fmt"
	"strings"

	"anchorkeeper/internal/keeper"
	"anchorkeeper/internal/store"

	"github.com/spf13/cobra"
)

// reconcileCmd runs one pass per file without watching
var reconcileCmd = &cobra.Command{
	Use:   "reconcile [file.sfs]...",
	Short: "Run a single reconciliation pass over each given save file",
	Long: `Runs the same pass the watcher would run when the file changes:
new anchors are added to the baseline, moved anchors are accepted and drifted
anchors are restored in place. Useful after the game was played without
anchorkeeper running.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	k := keeper.New(ctx, st, keeperOptions())
	out := cmd.OutOrStdout()

	var errs []error
	for _, path := range args {
		report, err := k.Process(ctx, path)
		if err != nil {
			fmt.Fprintf(out, "%s: FAILED: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintln(out, formatReport(report))
	}
	return errors.Join(errs...)
}

func formatReport(r keeper.PassReport) string {
	if r.Skipped {
		return fmt.Sprintf("%s: skipped (file not found)", r.Path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d anchor(s), %d added, %d moved, %d restored",
		r.Path, r.Anchors, len(r.Added), len(r.Moved), r.Corrected)
	if r.BackupPath != "" {
		fmt.Fprintf(&b, " (backup %s)", r.BackupPath)
	}
	return b.String()
}
