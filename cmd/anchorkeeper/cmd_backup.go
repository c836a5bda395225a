package main

import (
	"fmt"
	"path/filepath"
	"time"

	"anchorkeeper/internal/backup"

	"github.com/spf13/cobra"
)

// backupCmd manages snapshots taken before rewrites
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List or restore save file snapshots",
}

var backupListCmd = &cobra.Command{
	Use:   "list [file.sfs]",
	Short: "List snapshots of a save file, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  backupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [snapshot] [dest]",
	Short: "Decompress a snapshot over a save file",
	Args:  cobra.ExactArgs(2),
	RunE:  backupRestore,
}

func backupList(cmd *cobra.Command, args []string) error {
	var base string
	if len(args) == 1 {
		base = filepath.Base(args[0])
	}

	entries, err := backup.New(cfg.Backup.Directory, cfg.Backup.Keep).List(base)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No snapshots.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s  %s\n", e.TakenAt.Local().Format(time.DateTime), e.Source, e.Path)
	}
	return nil
}

func backupRestore(cmd *cobra.Command, args []string) error {
	if err := backup.Restore(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[1])
	return nil
}
