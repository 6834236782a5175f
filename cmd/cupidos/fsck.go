package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cupidthecat/cupid-os/internal/fat16"
)

// newFsckCmd builds the `cupidos fsck` subcommand: walk an existing
// FAT16 image's cluster chains and report orphaned or cross-linked
// clusters, exiting non-zero when the volume isn't clean. This is the
// integrity check spec.md §13 asks for around the adapter's flush path
// (spec.md §4.8's delete-then-rewrite sequence), which can leave a
// volume in exactly this state if a write is interrupted mid-flush.
func newFsckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck <image-path>",
		Short: "check a FAT16 disk image for orphaned or cross-linked clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("fsck: reading %s: %w", path, err)
			}
			driver, err := fat16.Open(data, fat16.DefaultRootEntries)
			if err != nil {
				return fmt.Errorf("fsck: %s: %w", path, err)
			}

			report := driver.Fsck()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "clusters: %d allocated / %d total\n", report.AllocatedClusters, report.TotalClusters)
			for _, c := range report.OrphanedClusters {
				fmt.Fprintf(out, "orphaned cluster: %d\n", c)
			}
			for _, c := range report.CrossLinked {
				fmt.Fprintf(out, "cross-linked cluster: %d\n", c)
			}
			if !report.Clean() {
				fmt.Fprintln(out, "fsck: volume is NOT clean")
				return fmt.Errorf("fsck: %d orphaned, %d cross-linked", len(report.OrphanedClusters), len(report.CrossLinked))
			}
			fmt.Fprintln(out, "fsck: volume is clean")
			return nil
		},
	}
	return cmd
}
