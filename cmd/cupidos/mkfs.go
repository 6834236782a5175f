package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cupidthecat/cupid-os/internal/fat16"
)

// newMkfsCmd builds the `cupidos mkfs` subcommand: format a fresh FAT16
// volume of the requested size and write it to a file, the supplemented
// tooling spec.md §13 calls for around the adapter's "assumed external"
// driver.
func newMkfsCmd() *cobra.Command {
	var sizeKB int

	cmd := &cobra.Command{
		Use:   "mkfs <image-path>",
		Short: "format a fresh FAT16 disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if sizeKB <= 0 {
				return fmt.Errorf("mkfs: --size-kb must be positive")
			}
			driver := fat16.Format(sizeKB*1024, fat16.DefaultRootEntries)
			if err := os.WriteFile(path, driver.DiskImage(), 0o644); err != nil {
				return fmt.Errorf("mkfs: writing %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "formatted FAT16 volume: %s (%d KiB)\n", path, sizeKB)
			return nil
		},
	}

	cmd.Flags().IntVar(&sizeKB, "size-kb", defaultFATBytes/1024, "volume size in kibibytes")
	return cmd
}
