package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cupidthecat/cupid-os/internal/vfs"
)

// newBootCmd builds the `cupidos boot` subcommand: construct a Kernel,
// print the banner spec.md §8 scenario 1 expects ("Welcome to cupid-os!"
// followed by an `ls /` that names at least home and dev), then persist
// the FAT volume back to disk if an image path was given.
func newBootCmd() *cobra.Command {
	var ramMB uint32
	var fatImage string
	var fontPath string

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "boot the kernel simulation, mount filesystems, and print the startup banner",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer log.Sync()

			k, err := bootKernel(bootOptions{
				ramBytes:     ramMB * 1024 * 1024,
				fatImagePath: fatImage,
				fontPath:     fontPath,
			}, log)
			if err != nil {
				return err
			}

			fmt.Println("Welcome to cupid-os!")
			if err := printLS(cmd, k.VFS, "/"); err != nil {
				return err
			}

			return persistFAT(k, fatImage)
		},
	}

	cmd.Flags().Uint32Var(&ramMB, "ram-mb", defaultRAMBytes/(1024*1024), "simulated RAM size in megabytes")
	cmd.Flags().StringVar(&fatImage, "fat-image", "", "path to a FAT16 disk image (formatted fresh if missing)")
	cmd.Flags().StringVar(&fontPath, "font", "", "path to a TrueType font for window manager text")
	return cmd
}

// printLS lists dirPath's real backing entries plus, per
// internal/vfs.MountsUnder, any mount points layered on top of it that
// have no entry of their own in the backing filesystem — the mechanism
// behind scenario 1's "ls / returns at least the entries home, dev".
func printLS(cmd *cobra.Command, v *vfs.VFS, dirPath string) error {
	fd, errno := v.Open(dirPath, vfs.ORDONLY)
	if errno != vfs.OK {
		return fmt.Errorf("ls %s: %s", dirPath, errno)
	}
	defer v.Close(fd)

	seen := make(map[string]bool)
	for {
		ent, ok, errno := v.Readdir(fd)
		if errno != vfs.OK {
			return fmt.Errorf("ls %s: %s", dirPath, errno)
		}
		if !ok {
			break
		}
		seen[ent.Name] = true
		kind := "f"
		if ent.Kind == vfs.KindDirectory {
			kind = "d"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %8d %s\n", kind, ent.Size, ent.Name)
	}
	for _, name := range v.MountsUnder(dirPath) {
		if !seen[name] {
			fmt.Fprintf(cmd.OutOrStdout(), "d %8d %s\n", 0, name)
		}
	}
	return nil
}
