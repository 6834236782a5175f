// Command cupidos is the hosted boot driver for the cupid-os kernel
// simulation: it wires together every internal/ subsystem the same order
// spec.md §2's dependency table lists (physical allocator → paging →
// heap+stack guard → timer/IRQ → processes → VFS+FAT16 → syscall table →
// window manager → desktop loop) and exposes a handful of subcommands a
// real bootloader has no equivalent of (mkfs/fsck on the FAT16 image, a
// scripted demo run) plus the one it does (`boot`).
//
// Built on github.com/spf13/cobra, the CLI framework several retrieval-pack
// manifests standardize on (rcornwell-S370, jra3-system-agent,
// containerd-nydus-snapshotter).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cupidos",
		Short: "cupid-os: a hosted simulation of a small hobby operating system kernel",
	}
	root.AddCommand(newBootCmd())
	root.AddCommand(newMkfsCmd())
	root.AddCommand(newFsckCmd())
	root.AddCommand(newDemoCmd())
	return root
}

// Execute runs the CLI, matching main.go's one-liner entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
