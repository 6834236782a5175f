package fat16

// DiskImage exposes the raw backing arena so a caller (cmd/cupidos's
// `mkfs`/`boot` subcommands) can persist or reload a volume as a flat
// file, the hosted stand-in for "the first partition" spec.md §6 names.
func (d *Driver) DiskImage() []byte { return d.disk }

// RootEntryCount reports the fixed number of root-directory slots a
// volume was formatted with, needed to re-Open an image later.
func (d *Driver) RootEntryCount() int { return d.rootCount }

// FsckReport is the supplemented mkfs/fsck tooling spec.md §13 calls for:
// a walk of the FAT chain that flags orphaned clusters (allocated but
// reachable from no directory entry) and cross-linked clusters
// (reachable from more than one chain), the exact failure mode the
// adapter's delete-then-rewrite flush (spec.md §4.8) could leave behind
// if a write was interrupted between steps.
type FsckReport struct {
	// TotalClusters is the number of data clusters the volume has.
	TotalClusters int
	// AllocatedClusters is how many the FAT marks in-use.
	AllocatedClusters int
	// OrphanedClusters are allocated but unreachable from any directory
	// entry's chain.
	OrphanedClusters []int
	// CrossLinked are visited by more than one chain walk.
	CrossLinked []int
}

// Clean reports whether the volume has no orphans and no cross-links.
func (r FsckReport) Clean() bool {
	return len(r.OrphanedClusters) == 0 && len(r.CrossLinked) == 0
}

// Fsck walks every directory's cluster chain starting from the root,
// recording which data clusters are reachable, then compares that set
// against the FAT's own allocation bits to find orphans; clusters the walk
// visited more than once are reported as cross-linked.
func (d *Driver) Fsck() FsckReport {
	visits := make(map[int]int)
	d.walkDir(dirLocation{root: true}, visits)

	report := FsckReport{TotalClusters: d.fatEntries - firstDataClus}
	for c := firstDataClus; c < d.fatEntries; c++ {
		if getU16(d.fatEntry(c)) != clusterFree {
			report.AllocatedClusters++
			if visits[c] == 0 {
				report.OrphanedClusters = append(report.OrphanedClusters, c)
			}
		}
	}
	for c, n := range visits {
		if n > 1 {
			report.CrossLinked = append(report.CrossLinked, c)
		}
	}
	return report
}

// walkDir records every cluster reachable from loc's own chain (for a
// subdirectory) and recurses into any subdirectory entries it contains,
// then walks each file's data chain too, so every allocated cluster in
// active use by the namespace ends up visited at least once.
func (d *Driver) walkDir(loc dirLocation, visits map[int]int) {
	if !loc.root {
		d.walkChain(loc.firstCluster, visits)
	}
	for _, s := range d.slotsOf(loc) {
		e := decodeDirEntry(s.bytes)
		if e.isFree() || e.firstCluster == 0 {
			continue
		}
		if e.isDir() {
			d.walkDir(dirLocation{firstCluster: e.firstCluster}, visits)
		} else {
			d.walkChain(e.firstCluster, visits)
		}
	}
}

// walkChain marks every cluster in start's chain as visited, bailing out
// once a cluster has already been seen twice so a cyclic chain (itself a
// corruption) cannot loop forever.
func (d *Driver) walkChain(start uint16, visits map[int]int) {
	c := int(start)
	for c >= firstDataClus && c < d.fatEntries {
		visits[c]++
		if visits[c] > 2 {
			return
		}
		next := getU16(d.fatEntry(c))
		if next >= clusterReserve {
			return
		}
		c = int(next)
	}
}
