package fat16

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFsckReportsCleanVolume(t *testing.T) {
	d := Format(64*1024, 32)
	require.NoError(t, d.WriteFile("", "a.txt", []byte("hello")))
	require.NoError(t, d.Mkdir("sub"))
	require.NoError(t, d.WriteFile("sub", "b.txt", []byte("world, this spans more than one cluster if padded")))

	report := d.Fsck()
	require.True(t, report.Clean(), "expected clean volume, got %+v", report)
	require.GreaterOrEqual(t, report.AllocatedClusters, 2)
}

func TestFsckFindsOrphanedCluster(t *testing.T) {
	d := Format(64*1024, 32)
	require.NoError(t, d.WriteFile("", "a.txt", []byte("hello")))

	// Simulate a crash between "delete" and "write new chain" (spec.md
	// §4.8's flush sequence): directly mark the cluster allocated in the
	// FAT without any directory entry pointing at it.
	c, ok := d.allocCluster()
	require.True(t, ok)

	report := d.Fsck()
	require.Contains(t, report.OrphanedClusters, c)
	require.False(t, report.Clean())
}

func TestDiskImageRoundTripsThroughOpen(t *testing.T) {
	d := Format(64*1024, 32)
	require.NoError(t, d.WriteFile("", "a.txt", []byte("persisted")))

	reopened, err := Open(d.DiskImage(), d.RootEntryCount())
	require.NoError(t, err)
	data, err := reopened.ReadFile("", "a.txt")
	require.NoError(t, err)
	require.Equal(t, "persisted", string(data))
}
