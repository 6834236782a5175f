package fat16

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	return Format(128*1024, 32)
}

func TestWriteReadFileRoundTrip(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.WriteFile("", "HELLO.TXT", []byte("hello fat16")))

	data, err := d.ReadFile("", "HELLO.TXT")
	require.NoError(t, err)
	require.Equal(t, "hello fat16", string(data))
}

func TestWriteFileAcrossMultipleClusters(t *testing.T) {
	d := newTestDriver(t)
	payload := make([]byte, sectorSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, d.WriteFile("", "BIG.BIN", payload))

	got, err := d.ReadFile("", "BIG.BIN")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDeleteFileFreesClusters(t *testing.T) {
	d := newTestDriver(t)
	payload := make([]byte, sectorSize*2)
	require.NoError(t, d.WriteFile("", "A.BIN", payload))

	freeBefore := countFreeClusters(d)
	require.NoError(t, d.DeleteFile("", "A.BIN"))
	freeAfter := countFreeClusters(d)
	require.Greater(t, freeAfter, freeBefore)

	_, err := d.ReadFile("", "A.BIN")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.WriteFile("", "A.TXT", []byte("version one")))
	before := countFreeClusters(d)

	require.NoError(t, d.WriteFile("", "A.TXT", []byte("v2")))
	data, err := d.ReadFile("", "A.TXT")
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
	// Replacing with a smaller payload must free the old chain, not leak it.
	require.GreaterOrEqual(t, countFreeClusters(d), before)
}

func TestMkdirAndOneLevelSubdirFiles(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Mkdir("SUB"))
	require.NoError(t, d.WriteFile("SUB", "X.TXT", []byte("nested")))

	data, err := d.ReadFile("SUB", "X.TXT")
	require.NoError(t, err)
	require.Equal(t, "nested", string(data))

	ents, err := d.List("SUB")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	require.Equal(t, "X.TXT", ents[0].Name)
}

func TestListReportsDirectoriesAndFiles(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Mkdir("SUB"))
	require.NoError(t, d.WriteFile("", "A.TXT", []byte("a")))

	ents, err := d.List("")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range ents {
		names[e.Name] = e.IsDir
	}
	require.True(t, names["SUB"], "SUB must be listed")
	require.False(t, names["A.TXT"])
}

func countFreeClusters(d *Driver) int {
	n := 0
	for c := firstDataClus; c < d.fatEntries; c++ {
		if getU16(d.fatEntry(c)) == clusterFree {
			n++
		}
	}
	return n
}
