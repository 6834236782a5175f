package fat16

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cupidthecat/cupid-os/internal/vfs"
)

func mountFAT(t *testing.T, backend Backend) *vfs.VFS {
	t.Helper()
	v := vfs.New()
	require.Equal(t, vfs.OK, v.Mount("/", "disk", NewOps("fat16", backend)))
	return v
}

func TestAdapterWriteTextReadTextRoundTrip(t *testing.T) {
	v := mountFAT(t, Format(128*1024, 32))

	fd, err := v.Open("/notes.txt", vfs.OWRONLY|vfs.OCREAT)
	require.Equal(t, vfs.OK, err)
	n, err := v.Write(fd, []byte("buy milk"))
	require.Equal(t, vfs.OK, err)
	require.Equal(t, 8, n)
	require.Equal(t, vfs.OK, v.Close(fd))

	fd2, err := v.Open("/notes.txt", vfs.ORDONLY)
	require.Equal(t, vfs.OK, err)
	buf := make([]byte, 32)
	n, err = v.Read(fd2, buf)
	require.Equal(t, vfs.OK, err)
	require.Equal(t, "buy milk", string(buf[:n]))
}

func TestAdapterDirectorySnapshotSortedDirsFirst(t *testing.T) {
	d := Format(128*1024, 32)
	require.NoError(t, d.Mkdir("ZDIR"))
	require.NoError(t, d.WriteFile("", "B.TXT", []byte("b")))
	require.NoError(t, d.WriteFile("", "a.txt", []byte("a")))
	v := mountFAT(t, d)

	fd, err := v.Open("/", vfs.ORDONLY)
	require.Equal(t, vfs.OK, err)

	var names []string
	for {
		ent, ok, err := v.Readdir(fd)
		require.Equal(t, vfs.OK, err)
		if !ok {
			break
		}
		names = append(names, ent.Name)
	}
	// FAT 8.3 names are stored upper-case regardless of how they were
	// written; directories sort first, then files alphabetically.
	require.Equal(t, []string{"ZDIR", "A.TXT", "B.TXT"}, names)
}

func TestAdapterSubdirSnapshotPinsDotDot(t *testing.T) {
	d := Format(128*1024, 32)
	require.NoError(t, d.Mkdir("SUB"))
	require.NoError(t, d.WriteFile("SUB", "X.TXT", []byte("x")))
	v := mountFAT(t, d)

	fd, err := v.Open("/SUB", vfs.ORDONLY)
	require.Equal(t, vfs.OK, err)
	ent, ok, err := v.Readdir(fd)
	require.Equal(t, vfs.OK, err)
	require.True(t, ok)
	require.Equal(t, "..", ent.Name)
}

func TestAdapterTruncateReopenGivesEmptyFile(t *testing.T) {
	v := mountFAT(t, Format(128*1024, 32))
	fd, _ := v.Open("/a.txt", vfs.OWRONLY|vfs.OCREAT)
	v.Write(fd, []byte("original"))
	v.Close(fd)

	fd2, err := v.Open("/a.txt", vfs.OWRONLY|vfs.OCREAT|vfs.OTRUNC)
	require.Equal(t, vfs.OK, err)
	st, err := v.Stat("/a.txt")
	require.Equal(t, vfs.OK, err)
	require.EqualValues(t, 0, st.Size)
	v.Close(fd2)
}

func TestAdapterUnlinkRemovesFile(t *testing.T) {
	v := mountFAT(t, Format(128*1024, 32))
	fd, _ := v.Open("/a.txt", vfs.OWRONLY|vfs.OCREAT)
	v.Close(fd)

	require.Equal(t, vfs.OK, v.Unlink("/a.txt"))
	_, err := v.Stat("/a.txt")
	require.Equal(t, vfs.ENOENT, err)
}

// failingBackend wraps a real Driver but forces the next WriteFile call
// (the one Close's flush uses to replace the on-disk contents) to fail,
// simulating spec.md P17's "driver fails mid-flush" scenario.
type failingBackend struct {
	*Driver
	failNextWrite bool
}

func (f *failingBackend) WriteFile(dir, name string, data []byte) error {
	if f.failNextWrite {
		f.failNextWrite = false
		return ErrIO
	}
	return f.Driver.WriteFile(dir, name, data)
}

func TestAdapterRollsBackOnFlushFailure(t *testing.T) {
	backend := &failingBackend{Driver: Format(128*1024, 32)}
	v := mountFAT(t, backend)

	fd, err := v.Open("/a.txt", vfs.OWRONLY|vfs.OCREAT)
	require.Equal(t, vfs.OK, err)
	v.Write(fd, []byte("original"))
	require.Equal(t, vfs.OK, v.Close(fd))

	fd2, err := v.Open("/a.txt", vfs.OWRONLY)
	require.Equal(t, vfs.OK, err)
	v.Write(fd2, []byte("replacement"))
	backend.failNextWrite = true
	require.Equal(t, vfs.EIO, v.Close(fd2))

	fd3, err := v.Open("/a.txt", vfs.ORDONLY)
	require.Equal(t, vfs.OK, err)
	buf := make([]byte, 32)
	n, err := v.Read(fd3, buf)
	require.Equal(t, vfs.OK, err)
	require.Equal(t, "original", string(buf[:n]), "a failed flush must roll back to the pre-flush contents")
}
