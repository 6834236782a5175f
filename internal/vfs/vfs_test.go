package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// memFS backs a trivial in-memory filesystem used to exercise the VFS
// layer's mount resolution, descriptor table, and generic rename without
// needing a real backend (internal/ramfs and internal/fat16 get their own
// dedicated tests).
type memFS struct {
	files map[string][]byte
	dirs  map[string]bool
}

type memHandle struct {
	name string
	pos  int64
}

func mountMem(t *testing.T, v *VFS, path string) *memFS {
	t.Helper()
	fs := &memFS{files: map[string][]byte{}, dirs: map[string]bool{}}
	ops := &Ops{
		FSName: "memfs",
		Mount: func(source string) (interface{}, Errno) {
			return fs, OK
		},
		Open: func(fp interface{}, relpath string, flags OpenFlag) (interface{}, Errno) {
			s := fp.(*memFS)
			if s.dirs[relpath] {
				return nil, EISDIR
			}
			_, exists := s.files[relpath]
			if !exists {
				if flags&OCREAT == 0 {
					return nil, ENOENT
				}
				s.files[relpath] = nil
			} else if flags&OTRUNC != 0 {
				s.files[relpath] = nil
			}
			return &memHandle{name: relpath}, OK
		},
		Close: func(h interface{}) Errno { return OK },
		Read: func(h interface{}, buf []byte) (int, Errno) {
			mh := h.(*memHandle)
			data := fs.files[mh.name]
			if mh.pos >= int64(len(data)) {
				return 0, OK
			}
			n := copy(buf, data[mh.pos:])
			mh.pos += int64(n)
			return n, OK
		},
		Write: func(h interface{}, buf []byte) (int, Errno) {
			mh := h.(*memHandle)
			data := fs.files[mh.name]
			if mh.pos > int64(len(data)) {
				return 0, EIO
			}
			data = append(data[:mh.pos], buf...)
			fs.files[mh.name] = data
			mh.pos += int64(len(buf))
			return len(buf), OK
		},
		Stat: func(fp interface{}, relpath string) (DirEnt, Errno) {
			s := fp.(*memFS)
			if s.dirs[relpath] {
				return DirEnt{Name: relpath, Kind: KindDirectory}, OK
			}
			if data, ok := s.files[relpath]; ok {
				return DirEnt{Name: relpath, Size: int64(len(data)), Kind: KindFile}, OK
			}
			return DirEnt{}, ENOENT
		},
		Unlink: func(fp interface{}, relpath string) Errno {
			s := fp.(*memFS)
			if _, ok := s.files[relpath]; !ok {
				return ENOENT
			}
			delete(s.files, relpath)
			return OK
		},
	}
	require.Equal(t, OK, v.Mount(path, "mem", ops))
	return fs
}

func TestLongestPrefixMountWins(t *testing.T) {
	v := New()
	mountMem(t, v, "/")
	mountMem(t, v, "/mnt")
	mountMem(t, v, "/mnt/data")

	m, rel, err := v.resolve("/mnt/data/file.txt")
	require.Equal(t, OK, err)
	require.Equal(t, "/mnt/data", m.path)
	require.Equal(t, "file.txt", rel)

	m, rel, err = v.resolve("/mnt/other.txt")
	require.Equal(t, OK, err)
	require.Equal(t, "/mnt", m.path)
	require.Equal(t, "other.txt", rel)

	m, rel, err = v.resolve("/unrelated")
	require.Equal(t, OK, err)
	require.Equal(t, "/", m.path)
	require.Equal(t, "unrelated", rel)
}

func TestOpenReadWriteRoundTrip(t *testing.T) {
	v := New()
	mountMem(t, v, "/")

	fd, err := v.Open("/hello.txt", OWRONLY|OCREAT)
	require.Equal(t, OK, err)

	n, err := v.Write(fd, []byte("hi"))
	require.Equal(t, OK, err)
	require.Equal(t, 2, n)
	require.Equal(t, OK, v.Close(fd))

	fd2, err := v.Open("/hello.txt", ORDONLY)
	require.Equal(t, OK, err)
	buf := make([]byte, 16)
	n, err = v.Read(fd2, buf)
	require.Equal(t, OK, err)
	require.Equal(t, "hi", string(buf[:n]))
	require.Equal(t, OK, v.Close(fd2))
}

func TestOpenSmallestFreeIndexAndEMFILE(t *testing.T) {
	v := New()
	mountMem(t, v, "/")

	fd0, err := v.Open("/a", OWRONLY|OCREAT)
	require.Equal(t, OK, err)
	require.Equal(t, 0, fd0)
	fd1, err := v.Open("/b", OWRONLY|OCREAT)
	require.Equal(t, OK, err)
	require.Equal(t, 1, fd1)

	require.Equal(t, OK, v.Close(fd0))
	fd2, err := v.Open("/c", OWRONLY|OCREAT)
	require.Equal(t, OK, err)
	require.Equal(t, 0, fd2, "closing fd 0 must make it the smallest free index again")
}

func TestCloseIsIdempotent(t *testing.T) {
	v := New()
	mountMem(t, v, "/")
	fd, _ := v.Open("/a", OWRONLY|OCREAT)
	require.Equal(t, OK, v.Close(fd))
	// P15: a second close must not corrupt the table, but reports INVAL
	// rather than silently succeeding.
	require.Equal(t, EINVAL, v.Close(fd))
}

func TestRenameCopiesAndUnlinksSource(t *testing.T) {
	v := New()
	fs := mountMem(t, v, "/")
	fs.files["a"] = []byte("payload")

	require.Equal(t, OK, v.Rename("/a", "/b"))
	_, err := v.Stat("/a")
	require.Equal(t, ENOENT, err)
	st, err := v.Stat("/b")
	require.Equal(t, OK, err)
	require.EqualValues(t, len("payload"), st.Size)
}

func TestCopyLeavesSourceIntact(t *testing.T) {
	v := New()
	fs := mountMem(t, v, "/")
	fs.files["a"] = []byte("payload")

	require.Equal(t, OK, v.Copy("/a", "/b"))
	st, err := v.Stat("/a")
	require.Equal(t, OK, err)
	require.EqualValues(t, len("payload"), st.Size)
	st, err = v.Stat("/b")
	require.Equal(t, OK, err)
	require.EqualValues(t, len("payload"), st.Size)
}

func TestRenameRefusesDirectories(t *testing.T) {
	v := New()
	fs := mountMem(t, v, "/")
	fs.dirs["sub"] = true

	require.Equal(t, EISDIR, v.Rename("/sub", "/sub2"))
}

func TestUnmountThenResolveFails(t *testing.T) {
	v := New()
	mountMem(t, v, "/data")
	require.Equal(t, OK, v.Unmount("/data"))
	_, _, err := v.resolve("/data/x")
	require.Equal(t, ENOENT, err)
}

func TestMountsUnderListsImmediateChildren(t *testing.T) {
	v := New()
	mountMem(t, v, "/")
	mountMem(t, v, "/home")
	mountMem(t, v, "/dev")
	mountMem(t, v, "/home/sub")

	got := v.MountsUnder("/")
	require.ElementsMatch(t, []string{"home", "dev"}, got)
}

func TestMountsUnderExcludesUnrelatedPrefixes(t *testing.T) {
	v := New()
	mountMem(t, v, "/")
	mountMem(t, v, "/home")
	mountMem(t, v, "/homebrew")
	mountMem(t, v, "/home/sub")

	// "/homebrew" is a sibling, not a descendant of "/home" — a naive
	// strings.HasPrefix("/homebrew", "/home") check would wrongly treat
	// it as one.
	require.Equal(t, []string{"sub"}, v.MountsUnder("/home"))
}
