// Package vfs implements spec.md §4.7: a mount table with longest-prefix
// resolution, a filesystem-operations vtable, a file-descriptor table, and
// generic rename.
//
// The teacher's syscall.go dispatches POSIX-shaped syscalls by returning
// negative errno values from hand-written functions; cupid-os keeps that
// "one function per operation, error is a value, not an exception" shape
// but replaces the raw int64/-errno convention with a typed Errno kind
// (spec.md §6: "callers must switch on the kind rather than magic
// integers") and replaces "one giant switch on syscall number" with a
// literal vtable — a struct of optional function fields, mirroring the
// spec's own fs_ops description ("any op may be absent; callers map
// absence to ENOSYS") far more directly than a Go interface would allow.
package vfs

import (
	"strings"

	"github.com/cupidthecat/cupid-os/internal/critsec"
)

// Errno is the shared error-kind enumeration of spec.md §6.
type Errno int

const (
	OK Errno = iota
	EINVAL
	ENOENT
	EIO
	ENOSYS
	EISDIR
	ENOTDIR
	ENOSPC
	EMFILE
)

func (e Errno) String() string {
	switch e {
	case OK:
		return "OK"
	case EINVAL:
		return "INVAL"
	case ENOENT:
		return "NOENT"
	case EIO:
		return "IO"
	case ENOSYS:
		return "NOSYS"
	case EISDIR:
		return "ISDIR"
	case ENOTDIR:
		return "NOTDIR"
	case ENOSPC:
		return "NOSPC"
	case EMFILE:
		return "MFILE"
	default:
		return "UNKNOWN"
	}
}

func (e Errno) Error() string { return "vfs: " + e.String() }

// OpenFlag mirrors spec.md §6's POSIX-style open flags.
type OpenFlag uint32

const (
	ORDONLY OpenFlag = 0
	OWRONLY OpenFlag = 1 << (iota - 1)
	ORDWR
	OCREAT
	OTRUNC
	OAPPEND
)

// EntKind is a directory entry's type (spec.md §3).
type EntKind int

const (
	KindFile EntKind = iota
	KindDirectory
	KindDevice
)

// DirEnt is one VFS directory entry.
type DirEnt struct {
	Name string
	Size int64
	Kind EntKind
}

// Whence values for Seek, matching spec.md §4.7's SEEK_CUR/SEEK_END.
const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

// Ops is a filesystem's vtable. Every field is an optional function
// pointer; a nil field is absence, and every dispatch site here maps
// that absence to ENOSYS rather than panicking (spec.md §4.7).
type Ops struct {
	FSName string

	Mount   func(source string) (fsPrivate interface{}, err Errno)
	Unmount func(fsPrivate interface{}) Errno

	Open  func(fsPrivate interface{}, relpath string, flags OpenFlag) (handle interface{}, err Errno)
	Close func(handle interface{}) Errno
	Read  func(handle interface{}, buf []byte) (n int, err Errno)
	Write func(handle interface{}, buf []byte) (n int, err Errno)
	Seek  func(handle interface{}, offset int64, whence int) (pos int64, err Errno)

	Stat    func(fsPrivate interface{}, relpath string) (DirEnt, Errno)
	Readdir func(handle interface{}) (ent DirEnt, ok bool, err Errno)
	Mkdir   func(fsPrivate interface{}, relpath string) Errno
	Unlink  func(fsPrivate interface{}, relpath string) Errno
}

func (o *Ops) name() string {
	if o == nil || o.FSName == "" {
		return "?"
	}
	return o.FSName
}

// mountEntry is one row of the mount table (spec.md §3).
type mountEntry struct {
	path      string
	ops       *Ops
	fsPrivate interface{}
	mounted   bool
}

// MaxFDs bounds the descriptor table.
const MaxFDs = 64

type descriptor struct {
	inUse  bool
	flags  OpenFlag
	pos    int64
	handle interface{}
	mount  *mountEntry
}

// VFS is the kernel's single mount table plus descriptor table.
type VFS struct {
	guard  *critsec.Guard
	mounts []*mountEntry
	fds    [MaxFDs]descriptor
}

// New returns an empty VFS with no mounts.
func New() *VFS {
	return &VFS{guard: critsec.New()}
}

// Mount installs ops at path by calling its Mount op (absent ⇒ ENOSYS).
// At most one mount may exist at an exact path (spec.md §3's invariant).
func (v *VFS) Mount(path, source string, ops *Ops) Errno {
	path = normalizeMountPath(path)
	v.guard.Enter()
	defer v.guard.Leave()

	for _, m := range v.mounts {
		if m.path == path {
			return EINVAL
		}
	}
	if ops == nil || ops.Mount == nil {
		return ENOSYS
	}
	priv, err := ops.Mount(source)
	if err != OK {
		return err
	}
	v.mounts = append(v.mounts, &mountEntry{path: path, ops: ops, fsPrivate: priv, mounted: true})
	return OK
}

func normalizeMountPath(path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// Unmount removes the mount at path.
func (v *VFS) Unmount(path string) Errno {
	path = normalizeMountPath(path)
	v.guard.Enter()
	defer v.guard.Leave()

	for i, m := range v.mounts {
		if m.path == path {
			if m.ops.Unmount != nil {
				if err := m.ops.Unmount(m.fsPrivate); err != OK {
					return err
				}
			}
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			return OK
		}
	}
	return ENOENT
}

// MountsUnder reports the first path component, relative to prefix, of
// every mount strictly below prefix in the mount table — the "what's
// mounted under here" query a shell's `ls` needs to show mountpoints that
// have no entry of their own in their parent's backing filesystem (spec.md
// §3's mount table is flat, so a parent directory's own readdir has no way
// to know a child path is a separate mount unless something walks the
// table directly). Results are deduplicated and unordered.
func (v *VFS) MountsUnder(prefix string) []string {
	prefix = normalizeMountPath(prefix)
	v.guard.Enter()
	defer v.guard.Leave()

	seen := make(map[string]bool)
	var out []string
	for _, m := range v.mounts {
		rel := m.path
		if prefix != "/" {
			if !strings.HasPrefix(rel, prefix+"/") {
				continue
			}
			rel = strings.TrimPrefix(rel, prefix+"/")
		} else {
			if rel == "/" {
				continue
			}
			rel = strings.TrimPrefix(rel, "/")
		}
		if rel == "" {
			continue
		}
		first := strings.SplitN(rel, "/", 2)[0]
		if !seen[first] {
			seen[first] = true
			out = append(out, first)
		}
	}
	return out
}

// resolve implements spec.md §4.7's longest-prefix resolution. It must
// be called with the guard held.
func (v *VFS) resolve(path string) (*mountEntry, string, Errno) {
	if !strings.HasPrefix(path, "/") {
		return nil, "", EINVAL
	}
	var best *mountEntry
	for _, m := range v.mounts {
		if m.path == path || m.path == "/" || (strings.HasPrefix(path, m.path) && strings.HasPrefix(path[len(m.path):], "/")) {
			if best == nil || len(m.path) > len(best.path) {
				best = m
			}
		}
	}
	if best == nil {
		return nil, "", ENOENT
	}
	rel := strings.TrimPrefix(path, best.path)
	rel = strings.TrimPrefix(rel, "/")
	return best, rel, OK
}

// Open implements spec.md §4.7's "open returns the smallest free index or
// EMFILE" descriptor semantics.
func (v *VFS) Open(path string, flags OpenFlag) (int, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	m, rel, err := v.resolve(path)
	if err != OK {
		return -1, err
	}
	if m.ops.Open == nil {
		return -1, ENOSYS
	}

	fd := -1
	for i := range v.fds {
		if !v.fds[i].inUse {
			fd = i
			break
		}
	}
	if fd < 0 {
		return -1, EMFILE
	}

	h, err := m.ops.Open(m.fsPrivate, rel, flags)
	if err != OK {
		return -1, err
	}
	v.fds[fd] = descriptor{inUse: true, flags: flags, handle: h, mount: m}
	return fd, OK
}

func (v *VFS) descAt(fd int) (*descriptor, Errno) {
	if fd < 0 || fd >= MaxFDs || !v.fds[fd].inUse {
		return nil, EINVAL
	}
	return &v.fds[fd], OK
}

// Read implements spec.md §4.7: the byte count read is added to the
// descriptor's position.
func (v *VFS) Read(fd int, buf []byte) (int, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	d, err := v.descAt(fd)
	if err != OK {
		return 0, err
	}
	if d.mount.ops.Read == nil {
		return 0, ENOSYS
	}
	n, err := d.mount.ops.Read(d.handle, buf)
	d.pos += int64(n)
	return n, err
}

// Write implements spec.md §4.7: the byte count written is added to the
// descriptor's position.
func (v *VFS) Write(fd int, buf []byte) (int, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	d, err := v.descAt(fd)
	if err != OK {
		return 0, err
	}
	if d.mount.ops.Write == nil {
		return 0, ENOSYS
	}
	n, err := d.mount.ops.Write(d.handle, buf)
	d.pos += int64(n)
	return n, err
}

// Seek moves a descriptor's position.
func (v *VFS) Seek(fd int, offset int64, whence int) (int64, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	d, err := v.descAt(fd)
	if err != OK {
		return 0, err
	}
	if d.mount.ops.Seek == nil {
		return 0, ENOSYS
	}
	pos, err := d.mount.ops.Seek(d.handle, offset, whence)
	if err == OK {
		d.pos = pos
	}
	return pos, err
}

// Close implements spec.md §4.7: "close calls the filesystem's close even
// if the descriptor was only partially initialized; then clears the
// table slot."
func (v *VFS) Close(fd int) Errno {
	v.guard.Enter()
	defer v.guard.Leave()

	d, err := v.descAt(fd)
	if err != OK {
		// spec.md P15: a second close is idempotent (never corrupts the
		// table) but still reports INVAL rather than pretending to
		// succeed.
		return EINVAL
	}
	var closeErr Errno = OK
	if d.mount.ops.Close != nil {
		closeErr = d.mount.ops.Close(d.handle)
	}
	v.fds[fd] = descriptor{}
	return closeErr
}

// Stat resolves path and calls its filesystem's Stat op.
func (v *VFS) Stat(path string) (DirEnt, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	m, rel, err := v.resolve(path)
	if err != OK {
		return DirEnt{}, err
	}
	if m.ops.Stat == nil {
		return DirEnt{}, ENOSYS
	}
	return m.ops.Stat(m.fsPrivate, rel)
}

// Readdir reads the next directory entry from an open directory
// descriptor. ok is false once the snapshot is exhausted.
func (v *VFS) Readdir(fd int) (DirEnt, bool, Errno) {
	v.guard.Enter()
	defer v.guard.Leave()

	d, err := v.descAt(fd)
	if err != OK {
		return DirEnt{}, false, err
	}
	if d.mount.ops.Readdir == nil {
		return DirEnt{}, false, ENOSYS
	}
	return d.mount.ops.Readdir(d.handle)
}

// Mkdir resolves path and delegates to its filesystem.
func (v *VFS) Mkdir(path string) Errno {
	v.guard.Enter()
	defer v.guard.Leave()

	m, rel, err := v.resolve(path)
	if err != OK {
		return err
	}
	if m.ops.Mkdir == nil {
		return ENOSYS
	}
	return m.ops.Mkdir(m.fsPrivate, rel)
}

// Unlink resolves path and delegates to its filesystem.
func (v *VFS) Unlink(path string) Errno {
	v.guard.Enter()
	defer v.guard.Leave()

	m, rel, err := v.resolve(path)
	if err != OK {
		return err
	}
	if m.ops.Unlink == nil {
		return ENOSYS
	}
	return m.ops.Unlink(m.fsPrivate, rel)
}

const copyChunkSize = 4096

// copyFile implements the stat/open/read-write-loop/rollback sequence
// shared by Rename and Copy: stat, refuse directories, copy in
// copyChunkSize pieces, unlinking newPath on any failure so a partial
// copy never survives (P14).
func (v *VFS) copyFile(oldPath, newPath string) Errno {
	st, err := v.Stat(oldPath)
	if err != OK {
		return err
	}
	if st.Kind == KindDirectory {
		return EISDIR
	}

	oldFD, err := v.Open(oldPath, ORDONLY)
	if err != OK {
		return err
	}
	defer v.Close(oldFD)

	newFD, err := v.Open(newPath, OWRONLY|OCREAT|OTRUNC)
	if err != OK {
		return err
	}

	var copied int64
	buf := make([]byte, copyChunkSize)
	for {
		n, rerr := v.Read(oldFD, buf)
		if n > 0 {
			w, werr := v.Write(newFD, buf[:n])
			copied += int64(w)
			if werr != OK {
				v.Close(newFD)
				v.Unlink(newPath)
				return EIO
			}
		}
		if rerr != OK {
			v.Close(newFD)
			v.Unlink(newPath)
			return EIO
		}
		if n == 0 {
			break
		}
	}
	v.Close(newFD)

	if copied != st.Size {
		v.Unlink(newPath)
		return EIO
	}
	return OK
}

// Rename implements spec.md §4.7's generic rename: copy-then-unlink, with
// rollback on a failed copy so the caller never silently loses data
// (P14).
func (v *VFS) Rename(oldPath, newPath string) Errno {
	if err := v.copyFile(oldPath, newPath); err != OK {
		return err
	}
	if err := v.Unlink(oldPath); err != OK {
		// Both files now exist; the caller must still see the failure
		// (spec.md §4.7).
		return err
	}
	return OK
}

// Copy duplicates oldPath's contents to newPath without removing the
// source, the syscall table's standalone "copy" entry (spec.md §4.9)
// distinct from rename.
func (v *VFS) Copy(oldPath, newPath string) Errno {
	return v.copyFile(oldPath, newPath)
}
