package fat16

import (
	"sort"
	"strings"

	"github.com/cupidthecat/cupid-os/internal/vfs"
)

// Backend is the "assumed external" backing driver contract spec.md
// §4.8 describes: open-by-8.3-name, atomic whole-file replace, delete by
// name, enumerate a directory. *Driver is the concrete implementation
// this package ships; tests substitute a failing fake to exercise the
// adapter's rollback path (P17) without needing to corrupt a real disk
// image.
type Backend interface {
	ReadFile(dir, name string) ([]byte, error)
	WriteFile(dir, name string, data []byte) error
	DeleteFile(dir, name string) error
	List(dir string) ([]Dirent, error)
	StatEntry(dir, name string) (Dirent, error)
	Mkdir(name string) error
}

// file is the adapter's open-file state: a heap write buffer that
// accumulates writes and is only reconciled with the backend on Close
// (spec.md §4.8).
type file struct {
	dir, name string
	buf       []byte
	size      int64
	pos       int64
	dirty     bool

	isDir    bool
	snapshot []vfs.DirEnt
	next     int
}

// NewOps adapts backend to a vfs.Ops vtable.
func NewOps(fsName string, backend Backend) *vfs.Ops {
	a := &adapter{backend: backend}
	return &vfs.Ops{
		FSName:  fsName,
		Mount:   a.mount,
		Unmount: a.unmount,
		Open:    a.open,
		Close:   a.close,
		Read:    a.read,
		Write:   a.write,
		Seek:    a.seek,
		Stat:    a.stat,
		Readdir: a.readdir,
		Mkdir:   a.mkdir,
		Unlink:  a.unlink,
	}
}

type adapter struct {
	backend Backend
}

func (a *adapter) mount(source string) (interface{}, vfs.Errno) { return a.backend, vfs.OK }
func (a *adapter) unmount(fp interface{}) vfs.Errno             { return vfs.OK }

// splitOneLevel turns a VFS-relative path into the (dir, name) pair the
// backend expects, enforcing spec.md §4.8's "root or one subdirectory
// level" limit.
func splitOneLevel(relpath string) (dir, name string, ok bool) {
	relpath = strings.TrimPrefix(relpath, "/")
	if relpath == "" {
		return "", "", true
	}
	parts := strings.Split(relpath, "/")
	switch len(parts) {
	case 1:
		return "", parts[0], true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func bufCapFor(size int) int {
	c := 512
	for c < size {
		c *= 2
	}
	return ((c + 511) / 512) * 512
}

// growBuffer implements spec.md §4.8's geometric-growth write buffer:
// double capacity until it fits, then round up to a 512-byte multiple.
func growBuffer(buf []byte, needed int) []byte {
	if cap(buf) >= needed {
		return buf
	}
	newCap := cap(buf)
	if newCap == 0 {
		newCap = 512
	}
	for newCap < needed {
		newCap *= 2
	}
	newCap = ((newCap + 511) / 512) * 512
	nb := make([]byte, len(buf), newCap)
	copy(nb, buf)
	return nb
}

func (a *adapter) buildSnapshot(dirName string) ([]vfs.DirEnt, vfs.Errno) {
	ents, err := a.backend.List(dirName)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]vfs.DirEnt, 0, len(ents)+1)
	for _, e := range ents {
		kind := vfs.KindFile
		if e.IsDir {
			kind = vfs.KindDirectory
		}
		out = append(out, vfs.DirEnt{Name: e.Name, Size: e.Size, Kind: kind})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind == vfs.KindDirectory && out[j].Kind != vfs.KindDirectory {
			return true
		}
		if out[i].Kind != vfs.KindDirectory && out[j].Kind == vfs.KindDirectory {
			return false
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if dirName != "" {
		out = append([]vfs.DirEnt{{Name: "..", Kind: vfs.KindDirectory}}, out...)
	}
	return out, vfs.OK
}

func (a *adapter) open(fp interface{}, relpath string, flags vfs.OpenFlag) (interface{}, vfs.Errno) {
	dir, name, ok := splitOneLevel(relpath)
	if !ok {
		return nil, vfs.EINVAL
	}
	if name == "" {
		snap, errno := a.buildSnapshot(dir)
		if errno != vfs.OK {
			return nil, errno
		}
		return &file{isDir: true, snapshot: snap}, vfs.OK
	}

	st, statErr := a.backend.StatEntry(dir, name)
	exists := statErr == nil
	if exists && st.IsDir {
		snap, errno := a.buildSnapshot(joinOneLevel(dir, name))
		if errno != vfs.OK {
			return nil, errno
		}
		return &file{isDir: true, snapshot: snap}, vfs.OK
	}

	var size int64
	switch {
	case !exists:
		if flags&vfs.OCREAT == 0 {
			return nil, vfs.ENOENT
		}
		if err := a.backend.WriteFile(dir, name, nil); err != nil {
			return nil, toErrno(err)
		}
	case flags&vfs.OTRUNC != 0:
		_ = a.backend.DeleteFile(dir, name)
		if err := a.backend.WriteFile(dir, name, nil); err != nil {
			return nil, toErrno(err)
		}
	default:
		size = st.Size
	}

	var buf []byte
	if size > 0 {
		data, err := a.backend.ReadFile(dir, name)
		if err != nil {
			return nil, toErrno(err)
		}
		buf = make([]byte, len(data), bufCapFor(len(data)))
		copy(buf, data)
	}
	pos := int64(0)
	if flags&vfs.OAPPEND != 0 {
		pos = size
	}
	return &file{dir: dir, name: name, buf: buf, size: size, pos: pos}, vfs.OK
}

func joinOneLevel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func (a *adapter) read(h interface{}, buf []byte) (int, vfs.Errno) {
	f := h.(*file)
	if f.isDir {
		return 0, vfs.EISDIR
	}
	if f.pos >= f.size {
		return 0, vfs.OK
	}
	n := copy(buf, f.buf[f.pos:f.size])
	f.pos += int64(n)
	return n, vfs.OK
}

func (a *adapter) write(h interface{}, data []byte) (int, vfs.Errno) {
	f := h.(*file)
	if f.isDir {
		return 0, vfs.EISDIR
	}
	end := f.pos + int64(len(data))
	f.buf = growBuffer(f.buf, int(end))
	if int64(len(f.buf)) < end {
		f.buf = f.buf[:end]
	}
	copy(f.buf[f.pos:end], data)
	f.pos = end
	if end > f.size {
		f.size = end
	}
	f.dirty = true
	return len(data), vfs.OK
}

func (a *adapter) seek(h interface{}, offset int64, whence int) (int64, vfs.Errno) {
	f := h.(*file)
	if f.isDir {
		return 0, vfs.EISDIR
	}
	var target int64
	switch whence {
	case vfs.SeekSet:
		target = offset
	case vfs.SeekCur:
		target = f.pos + offset
	case vfs.SeekEnd:
		target = f.size + offset
	default:
		return 0, vfs.EINVAL
	}
	if target < 0 {
		target = 0
	}
	if target > f.size {
		target = f.size
	}
	f.pos = target
	return f.pos, vfs.OK
}

// close flushes a dirty buffer per spec.md §4.8's four-step sequence,
// rolling back to the pre-flush contents if the replace write fails
// (P17).
func (a *adapter) close(h interface{}) vfs.Errno {
	f := h.(*file)
	if f.isDir || !f.dirty {
		return vfs.OK
	}

	backup, backupErr := a.backend.ReadFile(f.dir, f.name)
	haveBackup := backupErr == nil

	_ = a.backend.DeleteFile(f.dir, f.name)
	if err := a.backend.WriteFile(f.dir, f.name, f.buf[:f.size]); err != nil {
		if haveBackup {
			if werr := a.backend.WriteFile(f.dir, f.name, backup); werr != nil {
				return vfs.EIO // file lost; a critical diagnostic belongs to the caller's log
			}
		}
		return vfs.EIO
	}
	return vfs.OK
}

func (a *adapter) stat(fp interface{}, relpath string) (vfs.DirEnt, vfs.Errno) {
	dir, name, ok := splitOneLevel(relpath)
	if !ok {
		return vfs.DirEnt{}, vfs.EINVAL
	}
	if name == "" {
		return vfs.DirEnt{Name: "/", Kind: vfs.KindDirectory}, vfs.OK
	}
	st, err := a.backend.StatEntry(dir, name)
	if err != nil {
		return vfs.DirEnt{}, toErrno(err)
	}
	kind := vfs.KindFile
	if st.IsDir {
		kind = vfs.KindDirectory
	}
	return vfs.DirEnt{Name: st.Name, Size: st.Size, Kind: kind}, vfs.OK
}

func (a *adapter) readdir(h interface{}) (vfs.DirEnt, bool, vfs.Errno) {
	f := h.(*file)
	if !f.isDir {
		return vfs.DirEnt{}, false, vfs.ENOTDIR
	}
	if f.next >= len(f.snapshot) {
		return vfs.DirEnt{}, false, vfs.OK
	}
	ent := f.snapshot[f.next]
	f.next++
	return ent, true, vfs.OK
}

func (a *adapter) mkdir(fp interface{}, relpath string) vfs.Errno {
	dir, name, ok := splitOneLevel(relpath)
	if !ok || dir != "" {
		return vfs.EINVAL
	}
	if err := a.backend.Mkdir(name); err != nil {
		return toErrno(err)
	}
	return vfs.OK
}

func (a *adapter) unlink(fp interface{}, relpath string) vfs.Errno {
	dir, name, ok := splitOneLevel(relpath)
	if !ok {
		return vfs.EINVAL
	}
	if err := a.backend.DeleteFile(dir, name); err != nil {
		return toErrno(err)
	}
	return vfs.OK
}

func toErrno(err error) vfs.Errno {
	switch err {
	case ErrNotFound:
		return vfs.ENOENT
	case ErrNotDir:
		return vfs.ENOTDIR
	case ErrNoSpace:
		return vfs.ENOSPC
	default:
		return vfs.EIO
	}
}
