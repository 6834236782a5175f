// Package ramfs backs the ephemeral mounts spec.md §6 calls out by name
// (`/dev`, `/notes`): "purely ephemeral and are not persisted." Each
// mount gets its own in-memory key-value store so unmounting (or
// rebooting the simulated kernel) discards its contents, matching the
// spec's explicit "not persisted" requirement.
//
// Grounded on the teacher repo's sibling pack member perkeep-perkeep,
// whose pkg/sorted/leveldb wraps github.com/syndtr/goleveldb as a flat
// key-value store; ramfs does the same thing here but opens
// leveldb/storage.NewMemStorage() instead of a disk file, since nothing
// under this mount may survive past the process.
package ramfs

import (
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/cupidthecat/cupid-os/internal/vfs"
)

// FS is one ramfs instance: a flat namespace of files keyed by relative
// path, backed by an in-memory leveldb database.
type FS struct {
	db *leveldb.DB
}

// handle is a ramfs file descriptor's filesystem-private state. Unlike
// Stat/Unlink (which receive fsPrivate directly), Read/Write/Seek only
// receive the handle, so it carries its own FS back-pointer — the
// hosted equivalent of an inode embedding a superblock pointer.
type handle struct {
	fs      *FS
	name    string
	pos     int64
	isDir   bool
	entries []vfs.DirEnt
	next    int
}

// NewOps returns a fresh vtable. Every mount of it opens an independent
// memory store in its own Mount call, so two mounts never share state.
func NewOps(fsName string) *vfs.Ops {
	return &vfs.Ops{
		FSName:  fsName,
		Mount:   mount,
		Unmount: unmount,
		Open:    open,
		Close:   closeHandle,
		Read:    read,
		Write:   write,
		Seek:    seek,
		Stat:    stat,
		Readdir: readdir,
		Unlink:  unlink,
		// Mkdir is intentionally absent: ramfs is a flat namespace, and
		// spec.md only asks for it to back /dev and /notes, neither of
		// which needs subdirectories. Callers see ENOSYS.
	}
}

func mount(source string) (interface{}, vfs.Errno) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, vfs.EIO
	}
	return &FS{db: db}, vfs.OK
}

func unmount(fp interface{}) vfs.Errno {
	fs := fp.(*FS)
	if err := fs.db.Close(); err != nil {
		return vfs.EIO
	}
	return vfs.OK
}

func open(fp interface{}, relpath string, flags vfs.OpenFlag) (interface{}, vfs.Errno) {
	fs := fp.(*FS)
	if relpath == "" || relpath == "." {
		return &handle{fs: fs, isDir: true, entries: snapshot(fs)}, vfs.OK
	}
	key := []byte(relpath)
	exists, err := fs.db.Has(key, nil)
	if err != nil {
		return nil, vfs.EIO
	}
	if !exists {
		if flags&vfs.OCREAT == 0 {
			return nil, vfs.ENOENT
		}
		if err := fs.db.Put(key, []byte{}, nil); err != nil {
			return nil, vfs.EIO
		}
	} else if flags&vfs.OTRUNC != 0 {
		if err := fs.db.Put(key, []byte{}, nil); err != nil {
			return nil, vfs.EIO
		}
	}
	return &handle{fs: fs, name: relpath}, vfs.OK
}

func closeHandle(h interface{}) vfs.Errno { return vfs.OK }

func read(h interface{}, buf []byte) (int, vfs.Errno) {
	hd := h.(*handle)
	if hd.isDir {
		return 0, vfs.EISDIR
	}
	data, err := hd.fs.db.Get([]byte(hd.name), nil)
	if err != nil {
		return 0, vfs.EIO
	}
	if hd.pos >= int64(len(data)) {
		return 0, vfs.OK
	}
	n := copy(buf, data[hd.pos:])
	hd.pos += int64(n)
	return n, vfs.OK
}

func write(h interface{}, buf []byte) (int, vfs.Errno) {
	hd := h.(*handle)
	if hd.isDir {
		return 0, vfs.EISDIR
	}
	key := []byte(hd.name)
	data, err := hd.fs.db.Get(key, nil)
	if err != nil {
		return 0, vfs.EIO
	}
	if hd.pos > int64(len(data)) {
		return 0, vfs.EIO
	}
	data = append(data[:hd.pos], buf...)
	if err := hd.fs.db.Put(key, data, nil); err != nil {
		return 0, vfs.EIO
	}
	hd.pos += int64(len(buf))
	return len(buf), vfs.OK
}

func seek(h interface{}, offset int64, whence int) (int64, vfs.Errno) {
	hd := h.(*handle)
	if hd.isDir {
		return 0, vfs.EISDIR
	}
	data, err := hd.fs.db.Get([]byte(hd.name), nil)
	if err != nil {
		return 0, vfs.EIO
	}
	size := int64(len(data))

	var target int64
	switch whence {
	case vfs.SeekSet:
		target = offset
	case vfs.SeekCur:
		target = hd.pos + offset
	case vfs.SeekEnd:
		target = size + offset
	default:
		return 0, vfs.EINVAL
	}
	if target < 0 {
		target = 0
	}
	if target > size {
		target = size
	}
	hd.pos = target
	return hd.pos, vfs.OK
}

func stat(fp interface{}, relpath string) (vfs.DirEnt, vfs.Errno) {
	fs := fp.(*FS)
	if relpath == "" || relpath == "." {
		return vfs.DirEnt{Name: "/", Kind: vfs.KindDirectory}, vfs.OK
	}
	data, err := fs.db.Get([]byte(relpath), nil)
	if err != nil {
		return vfs.DirEnt{}, vfs.ENOENT
	}
	return vfs.DirEnt{Name: relpath, Size: int64(len(data)), Kind: vfs.KindFile}, vfs.OK
}

func readdir(h interface{}) (vfs.DirEnt, bool, vfs.Errno) {
	hd := h.(*handle)
	if !hd.isDir {
		return vfs.DirEnt{}, false, vfs.ENOTDIR
	}
	if hd.next >= len(hd.entries) {
		return vfs.DirEnt{}, false, vfs.OK
	}
	ent := hd.entries[hd.next]
	hd.next++
	return ent, true, vfs.OK
}

func unlink(fp interface{}, relpath string) vfs.Errno {
	fs := fp.(*FS)
	key := []byte(relpath)
	exists, err := fs.db.Has(key, nil)
	if err != nil {
		return vfs.EIO
	}
	if !exists {
		return vfs.ENOENT
	}
	if err := fs.db.Delete(key, nil); err != nil {
		return vfs.EIO
	}
	return vfs.OK
}

func snapshot(fs *FS) []vfs.DirEnt {
	it := fs.db.NewIterator(nil, nil)
	defer it.Release()
	var entries []vfs.DirEnt
	for it.Next() {
		entries = append(entries, vfs.DirEnt{
			Name: string(it.Key()),
			Size: int64(len(it.Value())),
			Kind: vfs.KindFile,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
