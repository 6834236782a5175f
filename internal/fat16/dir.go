package fat16

// slot identifies one 32-byte directory entry's location, either inside
// the fixed root region or inside a subdirectory's cluster chain, by
// aliasing those 32 bytes directly.
type slot struct {
	bytes []byte // the 32 bytes themselves, aliasing the disk arena
}

// dirLocation names where a directory's entries live.
type dirLocation struct {
	root         bool
	firstCluster uint16 // valid when !root
}

func (d *Driver) rootSlots() []slot {
	slots := make([]slot, d.rootCount)
	for i := 0; i < d.rootCount; i++ {
		off := d.rootOffset + i*dirEntrySize
		slots[i] = slot{bytes: d.disk[off : off+dirEntrySize]}
	}
	return slots
}

func (d *Driver) subdirSlots(firstCluster uint16) []slot {
	var slots []slot
	c := int(firstCluster)
	for c >= firstDataClus && c < d.fatEntries {
		cb := d.clusterBytes(c)
		for off := 0; off+dirEntrySize <= len(cb); off += dirEntrySize {
			slots = append(slots, slot{bytes: cb[off : off+dirEntrySize]})
		}
		next := getU16(d.fatEntry(c))
		if next >= clusterReserve {
			break
		}
		c = int(next)
	}
	return slots
}

func (d *Driver) slotsOf(loc dirLocation) []slot {
	if loc.root {
		return d.rootSlots()
	}
	return d.subdirSlots(loc.firstCluster)
}

// growSubdir appends one more zeroed cluster to a subdirectory's chain,
// used when every existing slot is occupied.
func (d *Driver) growSubdir(firstCluster uint16) bool {
	c := int(firstCluster)
	for {
		next := getU16(d.fatEntry(c))
		if next >= clusterReserve {
			break
		}
		c = int(next)
	}
	newClus, ok := d.allocCluster()
	if !ok {
		return false
	}
	putU16(d.fatEntry(c), uint16(newClus))
	return true
}

// resolveDir maps a driver-level directory name ("" for root, else one
// level of subdirectory) to its location. spec.md §4.8 limits this to
// root or one subdirectory level.
func (d *Driver) resolveDir(dir string) (dirLocation, error) {
	if dir == "" || dir == "." {
		return dirLocation{root: true}, nil
	}
	for _, s := range d.rootSlots() {
		e := decodeDirEntry(s.bytes)
		if e.isFree() {
			continue
		}
		if e.isDir() && matches83(e, dir) {
			return dirLocation{firstCluster: e.firstCluster}, nil
		}
	}
	return dirLocation{}, ErrNotFound
}

func matches83(e dirEntry, name string) bool {
	n, x := split83(name)
	return e.name == n && e.ext == x
}

// findInDir scans loc for name, returning the entry, the slot that holds
// it, and whether it was found.
func (d *Driver) findInDir(loc dirLocation, name string) (dirEntry, slot, bool) {
	n, x := split83(name)
	for _, s := range d.slotsOf(loc) {
		e := decodeDirEntry(s.bytes)
		if e.isFree() {
			continue
		}
		if e.name == n && e.ext == x {
			return e, s, true
		}
	}
	return dirEntry{}, slot{}, false
}

// allocSlot finds a free directory slot in loc, growing a subdirectory's
// cluster chain if every existing slot is occupied. Root directories
// cannot grow past their fixed RootEntryCount.
func (d *Driver) allocSlot(loc dirLocation) (slot, bool) {
	for _, s := range d.slotsOf(loc) {
		e := decodeDirEntry(s.bytes)
		if e.isFree() {
			return s, true
		}
	}
	if loc.root {
		return slot{}, false
	}
	if !d.growSubdir(loc.firstCluster) {
		return slot{}, false
	}
	for _, s := range d.slotsOf(loc) {
		e := decodeDirEntry(s.bytes)
		if e.isFree() {
			return s, true
		}
	}
	return slot{}, false
}

// Dirent is one entry the driver reports to the adapter's List call.
type Dirent struct {
	Name  string
	Size  int64
	IsDir bool
}

// List enumerates dir's entries in on-disk order; the adapter is
// responsible for sorting (spec.md §4.8).
func (d *Driver) List(dir string) ([]Dirent, error) {
	loc, err := d.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Dirent
	for _, s := range d.slotsOf(loc) {
		e := decodeDirEntry(s.bytes)
		if e.isFree() {
			continue
		}
		out = append(out, Dirent{Name: e.displayName(), Size: int64(e.fileSize), IsDir: e.isDir()})
	}
	return out, nil
}

// StatEntry reports a single name's metadata within dir.
func (d *Driver) StatEntry(dir, name string) (Dirent, error) {
	loc, err := d.resolveDir(dir)
	if err != nil {
		return Dirent{}, err
	}
	e, _, ok := d.findInDir(loc, name)
	if !ok {
		return Dirent{}, ErrNotFound
	}
	return Dirent{Name: e.displayName(), Size: int64(e.fileSize), IsDir: e.isDir()}, nil
}

// ReadFile returns a file's full contents.
func (d *Driver) ReadFile(dir, name string) ([]byte, error) {
	loc, err := d.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	e, _, ok := d.findInDir(loc, name)
	if !ok {
		return nil, ErrNotFound
	}
	if e.isDir() {
		return nil, ErrNotDir
	}
	return d.readChain(e.firstCluster, e.fileSize), nil
}

// WriteFile atomically replaces name's contents: a new cluster chain is
// written before the old one is freed, so a mid-write crash never leaves
// a half-updated file (spec.md §4.8: "writes an entire file atomically
// by replacing its cluster chain").
func (d *Driver) WriteFile(dir, name string, data []byte) error {
	loc, err := d.resolveDir(dir)
	if err != nil {
		return err
	}
	newStart, werr := d.writeChain(data)
	if werr != nil {
		return werr
	}

	e, s, exists := d.findInDir(loc, name)
	if !exists {
		free, ok := d.allocSlot(loc)
		if !ok {
			d.freeChain(newStart)
			return ErrNoSpace
		}
		s = free
		n, x := split83(name)
		e = dirEntry{name: n, ext: x}
	} else if e.firstCluster != 0 {
		d.freeChain(e.firstCluster)
	}
	e.firstCluster = newStart
	e.fileSize = uint32(len(data))
	e.encode(s.bytes)
	return nil
}

// DeleteFile frees name's cluster chain and marks its slot deleted.
func (d *Driver) DeleteFile(dir, name string) error {
	loc, err := d.resolveDir(dir)
	if err != nil {
		return err
	}
	e, s, ok := d.findInDir(loc, name)
	if !ok {
		return ErrNotFound
	}
	if e.firstCluster != 0 {
		d.freeChain(e.firstCluster)
	}
	s.bytes[0] = nameDeleted
	return nil
}

// Mkdir creates a one-level subdirectory entry in the root.
func (d *Driver) Mkdir(name string) error {
	root := dirLocation{root: true}
	if _, _, exists := d.findInDir(root, name); exists {
		return ErrIO
	}
	s, ok := d.allocSlot(root)
	if !ok {
		return ErrNoSpace
	}
	clus, ok := d.allocCluster()
	if !ok {
		return ErrNoSpace
	}
	n, x := split83(name)
	e := dirEntry{name: n, ext: x, attr: attrDirectory, firstCluster: clus}
	e.encode(s.bytes)
	return nil
}
