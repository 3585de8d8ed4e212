package vfs

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// FileSystem adapts a Store to jacobsa/fuse's fuseutil.FileSystem interface
// (spec.md §4.13). The methods that change the tree (SetInodeAttributes,
// MkDir, CreateFile, RmDir, Unlink, WriteFile) open a transaction handle on
// entry and close it before returning; the read-only methods and FlushFile
// open none. This follows the core's own per-operation capture
// contract (carry/pipeline.go, txn/handle.go) -- the adapter itself never
// holds a handle across two kernel requests.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	Store   *Store
	handles *handleTable
	uid     uint32
	gid     uint32
}

// NewFileSystem builds an adapter over store, owned by the given uid/gid
// (spec.md's Non-goals exclude a permission-check layer, so every created
// object is simply stamped with the mount's owner).
func NewFileSystem(store *Store, uid, gid uint32) *FileSystem {
	fs := &FileSystem{
		Store:   store,
		handles: newHandleTable(),
		uid:     uid,
		gid:     gid,
	}
	fs.handles.recordLookup(fuseops.RootInodeID)
	return fs
}

// NewServer wraps fs as a fuse.Server ready for fuse.Mount.
func NewServer(fs *FileSystem) fuse.Server {
	return fuseutil.NewFileSystemServer(fs)
}

func (fs *FileSystem) loadStat(oid uint64) (StatData, error) {
	it, ok := fs.Store.LookupItem(statKey(oid))
	if !ok {
		return StatData{}, syscall.ENOENT
	}
	return DecodeStatData(it.Value)
}

func (fs *FileSystem) statAttrs(oid uint64) (fuseops.InodeAttributes, error) {
	sd, err := fs.loadStat(oid)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return toInodeAttributes(sd), nil
}

func direntType(mode uint32) fuseutil.DirentType {
	if os.FileMode(mode)&os.ModeDir != 0 {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

// StatFS reports volume-wide space and object-count usage (spec.md §6,
// sourced from the allocator's bitmap and the superblock's file counter).
func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	s := fs.Store
	op.BlockSize = uint32(s.BlockSize)
	op.IoSize = uint32(s.BlockSize)
	op.Blocks = s.NrBlocks
	op.BlocksFree = s.Alloc.FreeBlocks()
	op.BlocksAvailable = op.BlocksFree
	op.Inodes = s.NrBlocks
	op.InodesFree = s.NrBlocks - s.FileCount()
	return nil
}

// LookUpInode resolves parent/name to a child object id and bumps its
// outstanding-lookup count (spec.md §4.13).
func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	entries, err := fs.Store.ListDirEntries(uint64(op.Parent))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name != op.Name {
			continue
		}
		attrs, err := fs.statAttrs(e.ChildOID)
		if err != nil {
			return err
		}
		child := fuseops.InodeID(e.ChildOID)
		fs.handles.recordLookup(child)
		now := time.Now()
		op.Entry = fuseops.ChildInodeEntry{
			Child:                child,
			Attributes:           attrs,
			AttributesExpiration: now.Add(attrTTL),
			EntryExpiration:      now.Add(attrTTL),
		}
		return nil
	}
	return syscall.ENOENT
}

// GetInodeAttributes serves stat(2).
func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	attrs, err := fs.statAttrs(uint64(op.Inode))
	if err != nil {
		return err
	}
	op.Attributes = attrs
	op.AttributesExpiration = time.Now().Add(attrTTL)
	return nil
}

// SetInodeAttributes serves chmod/chown/truncate/utimes, all as one
// read-modify-write of the stat-data record.
func (fs *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	oid := uint64(op.Inode)
	sd, err := fs.loadStat(oid)
	if err != nil {
		return err
	}

	h := fs.Store.BeginOp()
	defer h.Close()

	if op.Size != nil {
		if err := fs.Store.TruncateBody(h, oid, *op.Size); err != nil {
			return err
		}
		sd.Size = *op.Size
	}
	if op.Mode != nil {
		sd.Mode = uint32(*op.Mode)
	}
	if op.Atime != nil {
		sd.Atime = op.Atime.UnixNano()
	}
	if op.Mtime != nil {
		sd.Mtime = op.Mtime.UnixNano()
	}
	sd.Ctime = time.Now().UnixNano()

	if err := fs.Store.ReplaceItem(h, statKey(oid), sd.Encode()); err != nil {
		return err
	}
	op.Attributes = toInodeAttributes(sd)
	op.AttributesExpiration = time.Now().Add(attrTTL)
	return nil
}

// createChildImpl allocates a fresh object id, writes its stat-data and
// its directory entry under parent, and fills entry -- the shared core of
// MkDir and CreateFile (spec.md §4.13's "create" path: new stat-data item
// plus a new dirent item, both captured under the same handle).
func (fs *FileSystem) createChildImpl(parent fuseops.InodeID, name string, mode os.FileMode, entry *fuseops.ChildInodeEntry) error {
	store := fs.Store
	if _, ok := store.LookupItem(dirEntryKey(uint64(parent), name)); ok {
		return syscall.EEXIST
	}

	oid := store.allocOID()
	now := time.Now().UnixNano()
	nlink := uint32(1)
	if mode&os.ModeDir != 0 {
		nlink = 2
	}
	sd := StatData{
		Mode:  uint32(mode),
		Nlink: nlink,
		Uid:   fs.uid,
		Gid:   fs.gid,
		Atime: now, Mtime: now, Ctime: now,
	}

	h := store.BeginOp()
	defer h.Close()
	if err := store.InsertItem(h, statKey(oid), sd.Encode()); err != nil {
		return err
	}
	de := DirEntry{ChildOID: oid, Name: name}
	if err := store.InsertItem(h, dirEntryKey(uint64(parent), name), de.Encode()); err != nil {
		return err
	}
	store.adjustFileCount(1)

	child := fuseops.InodeID(oid)
	fs.handles.recordLookup(child)
	now2 := time.Now()
	*entry = fuseops.ChildInodeEntry{
		Child:                child,
		Attributes:           toInodeAttributes(sd),
		AttributesExpiration: now2.Add(attrTTL),
		EntryExpiration:      now2.Add(attrTTL),
	}
	return nil
}

// MkDir creates an empty subdirectory.
func (fs *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	return fs.createChildImpl(op.Parent, op.Name, os.ModeDir|op.Mode, &op.Entry)
}

// CreateFile creates a regular file and opens it in the same call.
func (fs *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	if err := fs.createChildImpl(op.Parent, op.Name, op.Mode, &op.Entry); err != nil {
		return err
	}
	op.Handle = fs.handles.openFile(op.Entry.Child)
	return nil
}

// removeChild tears down a dirent and, once its target's link count hits
// zero, the target's stat-data and body (spec.md §4.13's unlink/rmdir
// path). Deletion happens immediately at nlink==0 rather than waiting for
// the last open handle to close -- a documented simplification, since
// tracking "this object is still open somewhere" on top of the handle
// table isn't required by anything in scope.
func (fs *FileSystem) removeChild(parent fuseops.InodeID, name string, wantDir bool) error {
	store := fs.Store
	deKey := dirEntryKey(uint64(parent), name)
	it, ok := store.LookupItem(deKey)
	if !ok {
		return syscall.ENOENT
	}
	de, err := decodeDirEntry(it.Value)
	if err != nil {
		return err
	}
	sd, err := fs.loadStat(de.ChildOID)
	if err != nil {
		return err
	}
	isDir := os.FileMode(sd.Mode)&os.ModeDir != 0
	if wantDir && !isDir {
		return syscall.ENOTDIR
	}
	if !wantDir && isDir {
		return syscall.EISDIR
	}
	if wantDir {
		entries, err := store.ListDirEntries(de.ChildOID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return syscall.ENOTEMPTY
		}
	}

	h := store.BeginOp()
	defer h.Close()
	if err := store.DeleteItem(h, deKey); err != nil {
		return err
	}

	if sd.Nlink > 0 {
		sd.Nlink--
	}
	if sd.Nlink == 0 {
		if err := store.TruncateBody(h, de.ChildOID, 0); err != nil {
			return err
		}
		if err := store.DeleteItem(h, statKey(de.ChildOID)); err != nil {
			return err
		}
		store.adjustFileCount(-1)
		return nil
	}
	return store.ReplaceItem(h, statKey(de.ChildOID), sd.Encode())
}

// RmDir removes an empty subdirectory.
func (fs *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	return fs.removeChild(op.Parent, op.Name, true)
}

// Unlink removes a directory entry pointing at a regular file.
func (fs *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	return fs.removeChild(op.Parent, op.Name, false)
}

// OpenDir hands out a directory handle; listing itself is recomputed fresh
// on each ReadDir call rather than snapshotted at Open time (spec.md's
// Non-goals exclude a stable-snapshot readdir cursor).
func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	op.Handle = fs.handles.openDir(op.Inode)
	return nil
}

// ReadDir serves getdents-style directory listing, paging through
// ListDirEntries by op.Offset.
func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entries, err := fs.Store.ListDirEntries(uint64(op.Inode))
	if err != nil {
		return err
	}
	idx := int(op.Offset)
	n := 0
	for idx < len(entries) {
		e := entries[idx]
		sd, err := fs.loadStat(e.ChildOID)
		if err != nil {
			return err
		}
		written := fuseutil.WriteDirent(op.Dst[n:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(idx + 1),
			Inode:  fuseops.InodeID(e.ChildOID),
			Name:   e.Name,
			Type:   direntType(sd.Mode),
		})
		if written == 0 {
			break
		}
		n += written
		idx++
	}
	op.BytesRead = n
	return nil
}

// ReleaseDirHandle retires a directory handle.
func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.handles.closeDir(op.Handle)
	return nil
}

// OpenFile hands out a file handle; every write is already captured in
// the tree as it happens (WriteBody below), so open itself
// does nothing beyond allocating the handle.
func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	op.Handle = fs.handles.openFile(op.Inode)
	return nil
}

// ReadFile serves read(2), clamped to the file's recorded size.
func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	sd, err := fs.loadStat(uint64(op.Inode))
	if err != nil {
		return err
	}
	remaining := int64(sd.Size) - op.Offset
	if remaining <= 0 {
		op.BytesRead = 0
		return nil
	}
	want := len(op.Dst)
	if int64(want) > remaining {
		want = int(remaining)
	}
	data, err := fs.Store.ReadBody(uint64(op.Inode), op.Offset, want)
	if err != nil {
		return err
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

// WriteFile serves write(2): read-modify-writes the overlapped body
// blocks, then bumps size/mtime in the same transaction handle.
func (fs *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	oid := uint64(op.Inode)
	h := fs.Store.BeginOp()
	defer h.Close()

	if err := fs.Store.WriteBody(h, oid, op.Offset, op.Data); err != nil {
		return err
	}
	sd, err := fs.loadStat(oid)
	if err != nil {
		return err
	}
	newSize := uint64(op.Offset) + uint64(len(op.Data))
	if newSize > sd.Size {
		sd.Size = newSize
	}
	sd.Mtime = time.Now().UnixNano()
	return fs.Store.ReplaceItem(h, statKey(oid), sd.Encode())
}

// FlushFile serves fsync(2)/close(2)'s durability half: every write above
// already lands in the tree, so flushing means forcing whatever atoms are
// still open through the commit pipeline rather than scoping to this one
// file -- item values aren't individually atom-addressable without a
// richer per-inode index, which is out of scope here.
func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	for _, a := range fs.Store.Mgr.Atoms() {
		if err := fs.Store.Mgr.Force(a); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseFileHandle retires a file handle.
func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.handles.closeFile(op.Handle)
	return nil
}

// ForgetInode balances a prior LookUpInode/MkDir/CreateFile reply.
func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.handles.forget(op.Inode, op.N)
	return nil
}
