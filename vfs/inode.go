package vfs

import (
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseops"
)

// attrTTL is how long the kernel may cache an inode's attributes/dentry
// before revalidating, mirroring the teacher's fixed-TTL cache posture.
const attrTTL = time.Second

// inodeState is the per-object bookkeeping the kernel's reference-counting
// protocol requires on top of the tree's own stat-data: how many
// outstanding LookUpInode/Mkdir/CreateFile replies the kernel has not yet
// balanced with a ForgetInode (spec.md §4.13's inode-table responsibility,
// the VFS adapter's half of the contract the core tree doesn't know about).
type inodeState struct {
	lookupCount uint64
}

// handleTable hands out fuseops.HandleID values for open file and directory
// handles and remembers which inode each belongs to, the way the teacher's
// fs.go tracks open handles per mount.
type handleTable struct {
	mu     sync.Mutex
	next   fuseops.HandleID
	dirs   map[fuseops.HandleID]fuseops.InodeID
	files  map[fuseops.HandleID]fuseops.InodeID
	inodes map[fuseops.InodeID]*inodeState
}

func newHandleTable() *handleTable {
	return &handleTable{
		dirs:   make(map[fuseops.HandleID]fuseops.InodeID),
		files:  make(map[fuseops.HandleID]fuseops.InodeID),
		inodes: make(map[fuseops.InodeID]*inodeState),
	}
}

func (t *handleTable) openDir(inode fuseops.InodeID) fuseops.HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.dirs[h] = inode
	return h
}

func (t *handleTable) closeDir(h fuseops.HandleID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirs, h)
}

func (t *handleTable) openFile(inode fuseops.InodeID) fuseops.HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.files[h] = inode
	return h
}

func (t *handleTable) closeFile(h fuseops.HandleID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, h)
}

// recordLookup bumps inode's outstanding-reply count, called once per
// ChildInodeEntry the adapter hands back to the kernel (LookUpInode, MkDir,
// CreateFile): the kernel balances every one of these with a ForgetInode
// before the inode can be dropped from the table.
func (t *handleTable) recordLookup(inode fuseops.InodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.inodes[inode]
	if !ok {
		st = &inodeState{}
		t.inodes[inode] = st
	}
	st.lookupCount++
}

// forget applies a ForgetInodeOp's N, dropping the bookkeeping entry once
// the count reaches zero. The underlying object itself is not deleted here
// -- Unlink/RmDir already removed it from the tree when its link count hit
// zero; forget only retires the kernel-facing reference count.
func (t *handleTable) forget(inode fuseops.InodeID, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.inodes[inode]
	if !ok {
		return
	}
	if n >= st.lookupCount {
		delete(t.inodes, inode)
		return
	}
	st.lookupCount -= n
}

func toInodeAttributes(sd StatData) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   sd.Size,
		Nlink:  sd.Nlink,
		Mode:   os.FileMode(sd.Mode),
		Atime:  time.Unix(0, sd.Atime),
		Mtime:  time.Unix(0, sd.Mtime),
		Ctime:  time.Unix(0, sd.Ctime),
		Crtime: time.Unix(0, sd.Ctime),
		Uid:    sd.Uid,
		Gid:    sd.Gid,
	}
}
