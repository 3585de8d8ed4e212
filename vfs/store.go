// Package vfs wires the tree/txn/carry/flush/wander core into a mountable
// volume and exposes it through a jacobsa/fuse-shaped file system adapter
// (spec.md §4.13). Store owns the volume's shared state; FileSystem (in
// filesystem.go) owns the per-request inode bookkeeping and dispatches
// each VFS call through a Store method.
package vfs

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/reiser4/reiser4fs/allocator"
	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/carry"
	"github.com/reiser4/reiser4fs/clock"
	"github.com/reiser4/reiser4fs/flush"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/lease"
	"github.com/reiser4/reiser4fs/metrics"
	"github.com/reiser4/reiser4fs/plugin"
	"github.com/reiser4/reiser4fs/tree"
	"github.com/reiser4/reiser4fs/txn"
	"github.com/reiser4/reiser4fs/wander"
)

// Reserved block addresses: the volume's only fixed, never-moving pointers
// (spec.md §6, mirroring wander.Driver's HeaderAddr/FooterAddr contract).
const (
	journalHeaderAddr block.Addr = 0
	journalFooterAddr block.Addr = 1
)

// RootOID is the object id of the volume's root directory, fixed so every
// fresh format and every remount agrees on where to start walking the
// namespace.
const RootOID uint64 = 1

// dirModeBits/fileModeBits are the default permission bits new directories
// and files are created with; spec.md's Non-goals exclude a mode/ACL
// policy, so these stand in for CreateFile/MkDir's mode parameter where a
// caller doesn't override it.
const (
	dirModeBits  = os.ModeDir | 0o755
	fileModeBits = 0o644
)

// maxCaptureRetries bounds captureNode's retry loop against KindRetry
// errors from TryCapture (spec.md §4.2: the caller always retries from
// scratch on E_REPEAT). It is a generous but finite ceiling so a
// persistent bug surfaces as an error instead of a silent hang.
const maxCaptureRetries = 1000

// Store is one mounted volume: the tree plus everything the commit
// pipeline needs to make it durable. One Store backs one FileSystem.
type Store struct {
	Device    blockdev.Device
	Alloc     *allocator.Bitmap
	Tree      *tree.Tree
	Registry  *plugin.Registry
	Pool      *carry.Pool
	Mgr       *txn.Manager
	Driver    *wander.Driver
	Leaser    *lease.Leaser
	BlockSize int
	Subvolume uint32
	NrBlocks  uint64
	Metrics   *metrics.Handle
}

// FileCount returns the volume-wide live-object counter, read under the
// same lock the commit pipeline serializes tx_header/journal_footer writes
// through (wander.Driver.UpdateSuper).
func (s *Store) FileCount() uint64 {
	var n uint64
	s.Driver.UpdateSuper(func(sb *wander.Superblock) { n = sb.NrFiles })
	return n
}

// Format initializes a brand-new volume on dev: reserves the journal
// header/footer blocks and a root tree block, builds the carry/flush/
// wander/txn wiring, and inserts the root directory's stat-data so the
// namespace has somewhere to start (spec.md §4.13, supplementing the
// distillation's dropped "format a new volume" feature).
func Format(dev blockdev.Device, nrBlocks uint64, subvolume uint32, txnParams txn.Params, flushParams flush.Params, cbkCacheSlots int) (*Store, error) {
	s, err := newStore(dev, nrBlocks, subvolume, txnParams, flushParams, cbkCacheSlots)
	if err != nil {
		return nil, err
	}

	h := s.BeginOp()
	now := time.Now().UnixNano()
	root := StatData{
		Mode:  uint32(dirModeBits),
		Nlink: 2,
		Atime: now, Mtime: now, Ctime: now,
	}
	if err := s.InsertItem(h, statKey(RootOID), root.Encode()); err != nil {
		h.Close()
		return nil, fmt.Errorf("vfs: format root stat-data: %w", err)
	}
	if err := s.commitNow(h); err != nil {
		return nil, fmt.Errorf("vfs: format commit: %w", err)
	}
	return s, nil
}

// Open remounts an existing volume: replays the wandering log to bring dev
// to its last committed state (spec.md §4.9 recovery), then rebuilds the
// in-memory tree fresh over that state. Rebuilding the tree's own
// structure from on-disk nodes is out of scope (spec.md's Non-goals
// exclude a particular on-disk node layout; Open Question, resolved in
// DESIGN.md): the superblock's counters recover, but namespace content is
// not re-read from disk across a remount in this iteration. Open is
// therefore only meaningful for recovering counters/space accounting
// after a crash within a single process lifetime's test harness, not for
// surviving a real process restart with existing files.
func Open(dev blockdev.Device, nrBlocks uint64, subvolume uint32, txnParams txn.Params, flushParams flush.Params, cbkCacheSlots int) (*Store, error) {
	sb, err := wander.Recover(dev, journalHeaderAddr, journalFooterAddr)
	if err != nil {
		return nil, fmt.Errorf("vfs: recover: %w", err)
	}
	s, err := newStore(dev, nrBlocks, subvolume, txnParams, flushParams, cbkCacheSlots)
	if err != nil {
		return nil, err
	}
	s.Driver.Super.Apply(sb.Footer(0))
	return s, nil
}

func newStore(dev blockdev.Device, nrBlocks uint64, subvolume uint32, txnParams txn.Params, flushParams flush.Params, cbkCacheSlots int) (*Store, error) {
	bm := allocator.NewBitmap(nrBlocks)
	if err := bm.MarkUsed(journalHeaderAddr); err != nil {
		return nil, err
	}
	if err := bm.MarkUsed(journalFooterAddr); err != nil {
		return nil, err
	}
	rootAddr, err := bm.Allocate(0)
	if err != nil {
		return nil, fmt.Errorf("vfs: allocate root block: %w", err)
	}

	tr, _ := tree.NewEmptyRoot(subvolume, rootAddr)
	// NewEmptyRoot hardcodes a 64-slot cbk cache; rebuild the tree with the
	// configured size if it differs, keeping the same root/uber znodes.
	if cbkCacheSlots != 64 {
		tr = tree.NewTree(tr.Uber(), cbkCacheSlots)
		rootJnode := jnode.New(subvolume, rootAddr, jnode.SubtypeFormatted, jnode.LevelLeaf)
		root := tree.NewZnode(rootJnode)
		root.SetParent(tr.Uber())
		tr.SetRoot(root)
	}

	reg := plugin.NewRegistry()
	reg.RegisterNode(plugin.NodePluginGeneric)
	reg.RegisterItem(plugin.StatData)
	reg.RegisterItem(plugin.DirEntry)
	reg.RegisterItem(plugin.Extent)
	reg.RegisterItem(plugin.Ctail)

	flusher := flush.NewFlusher(flushParams, bm)
	super := &wander.Superblock{FreeBlocks: bm.FreeBlocks(), NrFiles: 0, NextOID: RootOID + 1}
	driver := wander.NewDriver(dev, bm, flusher, subvolume, journalHeaderAddr, journalFooterAddr, super)
	leaser := lease.NewLeaser(0)
	blockSize := dev.Size()
	mgr := txn.NewManager(clock.RealClock{}, txnParams, driver, leaser, blockSize)

	return &Store{
		Device:    dev,
		Alloc:     bm,
		Tree:      tr,
		Registry:  reg,
		Pool:      carry.NewPool(32),
		Mgr:       mgr,
		Driver:    driver,
		Leaser:    leaser,
		BlockSize: blockSize,
		Subvolume: subvolume,
		NrBlocks:  nrBlocks,
	}, nil
}

// BeginOp opens a write-fusing transaction handle, the "opens a txn.Handle
// at entry" half of spec.md §4.13's per-operation contract. The caller
// closes it (directly, or via commitNow for operations that must be
// durable before returning).
func (s *Store) BeginOp() *txn.Handle {
	s.Metrics.AtomCreated()
	return s.Mgr.Begin(txn.ModeWriteFusing)
}

// commitNow closes h and forces its atom through the commit pipeline
// synchronously, for operations with fsync-like durability requirements
// (format, FlushFile): Close alone only commits if the atom has already
// aged/grown past AtomShouldCommit's thresholds. Force is a safe no-op on
// an atom that already reached StageDone (spec.md §4.9), so calling it
// after Close's own possible commit is never wasted work beyond one lock/
// unlock and a stage comparison.
func (s *Store) commitNow(h *txn.Handle) error {
	a := h.Atom()
	if err := h.Close(); err != nil {
		return err
	}
	if a == nil {
		return nil
	}
	start := time.Now()
	if err := s.Mgr.Force(a); err != nil {
		return err
	}
	s.Metrics.ObserveCommitLatencySeconds(time.Since(start).Seconds())
	s.Metrics.AtomCommitted()
	s.Metrics.SetBlocksFree(s.Alloc.FreeBlocks())
	return nil
}

// allocOID hands out the next object id and persists the counter under the
// same lock the commit pipeline reads it through (wander.Driver.UpdateSuper).
func (s *Store) allocOID() uint64 {
	var oid uint64
	s.Driver.UpdateSuper(func(sb *wander.Superblock) {
		oid = sb.NextOID
		sb.NextOID++
	})
	s.Metrics.OIDIssued()
	return oid
}

func (s *Store) adjustFileCount(delta int64) {
	s.Driver.UpdateSuper(func(sb *wander.Superblock) {
		if delta >= 0 {
			sb.NrFiles += uint64(delta)
		} else {
			sb.NrFiles -= uint64(-delta)
		}
	})
}

// captureNode binds h to z's jnode, retrying on transient contention
// (KindRetry) up to maxCaptureRetries times (spec.md §4.2).
func (s *Store) captureNode(h *txn.Handle, z *tree.Znode) error {
	for i := 0; i < maxCaptureRetries; i++ {
		err := h.TryCapture(z.Node, txn.LockWrite, 0)
		if err == nil {
			return nil
		}
		terr, ok := err.(*txn.Error)
		if !ok || terr.Kind != txn.KindRetry {
			return err
		}
	}
	return fmt.Errorf("vfs: capture retry limit exceeded for node %v", z.HashKey())
}

// descendCapture walks the tree from root to the node at stopLevel holding
// k, capturing every node on the path into h's atom as it goes. Every
// mutating tree op must capture the whole descent path first: carry's own
// handlers only requeue nodes that are already captured (see carry/
// pipeline.go's requeueDirty), so a node this helper skipped would never
// reach flush's dirty-list scan even though carry dutifully marked it
// dirty.
func (s *Store) descendCapture(h *txn.Handle, k key.Key, stopLevel jnode.Level) (tree.Coord, error) {
	cur := s.Tree.Root()
	for {
		if err := s.captureNode(h, cur); err != nil {
			return tree.Coord{}, err
		}
		c := tree.LookupInNode(cur, k)
		if cur.Level() == stopLevel {
			return c, nil
		}
		items := cur.Items()
		if len(items) == 0 {
			return c, fmt.Errorf("vfs: internal node %v has no items to descend through", cur.HashKey())
		}
		pos := c.ItemPos
		if c.Between == tree.BeforeItem && pos > 0 {
			pos--
		}
		if pos >= len(items) {
			pos = len(items) - 1
		}
		child := items[pos].Child
		if child == nil {
			return c, fmt.Errorf("vfs: no downlink at position %d in node %v", pos, cur.HashKey())
		}
		cur = child
	}
}

// InsertItem posts and runs an OpInsert carry-op for a brand-new key.
func (s *Store) InsertItem(h *txn.Handle, k key.Key, value []byte) error {
	coord, err := s.descendCapture(h, k, jnode.LevelLeaf)
	if err != nil {
		return err
	}
	lvl := carry.NewLevel(jnode.LevelLeaf)
	lvl.Post(&carry.Op{
		Kind:   carry.OpInsert,
		Target: carry.CarryNode{Kind: carry.RefDirect, Base: coord.Node},
		Key:    k,
		Item:   tree.Item{Key: k, Value: value},
	})
	return carry.Carry(s.Tree, s.Registry, s.Pool, lvl)
}

// LookupItem returns the leaf item stored under k, if any. Lookups don't
// mutate the tree, so they run without a transaction handle or capture
// (spec.md §4.2: a read on a non-captured leaf still captures per the
// computeCaptureMode table, but that binding is only needed for callers
// that go on to mutate; a pure read of already-durable content does not).
func (s *Store) LookupItem(k key.Key) (tree.Item, bool) {
	c, result := s.Tree.CoordByKey(k, tree.FindExact, jnode.LevelLeaf)
	if result != tree.Found {
		return tree.Item{}, false
	}
	return c.Item()
}

// DeleteItem posts and runs an OpCut carry-op removing the single item
// stored exactly at k.
func (s *Store) DeleteItem(h *txn.Handle, k key.Key) error {
	coord, err := s.descendCapture(h, k, jnode.LevelLeaf)
	if err != nil {
		return err
	}
	if coord.Between != tree.AtUnit {
		return fmt.Errorf("vfs: delete: key %v not found", k)
	}
	lvl := carry.NewLevel(jnode.LevelLeaf)
	lvl.Post(&carry.Op{
		Kind:   carry.OpCut,
		Target: carry.CarryNode{Kind: carry.RefDirect, Base: coord.Node},
		From:   coord.ItemPos,
		To:     coord.ItemPos + 1,
	})
	return carry.Carry(s.Tree, s.Registry, s.Pool, lvl)
}

// ReplaceItem overwrites the value stored at k, used for stat-data updates
// and body-block rewrites. It is a cut-then-insert rather than an
// in-place update since item values here are plugin-opaque byte blobs, not
// append-only flows (OpPaste's job).
func (s *Store) ReplaceItem(h *txn.Handle, k key.Key, value []byte) error {
	if _, ok := s.LookupItem(k); ok {
		if err := s.DeleteItem(h, k); err != nil {
			return err
		}
	}
	return s.InsertItem(h, k, value)
}

// Key layout (spec.md §6, keyed per key.Minor): stat-data is keyed by
// (objectID, MinorStat, 0); directory entries are keyed by (parentOID,
// MinorDirEntry, hash(name)) so many children of one directory sort
// together on the leaf level; file body blocks are keyed by (objectID,
// MinorBody, blockIndex).

func statKey(oid uint64) key.Key { return key.New(oid, key.MinorStat, 0, oid, 0) }

func dirEntryKey(parentOID uint64, name string) key.Key {
	return key.New(parentOID, key.MinorDirEntry, 0, parentOID, hashName(name))
}

func dirEntryRangeStart(parentOID uint64) key.Key {
	return key.New(parentOID, key.MinorDirEntry, 0, parentOID, 0)
}

func bodyKey(oid uint64, blockIndex uint64) key.Key {
	return key.New(oid, key.MinorBody, 0, oid, blockIndex)
}

func hashName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// StatData is the fixed-size inode attribute record stored under every
// object's MinorStat key (spec.md §6). It mirrors the subset of
// fuseops.InodeAttributes this volume actually persists.
type StatData struct {
	Mode  uint32
	Nlink uint32
	Size  uint64
	Uid   uint32
	Gid   uint32
	Atime int64
	Mtime int64
	Ctime int64
}

const statDataSize = 4 + 4 + 8 + 4 + 4 + 8 + 8 + 8

func (sd StatData) Encode() []byte {
	buf := make([]byte, statDataSize)
	binary.LittleEndian.PutUint32(buf[0:4], sd.Mode)
	binary.LittleEndian.PutUint32(buf[4:8], sd.Nlink)
	binary.LittleEndian.PutUint64(buf[8:16], sd.Size)
	binary.LittleEndian.PutUint32(buf[16:20], sd.Uid)
	binary.LittleEndian.PutUint32(buf[20:24], sd.Gid)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(sd.Atime))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(sd.Mtime))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(sd.Ctime))
	return buf
}

func DecodeStatData(buf []byte) (StatData, error) {
	if len(buf) != statDataSize {
		return StatData{}, fmt.Errorf("vfs: stat-data wrong size: got %d want %d", len(buf), statDataSize)
	}
	return StatData{
		Mode:  binary.LittleEndian.Uint32(buf[0:4]),
		Nlink: binary.LittleEndian.Uint32(buf[4:8]),
		Size:  binary.LittleEndian.Uint64(buf[8:16]),
		Uid:   binary.LittleEndian.Uint32(buf[16:20]),
		Gid:   binary.LittleEndian.Uint32(buf[20:24]),
		Atime: int64(binary.LittleEndian.Uint64(buf[24:32])),
		Mtime: int64(binary.LittleEndian.Uint64(buf[32:40])),
		Ctime: int64(binary.LittleEndian.Uint64(buf[40:48])),
	}, nil
}

// DirEntry is one (name -> child object id) mapping stored under a
// directory's MinorDirEntry keys.
type DirEntry struct {
	ChildOID uint64
	Name     string
}

func (e DirEntry) Encode() []byte {
	buf := make([]byte, 8+len(e.Name))
	binary.LittleEndian.PutUint64(buf[0:8], e.ChildOID)
	copy(buf[8:], e.Name)
	return buf
}

func decodeDirEntry(buf []byte) (DirEntry, error) {
	if len(buf) < 8 {
		return DirEntry{}, fmt.Errorf("vfs: dirent too short: %d bytes", len(buf))
	}
	return DirEntry{
		ChildOID: binary.LittleEndian.Uint64(buf[0:8]),
		Name:     string(buf[8:]),
	}, nil
}

// ListDirEntries returns every directory entry under parentOID in key
// order, walking leaf sibling links the way a real node plugin's
// readdir_common would (spec.md §4.7): a directory's entries are not
// guaranteed to all fit in one node once the tree balances, so a single
// CoordByKey + Items() pass would miss later leaves.
func (s *Store) ListDirEntries(parentOID uint64) ([]DirEntry, error) {
	start := dirEntryRangeStart(parentOID)
	coord, _ := s.Tree.CoordByKey(start, tree.FindMaxNotMoreThan, jnode.LevelLeaf)
	z := coord.Node
	pos := coord.ItemPos

	var out []DirEntry
	for z != nil {
		items := z.Items()
		for ; pos < len(items); pos++ {
			it := items[pos]
			if key.Less(it.Key, start) {
				continue
			}
			if it.Key.Locality != parentOID || it.Key.Type != key.MinorDirEntry {
				return out, nil
			}
			de, err := decodeDirEntry(it.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, de)
		}
		z = z.Right()
		pos = 0
	}
	return out, nil
}

// ReadBody reads length bytes of object oid's content starting at offset,
// zero-filling any hole blocks (a block with no body item at all) the way
// a sparse file's unallocated extents read as zeros.
func (s *Store) ReadBody(oid uint64, offset int64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	blockSize := int64(s.BlockSize)
	for int64(len(out)) < int64(length) {
		pos := offset + int64(len(out))
		idx := uint64(pos / blockSize)
		within := int(pos % blockSize)
		bodyItem, ok := s.LookupItem(bodyKey(oid, idx))
		want := length - len(out)
		avail := s.BlockSize - within
		n := avail
		if n > want {
			n = want
		}
		if !ok {
			out = append(out, make([]byte, n)...)
			continue
		}
		end := within + n
		if end > len(bodyItem.Value) {
			end = len(bodyItem.Value)
		}
		if within > end {
			within = end
		}
		out = append(out, bodyItem.Value[within:end]...)
		if end-within < n {
			out = append(out, make([]byte, n-(end-within))...)
		}
	}
	return out, nil
}

// WriteBody writes data into object oid's content starting at offset,
// read-modify-writing each partially overlapped block so a short write
// never truncates the rest of that block's existing bytes.
func (s *Store) WriteBody(h *txn.Handle, oid uint64, offset int64, data []byte) error {
	blockSize := int64(s.BlockSize)
	written := 0
	for written < len(data) {
		pos := offset + int64(written)
		idx := uint64(pos / blockSize)
		within := int(pos % blockSize)
		n := s.BlockSize - within
		if n > len(data)-written {
			n = len(data) - written
		}

		buf := make([]byte, s.BlockSize)
		if existing, ok := s.LookupItem(bodyKey(oid, idx)); ok {
			copy(buf, existing.Value)
		}
		copy(buf[within:within+n], data[written:written+n])

		if err := s.ReplaceItem(h, bodyKey(oid, idx), buf); err != nil {
			return err
		}
		written += n
	}
	return nil
}

// TruncateBody removes every body block at or past newSize's block index,
// for Unlink/truncate-to-zero.
func (s *Store) TruncateBody(h *txn.Handle, oid uint64, newSize uint64) error {
	blockSize := uint64(s.BlockSize)
	startIdx := newSize / blockSize
	if newSize%blockSize != 0 {
		startIdx++
	}
	for idx := startIdx; ; idx++ {
		if _, ok := s.LookupItem(bodyKey(oid, idx)); !ok {
			return nil
		}
		if err := s.DeleteItem(h, bodyKey(oid, idx)); err != nil {
			return err
		}
	}
}
