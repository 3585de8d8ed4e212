package wander

import (
	"fmt"
	"sync"

	"github.com/reiser4/reiser4fs/allocator"
	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/flush"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/txn"
)

// pendingCommit holds the state WriteLog hands off to Overwrite for one
// atom's commit: which nodes to write where, and which wandered blocks to
// free once their job is done.
type pendingCommit struct {
	txAddr        block.Addr
	relocSet      []*jnode.Node
	ovrwrSet      []*jnode.Node
	wanderedAddrs []block.Addr
}

// Driver implements txn.CommitDriver by composing a flush.Flusher (steps
// 2-4), the wire formats in this package (steps 5-7), and the overwrite/
// delete-set/footer phase (steps 8-10), per spec.md §4.9. One Driver
// serves one subvolume's journal.
type Driver struct {
	mu sync.Mutex

	Device    blockdev.Device
	Alloc     *allocator.Bitmap
	Flusher   *flush.Flusher
	Subvolume uint32

	HeaderAddr block.Addr
	FooterAddr block.Addr
	Super      *Superblock

	lastTxAddr block.Addr
	pending    map[uint64]*pendingCommit
}

// NewDriver wires a Driver. headerAddr/footerAddr are fixed, reserved
// blocks that never move (the volume's only "superblock-like" pointers).
func NewDriver(dev blockdev.Device, alloc *allocator.Bitmap, flusher *flush.Flusher, subvolume uint32, headerAddr, footerAddr block.Addr, super *Superblock) *Driver {
	return &Driver{
		Device:     dev,
		Alloc:      alloc,
		Flusher:    flusher,
		Subvolume:  subvolume,
		HeaderAddr: headerAddr,
		FooterAddr: footerAddr,
		Super:      super,
		pending:    make(map[uint64]*pendingCommit),
	}
}

// Flush implements txn.CommitDriver.Flush by delegating to the flush
// package (spec.md §4.9 steps 2-4).
func (d *Driver) Flush(a *txn.Atom) error {
	return d.Flusher.Flush(a)
}

// UpdateSuper mutates the volume's superblock counters (next_oid, nr_files)
// under the same lock WriteLog/Overwrite take, so a foreground mkdir/create
// bumping next_oid can't race a concurrent commit reading those fields into
// a tx_header or journal_footer.
func (d *Driver) UpdateSuper(fn func(*Superblock)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.Super)
}

func bodyOf(n *jnode.Node, size int) []byte {
	if n.HasPage() {
		return n.Page(nil, 0).Get()
	}
	return make([]byte, size)
}

func chunkEntries(entries []LogEntry, per int) [][]LogEntry {
	if per <= 0 || len(entries) == 0 {
		return nil
	}
	var chunks [][]LogEntry
	for len(entries) > 0 {
		n := per
		if n > len(entries) {
			n = len(entries)
		}
		chunks = append(chunks, entries[:n])
		entries = entries[n:]
	}
	return chunks
}

// WriteLog implements spec.md §4.9 steps 5-7: for every OVRWR node, write
// the wandered body to the block squalloc recorded in the atom's wandered
// map, then the log_record chain,
// then the tx_header, then publish journal_header. Everything up to and
// including the journal_header write must be durable before returning,
// since publishing journal_header is what makes the atom committed.
func (d *Driver) WriteLog(a *txn.Atom) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := d.Flusher.Queues.Drain(d.Subvolume)
	var relocSet, ovrwrSet []*jnode.Node
	for _, n := range nodes {
		n.Mu.Lock()
		switch {
		case n.Flags().Has(jnode.FlagReloc):
			relocSet = append(relocSet, n)
		case n.Flags().Has(jnode.FlagOvrwr):
			ovrwrSet = append(ovrwrSet, n)
		}
		n.Mu.Unlock()
	}

	wmap := a.WanderedMap()
	entries := make([]LogEntry, 0, len(ovrwrSet))
	wanderedAddrs := make([]block.Addr, 0, len(ovrwrSet))
	for _, n := range ovrwrSet {
		wAddr, ok := wmap[n.Blocknr]
		if !ok {
			return fmt.Errorf("wander: no wandered block recorded for original %v", n.Blocknr)
		}
		if err := d.Device.WriteBlock(wAddr, bodyOf(n, d.Device.Size())); err != nil {
			return fmt.Errorf("wander: write wandered body for %v: %w", n.Blocknr, err)
		}
		entries = append(entries, LogEntry{Original: n.Blocknr, Wandered: wAddr})
		wanderedAddrs = append(wanderedAddrs, wAddr)
	}

	chunks := chunkEntries(entries, EntriesPerBlock(d.Device.Size()))
	recAddrs := make([]block.Addr, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		addr, err := d.Alloc.Allocate(0)
		if err != nil {
			return fmt.Errorf("wander: allocate log_record block: %w", err)
		}
		recAddrs[i] = addr
	}
	for i, chunk := range chunks {
		next := block.Addr(block.Hole)
		if i+1 < len(chunks) {
			next = recAddrs[i+1]
		}
		rec := LogRecord{ID: a.AtomID(), Total: uint32(len(chunk)), Serial: uint32(i), NextBlock: next, Entries: chunk}
		buf, err := rec.Encode(d.Device.Size())
		if err != nil {
			return err
		}
		if err := d.Device.WriteBlock(recAddrs[i], buf); err != nil {
			return fmt.Errorf("wander: write log_record %d: %w", i, err)
		}
	}
	firstLog := block.Addr(block.Hole)
	if len(recAddrs) > 0 {
		firstLog = recAddrs[0]
	}

	txAddr, err := d.Alloc.Allocate(0)
	if err != nil {
		return fmt.Errorf("wander: allocate tx_header block: %w", err)
	}
	txh := TxHeader{
		ID:         a.AtomID(),
		Total:      uint32(1 + len(recAddrs) + len(wanderedAddrs)),
		PrevTx:     d.lastTxAddr,
		NextBlock:  firstLog,
		FreeBlocks: d.Super.FreeBlocks,
		NrFiles:    d.Super.NrFiles,
		NextOID:    d.Super.NextOID,
	}
	if err := d.Device.WriteBlock(txAddr, txh.Encode(d.Device.Size())); err != nil {
		return fmt.Errorf("wander: write tx_header: %w", err)
	}
	if err := d.Device.Sync(); err != nil {
		return fmt.Errorf("wander: sync before journal_header publish: %w", err)
	}

	hdr := Header{LastCommittedTx: uint64(txAddr)}
	if err := d.Device.WriteBlock(d.HeaderAddr, hdr.Encode(d.Device.Size())); err != nil {
		return fmt.Errorf("wander: publish journal_header: %w", err)
	}
	if err := d.Device.Sync(); err != nil {
		return fmt.Errorf("wander: sync journal_header: %w", err)
	}

	d.pending[a.AtomID()] = &pendingCommit{
		txAddr:        txAddr,
		relocSet:      relocSet,
		ovrwrSet:      ovrwrSet,
		wanderedAddrs: wanderedAddrs,
	}
	return nil
}

// Overwrite implements spec.md §4.9 steps 8-10: write every RELOC/OVRWR
// node to its final location, free the now-unneeded wandered blocks and
// the delete set, then write journal_footer.
func (d *Driver) Overwrite(a *txn.Atom) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pending[a.AtomID()]
	if p == nil {
		return nil
	}
	delete(d.pending, a.AtomID())

	all := make([]*jnode.Node, 0, len(p.relocSet)+len(p.ovrwrSet))
	all = append(all, p.relocSet...)
	all = append(all, p.ovrwrSet...)

	for _, n := range all {
		n.Mu.Lock()
		addr := n.Blocknr
		body := bodyOf(n, d.Device.Size())
		n.Mu.Unlock()
		if err := d.Device.WriteBlock(addr, body); err != nil {
			return fmt.Errorf("wander: overwrite %v: %w", addr, err)
		}
	}
	if err := d.Device.Sync(); err != nil {
		return fmt.Errorf("wander: sync overwrite phase: %w", err)
	}

	if err := d.Alloc.Free(p.wanderedAddrs); err != nil {
		return fmt.Errorf("wander: free wandered blocks: %w", err)
	}
	if err := d.Alloc.Free(a.DeleteSet()); err != nil {
		return fmt.Errorf("wander: apply delete set: %w", err)
	}

	for _, n := range all {
		n.Mu.Lock()
		n.MakeClean()
		n.Mu.Unlock()
		a.Requeue(n)
	}

	d.Super.FreeBlocks = d.Alloc.FreeBlocks()
	footer := d.Super.Footer(uint64(p.txAddr))
	if err := d.Device.WriteBlock(d.FooterAddr, footer.Encode(d.Device.Size())); err != nil {
		return fmt.Errorf("wander: write journal_footer: %w", err)
	}
	if err := d.Device.Sync(); err != nil {
		return fmt.Errorf("wander: sync journal_footer: %w", err)
	}

	d.lastTxAddr = p.txAddr
	return nil
}
