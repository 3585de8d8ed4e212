package wander

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/allocator"
	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/clock"
	"github.com/reiser4/reiser4fs/flush"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/lease"
	"github.com/reiser4/reiser4fs/tree"
	"github.com/reiser4/reiser4fs/txn"
)

func TestHeaderFooterTxHeaderLogRecordRoundTrip(t *testing.T) {
	const blockSize = 512

	h := Header{LastCommittedTx: 42}
	got, err := DecodeHeader(h.Encode(blockSize))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	f := Footer{LastFlushedTx: 7, FreeBlocks: 100, NrFiles: 3, NextOID: 9}
	gf, err := DecodeFooter(f.Encode(blockSize))
	require.NoError(t, err)
	assert.Equal(t, f, gf)

	txh := TxHeader{ID: 5, Total: 3, PrevTx: 11, NextBlock: 22, FreeBlocks: 80, NrFiles: 2, NextOID: 4}
	gt, err := DecodeTxHeader(txh.Encode(blockSize))
	require.NoError(t, err)
	assert.Equal(t, txh, gt)

	rec := LogRecord{ID: 5, Total: 2, Serial: 0, NextBlock: 0, Entries: []LogEntry{
		{Original: 100, Wandered: 900},
		{Original: 101, Wandered: 901},
	}}
	buf, err := rec.Encode(blockSize)
	require.NoError(t, err)
	gr, err := DecodeLogRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Entries, gr.Entries)
	assert.Equal(t, rec.ID, gr.ID)
}

func TestTxHeaderDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 512)
	_, err := DecodeTxHeader(buf)
	assert.Error(t, err)
}

func newCommitEnv(t *testing.T) (*blockdev.FakeDevice, *allocator.Bitmap, *flush.Flusher, *Driver, *txn.Manager) {
	t.Helper()
	dev := blockdev.NewFakeDevice(512)
	bm := allocator.NewBitmap(4096)
	require.NoError(t, bm.MarkUsed(block.Addr(0))) // journal_header
	require.NoError(t, bm.MarkUsed(block.Addr(1))) // journal_footer

	flusher := flush.NewFlusher(flush.Params{ScanMaxNodes: 8, RelocateThreshold: 0}, bm)
	super := &Superblock{FreeBlocks: bm.FreeBlocks(), NrFiles: 0, NextOID: 1}
	driver := NewDriver(dev, bm, flusher, 1, block.Addr(0), block.Addr(1), super)
	mgr := txn.NewManager(clock.RealClock{}, txn.Params{}, driver, nil, 512)
	return dev, bm, flusher, driver, mgr
}

func captureDirtyLeaf(t *testing.T, mgr *txn.Manager, bm *allocator.Bitmap, addr block.Addr, payload []byte) (*txn.Handle, *txn.Atom, *tree.Znode) {
	t.Helper()
	require.NoError(t, bm.MarkUsed(addr))
	h := mgr.Begin(txn.ModeWriteFusing)
	z := tree.NewZnode(jnode.New(1, addr, jnode.SubtypeFormatted, jnode.LevelLeaf))
	require.NoError(t, h.TryCapture(z.Node, txn.LockWrite, 0))
	a := h.Atom()
	require.NotNil(t, a)

	leaser := lease.NewLeaser(0)
	page := z.Node.Page(leaser, 512)
	page.Set(payload)

	z.MakeDirty()
	a.Requeue(z.Node)
	return h, a, z
}

func TestCommitWritesPayloadToOriginalBlock(t *testing.T) {
	dev, bm, _, _, mgr := newCommitEnv(t)
	payload := bytes.Repeat([]byte{0xAB}, 512)
	h, a, _ := captureDirtyLeaf(t, mgr, bm, block.Addr(100), payload)

	require.NoError(t, mgr.Force(a))
	require.NoError(t, h.Close())

	got, err := dev.ReadBlock(block.Addr(100))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	hdrBuf, err := dev.ReadBlock(block.Addr(0))
	require.NoError(t, err)
	hdr, err := DecodeHeader(hdrBuf)
	require.NoError(t, err)
	assert.NotZero(t, hdr.LastCommittedTx)

	ftrBuf, err := dev.ReadBlock(block.Addr(1))
	require.NoError(t, err)
	ftr, err := DecodeFooter(ftrBuf)
	require.NoError(t, err)
	assert.Equal(t, hdr.LastCommittedTx, ftr.LastFlushedTx)
}

func TestRecoverReplaysCrashBetweenLogAndOverwrite(t *testing.T) {
	dev, bm, flusher, driver, mgr := newCommitEnv(t)
	payload := bytes.Repeat([]byte{0xCD}, 512)
	h, a, _ := captureDirtyLeaf(t, mgr, bm, block.Addr(200), payload)
	defer h.Close()

	require.NoError(t, flusher.Flush(a))
	require.NoError(t, driver.WriteLog(a))
	// Simulate a crash: Overwrite is never called, so block 200 still
	// holds its pre-commit (zero) content on dev.
	before, err := dev.ReadBlock(block.Addr(200))
	require.NoError(t, err)
	assert.NotEqual(t, payload, before)

	super, err := Recover(dev, block.Addr(0), block.Addr(1))
	require.NoError(t, err)
	assert.NotNil(t, super)

	after, err := dev.ReadBlock(block.Addr(200))
	require.NoError(t, err)
	assert.Equal(t, payload, after)
}

func TestRecoverNoOpWhenNothingCommitted(t *testing.T) {
	dev := blockdev.NewFakeDevice(512)
	super, err := Recover(dev, block.Addr(0), block.Addr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), super.NrFiles)
}
