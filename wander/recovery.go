package wander

import (
	"fmt"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/blockdev"
)

// maxChainWalk bounds the tx_header chain walk against a corrupt prev_tx
// loop; a real volume's chain is at most a few thousand long between
// flushes.
const maxChainWalk = 1 << 20

// Recover implements spec.md §4.9's recovery procedure: read journal_header
// and journal_footer, walk the tx_header chain from last_committed_tx back
// to (but not including) last_flushed_tx, and replay each transaction's
// overwrite phase in commit order. Replay is idempotent, so re-running it
// after a crash mid-recovery is safe (spec.md §9 crash scenarios).
func Recover(dev blockdev.Device, headerAddr, footerAddr block.Addr) (*Superblock, error) {
	hdrBuf, err := dev.ReadBlock(headerAddr)
	if err != nil {
		return nil, fmt.Errorf("wander: read journal_header: %w", err)
	}
	hdr, err := DecodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	ftrBuf, err := dev.ReadBlock(footerAddr)
	if err != nil {
		return nil, fmt.Errorf("wander: read journal_footer: %w", err)
	}
	ftr, err := DecodeFooter(ftrBuf)
	if err != nil {
		return nil, err
	}

	super := &Superblock{}
	super.Apply(ftr)

	lastCommitted := block.Addr(hdr.LastCommittedTx)
	lastFlushed := block.Addr(ftr.LastFlushedTx)
	if lastCommitted.IsHole() || lastCommitted == lastFlushed {
		return super, nil
	}

	var chain []TxHeader
	cur := lastCommitted
	for i := 0; !cur.IsHole() && cur != lastFlushed; i++ {
		if i >= maxChainWalk {
			return nil, fmt.Errorf("wander: tx_header chain exceeds %d entries, refusing to replay (corrupt prev_tx?)", maxChainWalk)
		}
		buf, err := dev.ReadBlock(cur)
		if err != nil {
			return nil, fmt.Errorf("wander: read tx_header at %v: %w", cur, err)
		}
		txh, err := DecodeTxHeader(buf)
		if err != nil {
			return nil, fmt.Errorf("wander: decode tx_header at %v: %w", cur, err)
		}
		chain = append(chain, txh)
		cur = txh.PrevTx
	}

	// chain is newest-first (walked backward via PrevTx); replay oldest-first.
	for i := len(chain) - 1; i >= 0; i-- {
		txh := chain[i]
		if err := replayTx(dev, txh); err != nil {
			return nil, err
		}
		super.FreeBlocks = txh.FreeBlocks
		super.NrFiles = txh.NrFiles
		super.NextOID = txh.NextOID
	}

	newFooter := Footer{
		LastFlushedTx: uint64(lastCommitted),
		FreeBlocks:    super.FreeBlocks,
		NrFiles:       super.NrFiles,
		NextOID:       super.NextOID,
	}
	if err := dev.WriteBlock(footerAddr, newFooter.Encode(dev.Size())); err != nil {
		return nil, fmt.Errorf("wander: write recovered journal_footer: %w", err)
	}
	if err := dev.Sync(); err != nil {
		return nil, fmt.Errorf("wander: sync recovered journal_footer: %w", err)
	}
	return super, nil
}

// replayTx copies every wandered body named in txh's log_record chain back
// to its original block (spec.md §4.9 recovery step, §9 "overwrites are
// idempotent; replay repeats them harmlessly").
func replayTx(dev blockdev.Device, txh TxHeader) error {
	addr := txh.NextBlock
	for !addr.IsHole() {
		buf, err := dev.ReadBlock(addr)
		if err != nil {
			return fmt.Errorf("wander: read log_record at %v: %w", addr, err)
		}
		rec, err := DecodeLogRecord(buf)
		if err != nil {
			return fmt.Errorf("wander: decode log_record at %v: %w", addr, err)
		}
		for _, e := range rec.Entries {
			body, err := dev.ReadBlock(e.Wandered)
			if err != nil {
				return fmt.Errorf("wander: read wandered block %v: %w", e.Wandered, err)
			}
			if err := dev.WriteBlock(e.Original, body); err != nil {
				return fmt.Errorf("wander: replay overwrite to %v: %w", e.Original, err)
			}
		}
		addr = rec.NextBlock
	}
	return nil
}
