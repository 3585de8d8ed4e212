// Package wander implements the wandering-log journal (spec.md §4.9, §6):
// the on-disk tx_header/log_record/journal_header/journal_footer formats,
// the commit pipeline's write-log and overwrite phases, and crash recovery.
package wander

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/reiser4/reiser4fs/block"
)

var txMagic = [8]byte{'T', 'x', 'M', 'a', 'g', 'i', 'c', '4'}
var logMagic = [8]byte{'L', 'o', 'g', 'M', 'a', 'g', 'c', '4'}

// Header is the journal_header block: the single pointer that makes an
// atom's commit durable once published (spec.md §4.9 step 7).
type Header struct {
	LastCommittedTx uint64
}

func (h Header) Encode(blockSize int) []byte {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.LastCommittedTx)
	return buf
}

func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < 8 {
		return Header{}, fmt.Errorf("wander: journal_header block too short (%d bytes)", len(buf))
	}
	return Header{LastCommittedTx: binary.LittleEndian.Uint64(buf[0:8])}, nil
}

// Footer is the journal_footer block, written last in a commit once the
// overwrite phase and delete-set application are both durable (spec.md
// §4.9 step 10). The volume-wide counters are logged here rather than in a
// superblock since they aren't otherwise covered by tree journaling.
type Footer struct {
	LastFlushedTx uint64
	FreeBlocks    uint64
	NrFiles       uint64
	NextOID       uint64
}

func (f Footer) Encode(blockSize int) []byte {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.LastFlushedTx)
	binary.LittleEndian.PutUint64(buf[8:16], f.FreeBlocks)
	binary.LittleEndian.PutUint64(buf[16:24], f.NrFiles)
	binary.LittleEndian.PutUint64(buf[24:32], f.NextOID)
	return buf
}

func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < 32 {
		return Footer{}, fmt.Errorf("wander: journal_footer block too short (%d bytes)", len(buf))
	}
	return Footer{
		LastFlushedTx: binary.LittleEndian.Uint64(buf[0:8]),
		FreeBlocks:    binary.LittleEndian.Uint64(buf[8:16]),
		NrFiles:       binary.LittleEndian.Uint64(buf[16:24]),
		NextOID:       binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// txHeaderSize is the encoded size of TxHeader's fixed fields, in bytes:
// 8 (magic) + 8 (id) + 4 (total) + 4 (pad) + 8*5 (prev_tx, next_block,
// free_blocks, nr_files, next_oid).
const txHeaderSize = 8 + 8 + 4 + 4 + 8*5

// TxHeader is the tx_header block written at the head of a committing
// transaction (spec.md §6).
type TxHeader struct {
	ID         uint64
	Total      uint32
	PrevTx     block.Addr
	NextBlock  block.Addr
	FreeBlocks uint64
	NrFiles    uint64
	NextOID    uint64
}

func (h TxHeader) Encode(blockSize int) []byte {
	buf := make([]byte, blockSize)
	w := bytes.NewBuffer(buf[:0])
	w.Write(txMagic[:])
	binary.Write(w, binary.LittleEndian, h.ID)
	binary.Write(w, binary.LittleEndian, h.Total)
	binary.Write(w, binary.LittleEndian, uint32(0)) // padding
	binary.Write(w, binary.LittleEndian, uint64(h.PrevTx))
	binary.Write(w, binary.LittleEndian, uint64(h.NextBlock))
	binary.Write(w, binary.LittleEndian, h.FreeBlocks)
	binary.Write(w, binary.LittleEndian, h.NrFiles)
	binary.Write(w, binary.LittleEndian, h.NextOID)
	return buf
}

func DecodeTxHeader(buf []byte) (TxHeader, error) {
	if len(buf) < txHeaderSize {
		return TxHeader{}, fmt.Errorf("wander: tx_header block too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[0:8], txMagic[:]) {
		return TxHeader{}, fmt.Errorf("wander: tx_header bad magic %q", buf[0:8])
	}
	r := bytes.NewReader(buf[8:])
	var h TxHeader
	var pad uint32
	var prev, next uint64
	binary.Read(r, binary.LittleEndian, &h.ID)
	binary.Read(r, binary.LittleEndian, &h.Total)
	binary.Read(r, binary.LittleEndian, &pad)
	binary.Read(r, binary.LittleEndian, &prev)
	binary.Read(r, binary.LittleEndian, &next)
	binary.Read(r, binary.LittleEndian, &h.FreeBlocks)
	binary.Read(r, binary.LittleEndian, &h.NrFiles)
	binary.Read(r, binary.LittleEndian, &h.NextOID)
	h.PrevTx = block.Addr(prev)
	h.NextBlock = block.Addr(next)
	return h, nil
}

// logRecordHeaderSize: 8 (magic) + 8 (id) + 4 (total) + 4 (serial) + 8 (next_block).
const logRecordHeaderSize = 8 + 8 + 4 + 4 + 8

// logEntrySize: original (u64) + wandered (u64).
const logEntrySize = 16

// LogEntry maps one OVRWR node's original block to the wandered block its
// committed body was written to (spec.md §3 "Wandered map").
type LogEntry struct {
	Original block.Addr
	Wandered block.Addr
}

// LogRecord is one log_record block: a header plus as many LogEntry pairs
// as fit in the remainder of the block, chained via NextBlock to the next
// log_record if an atom's overwrite set doesn't fit in one block.
type LogRecord struct {
	ID        uint64
	Total     uint32
	Serial    uint32
	NextBlock block.Addr
	Entries   []LogEntry
}

// EntriesPerBlock returns how many LogEntry values fit in one block after
// the header.
func EntriesPerBlock(blockSize int) int {
	return (blockSize - logRecordHeaderSize) / logEntrySize
}

func (r LogRecord) Encode(blockSize int) ([]byte, error) {
	if len(r.Entries) > EntriesPerBlock(blockSize) {
		return nil, fmt.Errorf("wander: log_record has %d entries, block holds only %d", len(r.Entries), EntriesPerBlock(blockSize))
	}
	buf := make([]byte, blockSize)
	w := bytes.NewBuffer(buf[:0])
	w.Write(logMagic[:])
	binary.Write(w, binary.LittleEndian, r.ID)
	binary.Write(w, binary.LittleEndian, r.Total)
	binary.Write(w, binary.LittleEndian, r.Serial)
	binary.Write(w, binary.LittleEndian, uint64(r.NextBlock))
	for _, e := range r.Entries {
		binary.Write(w, binary.LittleEndian, uint64(e.Original))
		binary.Write(w, binary.LittleEndian, uint64(e.Wandered))
	}
	return buf, nil
}

func DecodeLogRecord(buf []byte) (LogRecord, error) {
	if len(buf) < logRecordHeaderSize {
		return LogRecord{}, fmt.Errorf("wander: log_record block too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[0:8], logMagic[:]) {
		return LogRecord{}, fmt.Errorf("wander: log_record bad magic %q", buf[0:8])
	}
	r := bytes.NewReader(buf[8:])
	var rec LogRecord
	var next uint64
	binary.Read(r, binary.LittleEndian, &rec.ID)
	binary.Read(r, binary.LittleEndian, &rec.Total)
	binary.Read(r, binary.LittleEndian, &rec.Serial)
	binary.Read(r, binary.LittleEndian, &next)
	rec.NextBlock = block.Addr(next)

	remaining := (len(buf) - logRecordHeaderSize) / logEntrySize
	if remaining > int(rec.Total) {
		remaining = int(rec.Total)
	}
	rec.Entries = make([]LogEntry, 0, remaining)
	for i := 0; i < remaining; i++ {
		var orig, wand uint64
		if err := binary.Read(r, binary.LittleEndian, &orig); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &wand); err != nil {
			break
		}
		rec.Entries = append(rec.Entries, LogEntry{Original: block.Addr(orig), Wandered: block.Addr(wand)})
	}
	return rec, nil
}
