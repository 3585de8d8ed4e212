package plugin

import (
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/tree"
)

// byteItem is the shared base for the item plugins below: each item's
// payload is interpreted as a flat byte flow, unitized by a fixed stride.
// This is enough to exercise the full contract named in spec.md §4.7
// (unit counting, flow estimation, shift/copy, create/kill hooks) without
// committing to a particular on-disk encoding, which spec.md's Non-goals
// explicitly exclude.
type byteItem struct {
	id     ID
	stride int
}

func (b byteItem) ID() ID { return b.id }

func (b byteItem) NrUnits(it tree.Item) int {
	if b.stride <= 0 {
		return 1
	}
	n := len(it.Value) / b.stride
	if n == 0 {
		return 1
	}
	return n
}

func (b byteItem) UnitKey(it tree.Item, unit int) key.Key {
	return it.Key.WithOffset(it.Key.Offset + uint64(unit*max(b.stride, 1)))
}

func (b byteItem) EstimateInsert(payload []byte) int { return len(payload) + 24 }

func (b byteItem) CanShift(it tree.Item, maxBytes int) int {
	stride := max(b.stride, 1)
	units := maxBytes / stride
	if units > b.NrUnits(it) {
		units = b.NrUnits(it)
	}
	return units
}

func (b byteItem) CopyUnits(dst, src tree.Item, from, count int) tree.Item {
	stride := max(b.stride, 1)
	start := from * stride
	end := start + count*stride
	if end > len(src.Value) {
		end = len(src.Value)
	}
	if start > end {
		start = end
	}
	dst.Value = append(dst.Value, src.Value[start:end]...)
	return dst
}

func (b byteItem) CreateHook(tree.Item) error { return nil }
func (b byteItem) KillHook(tree.Item) error   { return nil }

func (b byteItem) KillUnits(it tree.Item, from, to int) tree.Item {
	stride := max(b.stride, 1)
	start, end := from*stride, to*stride
	if end > len(it.Value) {
		end = len(it.Value)
	}
	it.Value = append(it.Value[:start:start], it.Value[end:]...)
	return it
}

// StatData holds the inode's fixed-size attribute record: no sub-units, one
// unit spanning the whole item.
var StatData ItemPlugin = byteItem{id: IDStatData, stride: 0}

// DirEntry holds one (name, objectid) pair per unit; spec.md's Non-goals
// exclude hashing policy, so units are addressed positionally by the
// directory's carry/lookup layer, not by name hash.
var DirEntry ItemPlugin = byteItem{id: IDDirEntry, stride: 32}

// Extent holds one (start-block, width) pointer per 16-byte unit,
// addressing unformatted file-body blocks (spec.md §1 "family of
// item/node plugins ... unformatted data").
var Extent ItemPlugin = byteItem{id: IDExtent, stride: 16}

// Ctail holds one compressed cluster per unit; spec.md's Non-goals exclude
// the compression algorithm itself, so the payload is opaque bytes and the
// plugin only manages unit boundaries.
var Ctail ItemPlugin = byteItem{id: IDCtail, stride: 4096}
