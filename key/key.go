// Package key implements the ordered tuple used as tree coordinates.
//
// A Key is a fixed-width tuple (locality, type-minor, ordering, objectid,
// offset). Comparison is lexicographic on the limbs, matching the on-disk
// key format described by the node plugin contract.
package key

import "bytes"

// Minor distinguishes what kind of item a key addresses within one object:
// stat-data, directory entry, file body, and so on.
type Minor uint8

const (
	MinorStat Minor = iota
	MinorDirEntry
	MinorBody
	MinorAttr
)

// Key is an immutable, totally ordered tree coordinate.
//
// INVARIANT: Key values are never mutated after construction; all
// operations that "change" a key return a new value.
type Key struct {
	Locality uint64
	Type     Minor
	Ordering uint64
	ObjectID uint64
	Offset   uint64
}

// New builds a key from its components.
func New(locality uint64, typ Minor, ordering, objectID, offset uint64) Key {
	return Key{
		Locality: locality,
		Type:     typ,
		Ordering: ordering,
		ObjectID: objectID,
		Offset:   offset,
	}
}

// Min is the all-zeros sentinel: no real key compares less than it.
var Min = Key{}

// Max is the all-ones sentinel: no real key compares greater than it.
var Max = Key{
	Locality: ^uint64(0),
	Type:     ^Minor(0),
	Ordering: ^uint64(0),
	ObjectID: ^uint64(0),
	Offset:   ^uint64(0),
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b,
// comparing limbs in tuple order.
func Compare(a, b Key) int {
	if a.Locality != b.Locality {
		return cmpU64(a.Locality, b.Locality)
	}
	if a.Type != b.Type {
		return cmpU64(uint64(a.Type), uint64(b.Type))
	}
	if a.Ordering != b.Ordering {
		return cmpU64(a.Ordering, b.Ordering)
	}
	if a.ObjectID != b.ObjectID {
		return cmpU64(a.ObjectID, b.ObjectID)
	}
	return cmpU64(a.Offset, b.Offset)
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b.
func Less(a, b Key) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b are the same key.
func Equal(a, b Key) bool { return Compare(a, b) == 0 }

// WithOffset returns a copy of k with a different offset, used when
// advancing through a flow of unit keys within the same item.
func (k Key) WithOffset(offset uint64) Key {
	k.Offset = offset
	return k
}

// Bytes encodes k into its fixed-width wire form, limb by limb, big-endian
// within each limb so that byte-wise comparison matches Compare.
func (k Key) Bytes() []byte {
	buf := make([]byte, 40)
	putU64(buf[0:8], k.Locality)
	putU64(buf[8:16], uint64(k.Type))
	putU64(buf[16:24], k.Ordering)
	putU64(buf[24:32], k.ObjectID)
	putU64(buf[32:40], k.Offset)
	return buf
}

func putU64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// BytesCompare is equivalent to Compare(a, b) but operates on the wire
// encoding, used by node plugins that keep items sorted by raw key bytes.
func BytesCompare(a, b Key) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}
