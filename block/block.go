// Package block defines the on-disk block address space.
package block

import "sync/atomic"

// Addr is a 64-bit block number. Zero is reserved to mean "hole" (no block
// allocated for this logical position). A high range is reserved for "fake"
// addresses assigned to not-yet-allocated blocks; fake addresses are never
// written to disk.
type Addr uint64

// Hole is the sentinel for "no block here".
const Hole Addr = 0

// fakeBase marks the start of the fake-address range. Real allocations are
// expected to stay well below it for any device this implementation targets;
// the allocator never hands out addresses in this range.
const fakeBase Addr = 1 << 63

// UberTreeAddr is the fake address of the virtual super-root node that acts
// as the parent of the real tree root. It is never allocated or written.
const UberTreeAddr Addr = fakeBase | 1

var nextFake uint64

// NewFake returns a fresh fake address, used to identify a jnode for a block
// that has not yet been assigned a real location.
func NewFake() Addr {
	n := atomic.AddUint64(&nextFake, 1)
	return fakeBase | Addr(n)<<1
}

// IsFake reports whether a is in the fake range.
func (a Addr) IsFake() bool { return a&fakeBase != 0 }

// IsHole reports whether a denotes no block.
func (a Addr) IsHole() bool { return a == Hole }
