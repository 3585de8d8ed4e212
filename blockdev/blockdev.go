// Package blockdev implements the bio-dispatch contract (spec.md §4.12): a
// tiny block-addressed read/write/sync surface that the wander package
// issues I/O through, plus a real file-backed
// implementation for a mounted volume.
package blockdev

import (
	"fmt"

	"github.com/reiser4/reiser4fs/block"
)

// Device is the abstract block device contract. All offsets are in whole
// blocks of Size(); callers never deal in byte offsets.
type Device interface {
	Size() int
	ReadBlock(addr block.Addr) ([]byte, error)
	WriteBlock(addr block.Addr, data []byte) error
	Sync() error
	BlockCount() uint64
}

// ErrShortIO is returned when a read or write transfers fewer bytes than
// one block, which on a real block device indicates a torn/partial I/O.
type ErrShortIO struct {
	Op   string
	Want int
	Got  int
}

func (e *ErrShortIO) Error() string {
	return fmt.Sprintf("blockdev: short %s: want %d bytes, got %d", e.Op, e.Want, e.Got)
}
