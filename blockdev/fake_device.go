package blockdev

import (
	"sync"

	"github.com/reiser4/reiser4fs/block"
)

// FakeDevice is an in-memory Device for tests that don't want real file
// I/O: the wander test suite exercises its logic against it
// the same way they would a FileDevice.
type FakeDevice struct {
	mu        sync.Mutex
	blockSize int
	blocks    map[block.Addr][]byte
	synced    int
}

func NewFakeDevice(blockSize int) *FakeDevice {
	return &FakeDevice{blockSize: blockSize, blocks: make(map[block.Addr][]byte)}
}

func (d *FakeDevice) Size() int          { return d.blockSize }
func (d *FakeDevice) BlockCount() uint64 { return uint64(len(d.blocks)) }

func (d *FakeDevice) ReadBlock(addr block.Addr) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.blocks[addr]
	if !ok {
		return make([]byte, d.blockSize), nil
	}
	out := make([]byte, d.blockSize)
	copy(out, b)
	return out, nil
}

func (d *FakeDevice) WriteBlock(addr block.Addr, data []byte) error {
	if len(data) != d.blockSize {
		return &ErrShortIO{Op: "write", Want: d.blockSize, Got: len(data)}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, d.blockSize)
	copy(buf, data)
	d.blocks[addr] = buf
	return nil
}

func (d *FakeDevice) Sync() error {
	d.mu.Lock()
	d.synced++
	d.mu.Unlock()
	return nil
}

func (d *FakeDevice) SyncCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}
