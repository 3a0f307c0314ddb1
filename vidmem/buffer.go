package vidmem

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/grengine/idgen"
)

// A Buffer is a handle to a contiguous physical allocation. A buffer starts
// with one reference; Manager.Put drops a reference and frees the memory when
// the last one goes away.
type Buffer struct {
	ID        idgen.ID
	PhysAddr  uint64
	Size      uint64
	Protected bool

	refs    atomic.Int32
	storage *Storage
}

// Get takes another reference to the buffer.
func (b *Buffer) Get() *Buffer {
	b.refs.Add(1)
	return b
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

func (b *Buffer) mustBeInside(offset, length uint64) {
	if offset+length > b.Size {
		panic(fmt.Sprintf("vidmem: access [%#x, %#x) outside buffer %d of size %#x",
			offset, offset+length, b.ID, b.Size))
	}
}

// Read32 reads the word at byte offset.
func (b *Buffer) Read32(offset uint64) uint32 {
	b.mustBeInside(offset, 4)

	v, err := b.storage.Read32(b.PhysAddr + offset)
	if err != nil {
		panic(err)
	}

	return v
}

// Write32 writes the word at byte offset.
func (b *Buffer) Write32(offset uint64, v uint32) {
	b.mustBeInside(offset, 4)

	if err := b.storage.Write32(b.PhysAddr+offset, v); err != nil {
		panic(err)
	}
}

// ReadBytes copies n bytes starting at offset out of the buffer.
func (b *Buffer) ReadBytes(offset, n uint64) []byte {
	b.mustBeInside(offset, n)

	data, err := b.storage.Read(b.PhysAddr+offset, n)
	if err != nil {
		panic(err)
	}

	return data
}

// WriteBytes copies data into the buffer starting at offset.
func (b *Buffer) WriteBytes(offset uint64, data []byte) {
	b.mustBeInside(offset, uint64(len(data)))

	if err := b.storage.Write(b.PhysAddr+offset, data); err != nil {
		panic(err)
	}
}

// Zero clears the whole buffer.
func (b *Buffer) Zero() {
	if err := b.storage.Zero(b.PhysAddr, b.Size); err != nil {
		panic(err)
	}
}
