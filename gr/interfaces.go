package gr

import (
	"context"

	"github.com/sarchlab/grengine/vidmem"
)

// MemoryManager is the part of the memory layer the engine consumes:
// allocation, GPU virtual mappings and cache maintenance.
type MemoryManager interface {
	Alloc(size uint64) (*vidmem.Buffer, error)
	AllocProtected(size uint64) (*vidmem.Buffer, error)
	Put(buf *vidmem.Buffer)

	Map(as *vidmem.AddressSpace, buf *vidmem.Buffer, cached bool) (uint64, error)
	Unmap(as *vidmem.AddressSpace, va uint64) error
	DeviceAddr(buf *vidmem.Buffer) uint64

	FlushL2(invalidate bool)
	InvalidateL2()
	FlushFB()
}

// Scheduler is the channel layer. The engine asks it to fence engine
// activity, to enumerate channels when resolving a fault, and to tear down
// channels that misbehaved.
type Scheduler interface {
	DisableEngineActivity(ctx context.Context, engine int) error
	EnableEngineActivity(engine int) error

	Channels() []*Channel
	FreeChannel(ch *Channel, wait bool)
	DisableChannel(ctx context.Context, ch *Channel, wait bool)
}

var _ MemoryManager = (*vidmem.Manager)(nil)
