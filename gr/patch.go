package gr

import "github.com/sarchlab/grengine/regbus"

// PatchCapacity is the number of (address, value) pairs a patch buffer
// holds.
const PatchCapacity = 128

const patchPairBytes = 8

// PatchBufferSize is the allocation size of a channel patch buffer.
const PatchBufferSize = PatchCapacity * patchPairBytes

// A WriteSink receives register writes. Direct applies them to the engine;
// Deferred queues them for the context-switch unit to replay when the
// channel's context is restored.
type WriteSink interface {
	Write(addr, value uint32) error
}

// Direct writes to the register bus.
type Direct struct {
	Bus regbus.Bus
}

// Write applies the write immediately.
func (d Direct) Write(addr, value uint32) error {
	d.Bus.Write32(addr, value)
	return nil
}

// Deferred appends writes to a channel's patch buffer.
type Deferred struct {
	Patch  *PatchContext
	Memory MemoryManager
}

// Write appends one pair. The pair is visible to the context-switch unit
// once the count is bumped, which happens after the L2 invalidate.
func (d Deferred) Write(addr, value uint32) error {
	p := d.Patch
	if p.Buf == nil || p.DataCount >= PatchCapacity {
		return ErrPatchFull
	}

	slot := uint64(p.DataCount) * patchPairBytes
	p.Buf.Write32(slot, addr)
	p.Buf.Write32(slot+4, value)
	d.Memory.InvalidateL2()
	p.DataCount++

	return nil
}

// PatchEntries decodes the queued pairs of a patch buffer.
func PatchEntries(p PatchContext) [][2]uint32 {
	if p.Buf == nil {
		return nil
	}

	out := make([][2]uint32, 0, p.DataCount)
	for i := uint32(0); i < p.DataCount; i++ {
		slot := uint64(i) * patchPairBytes
		out = append(out, [2]uint32{p.Buf.Read32(slot), p.Buf.Read32(slot + 4)})
	}

	return out
}

var (
	_ WriteSink = Direct{}
	_ WriteSink = Deferred{}
)
