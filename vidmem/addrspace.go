package vidmem

import (
	"errors"
	"sync"

	"github.com/google/btree"
	"github.com/sarchlab/grengine/idgen"
)

// ErrVAExhausted is returned when an address space has no room left.
var ErrVAExhausted = errors.New("vidmem: virtual address space exhausted")

// ErrNotMapped is returned when unmapping an address that is not mapped.
var ErrNotMapped = errors.New("vidmem: address not mapped")

// A Mapping is one buffer mapped into an address space.
type Mapping struct {
	VA     uint64
	Buffer *Buffer
	Cached bool
}

func mappingLess(a, b *Mapping) bool { return a.VA < b.VA }

// An AddressSpace is the GPU virtual address space of one or more channels.
type AddressSpace struct {
	ID idgen.ID

	lock     sync.Mutex
	vas      *rangeAllocator
	mappings *btree.BTreeG[*Mapping]
	pageSize uint64
}

func newAddressSpace(id idgen.ID, base, size, pageSize uint64) *AddressSpace {
	return &AddressSpace{
		ID:       id,
		vas:      newRangeAllocator(base, size),
		mappings: btree.NewG(8, mappingLess),
		pageSize: pageSize,
	}
}

func (as *AddressSpace) mapBuffer(buf *Buffer, cached bool) (uint64, error) {
	as.lock.Lock()
	defer as.lock.Unlock()

	va, ok := as.vas.alloc(buf.Size, as.pageSize)
	if !ok {
		return 0, ErrVAExhausted
	}

	as.mappings.ReplaceOrInsert(&Mapping{VA: va, Buffer: buf, Cached: cached})

	return va, nil
}

func (as *AddressSpace) unmap(va uint64) (*Mapping, error) {
	as.lock.Lock()
	defer as.lock.Unlock()

	m, ok := as.mappings.Delete(&Mapping{VA: va})
	if !ok {
		return nil, ErrNotMapped
	}

	as.vas.release(va)

	return m, nil
}

// Find returns the mapping that contains va.
func (as *AddressSpace) Find(va uint64) (*Mapping, bool) {
	as.lock.Lock()
	defer as.lock.Unlock()

	var found *Mapping

	as.mappings.DescendLessOrEqual(&Mapping{VA: va}, func(m *Mapping) bool {
		found = m
		return false
	})

	if found == nil || va >= found.VA+found.Buffer.Size {
		return nil, false
	}

	return found, true
}

// Translate returns the physical address backing va.
func (as *AddressSpace) Translate(va uint64) (uint64, bool) {
	m, ok := as.Find(va)
	if !ok {
		return 0, false
	}

	return m.Buffer.PhysAddr + (va - m.VA), true
}

// NumMappings returns how many buffers are mapped.
func (as *AddressSpace) NumMappings() int {
	as.lock.Lock()
	defer as.lock.Unlock()

	return as.mappings.Len()
}
