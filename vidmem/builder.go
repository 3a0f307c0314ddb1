package vidmem

import "github.com/sarchlab/grengine/idgen"

// Builder can build memory managers.
type Builder struct {
	capacity          uint64
	protectedCapacity uint64
	vaBase            uint64
	vaSize            uint64
	pageSize          uint64
}

// MakeBuilder returns a Builder with a 256 MiB device, no protected region
// and a 4 GiB address space per channel.
func MakeBuilder() Builder {
	return Builder{
		capacity: 256 << 20,
		vaBase:   1 << 20,
		vaSize:   4 << 30,
		pageSize: 4096,
	}
}

// WithCapacity sets the size of the normal region.
func (b Builder) WithCapacity(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithProtectedCapacity sets the size of the video protected region. Zero
// means the device has none.
func (b Builder) WithProtectedCapacity(capacity uint64) Builder {
	b.protectedCapacity = capacity
	return b
}

// WithVASize sets the size of each address space.
func (b Builder) WithVASize(size uint64) Builder {
	b.vaSize = size
	return b
}

// WithPageSize sets the allocation and mapping granularity.
func (b Builder) WithPageSize(pageSize uint64) Builder {
	b.pageSize = pageSize
	return b
}

// Build creates the manager.
func (b Builder) Build(name string) *Manager {
	m := &Manager{
		name:     name,
		storage:  NewStorage(b.capacity + b.protectedCapacity),
		ids:      idgen.New(),
		asIDs:    idgen.New(),
		normal:   newRangeAllocator(0, b.capacity),
		buffers:  make(map[idgen.ID]*Buffer),
		vaBase:   b.vaBase,
		vaSize:   b.vaSize,
		pageSize: b.pageSize,
	}

	if b.protectedCapacity > 0 {
		m.protected = newRangeAllocator(b.capacity, b.protectedCapacity)
	}

	return m
}
