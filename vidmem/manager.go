package vidmem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/grengine/idgen"
)

// ErrOutOfMemory is returned when an allocation cannot be satisfied.
var ErrOutOfMemory = errors.New("vidmem: out of memory")

// ErrNoProtectedRegion is returned by AllocProtected when the device has no
// video protected region.
var ErrNoProtectedRegion = errors.New("vidmem: no protected region")

// CacheStats counts cache maintenance requests.
type CacheStats struct {
	L2Flushes     uint64
	L2Invalidates uint64
	FBFlushes     uint64
}

// Manager owns the simulated video memory.
type Manager struct {
	name    string
	storage *Storage
	ids     idgen.Generator
	asIDs   idgen.Generator

	lock      sync.Mutex
	normal    *rangeAllocator
	protected *rangeAllocator
	buffers   map[idgen.ID]*Buffer
	vaBase    uint64
	vaSize    uint64
	pageSize  uint64

	l2Flushes     atomic.Uint64
	l2Invalidates atomic.Uint64
	fbFlushes     atomic.Uint64
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// Alloc allocates a zeroed buffer of at least size bytes.
func (m *Manager) Alloc(size uint64) (*Buffer, error) {
	return m.alloc(m.normal, size, false)
}

// AllocProtected allocates a zeroed buffer from the video protected region.
func (m *Manager) AllocProtected(size uint64) (*Buffer, error) {
	if m.protected == nil {
		return nil, ErrNoProtectedRegion
	}

	return m.alloc(m.protected, size, true)
}

func (m *Manager) alloc(a *rangeAllocator, size uint64, protected bool) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("vidmem: zero sized allocation")
	}

	m.lock.Lock()
	addr, ok := a.alloc(size, m.pageSize)
	allocated, _ := a.sizeOf(addr)
	m.lock.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %#x bytes", ErrOutOfMemory, size)
	}

	buf := &Buffer{
		ID:        m.ids.Generate(),
		PhysAddr:  addr,
		Size:      allocated,
		Protected: protected,
		storage:   m.storage,
	}
	buf.refs.Store(1)
	buf.Zero()

	m.lock.Lock()
	m.buffers[buf.ID] = buf
	m.lock.Unlock()

	return buf, nil
}

// Put drops one reference to buf and releases its memory when none remain.
func (m *Manager) Put(buf *Buffer) {
	if buf == nil {
		return
	}

	refs := buf.refs.Add(-1)
	if refs > 0 {
		return
	}

	if refs < 0 {
		panic(fmt.Sprintf("vidmem: buffer %d put more than it was taken", buf.ID))
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	a := m.normal
	if buf.Protected {
		a = m.protected
	}

	a.release(buf.PhysAddr)
	delete(m.buffers, buf.ID)
}

// NewAddressSpace creates an empty GPU virtual address space.
func (m *Manager) NewAddressSpace() *AddressSpace {
	return newAddressSpace(m.asIDs.Generate(), m.vaBase, m.vaSize, m.pageSize)
}

// Map maps buf into as and returns its GPU virtual address. The mapping
// holds a reference to buf until it is unmapped.
func (m *Manager) Map(as *AddressSpace, buf *Buffer, cached bool) (uint64, error) {
	va, err := as.mapBuffer(buf, cached)
	if err != nil {
		return 0, err
	}

	buf.Get()

	return va, nil
}

// Unmap removes the mapping at va from as.
func (m *Manager) Unmap(as *AddressSpace, va uint64) error {
	mapping, err := as.unmap(va)
	if err != nil {
		return err
	}

	m.Put(mapping.Buffer)

	return nil
}

// DeviceAddr returns the address the engine uses to reach buf without
// translation.
func (m *Manager) DeviceAddr(buf *Buffer) uint64 {
	return buf.PhysAddr
}

// FlushL2 writes back dirty L2 lines, optionally invalidating them.
func (m *Manager) FlushL2(invalidate bool) {
	m.l2Flushes.Add(1)

	if invalidate {
		m.l2Invalidates.Add(1)
	}
}

// InvalidateL2 drops clean L2 lines.
func (m *Manager) InvalidateL2() {
	m.l2Invalidates.Add(1)
}

// FlushFB flushes the frame buffer write path.
func (m *Manager) FlushFB() {
	m.fbFlushes.Add(1)
}

// CacheStats returns the number of cache maintenance requests so far.
func (m *Manager) CacheStats() CacheStats {
	return CacheStats{
		L2Flushes:     m.l2Flushes.Load(),
		L2Invalidates: m.l2Invalidates.Load(),
		FBFlushes:     m.fbFlushes.Load(),
	}
}

// NumBuffers returns the number of live buffers.
func (m *Manager) NumBuffers() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.buffers)
}

// BytesInUse returns the number of bytes allocated from the normal and the
// protected regions.
func (m *Manager) BytesInUse() (normal, protected uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	normal = m.normal.inUse
	if m.protected != nil {
		protected = m.protected.inUse
	}

	return normal, protected
}

// Storage returns the backing storage.
func (m *Manager) Storage() *Storage {
	return m.storage
}
