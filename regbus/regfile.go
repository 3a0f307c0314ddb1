package regbus

import (
	"sort"
	"sync"
)

// IORegion is a register range whose accesses are routed to callbacks.
// A nil onRead falls back to the latched value; a nil onWrite only latches.
type IORegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

// RegFile is a sparse register file. Registers that were never written read
// as zero. Ranges registered with MapIO get side effects.
type RegFile struct {
	mutex   sync.Mutex
	values  map[uint32]uint32
	regions []IORegion
}

// NewRegFile creates an empty RegFile.
func NewRegFile() *RegFile {
	return &RegFile{
		values: make(map[uint32]uint32),
	}
}

// MapIO registers callbacks for the inclusive range [start, end]. Later
// registrations take precedence over earlier ones when ranges overlap.
func (f *RegFile) MapIO(
	start, end uint32,
	onRead func(addr uint32) uint32,
	onWrite func(addr uint32, value uint32),
) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.regions = append([]IORegion{{
		start:   start,
		end:     end,
		onRead:  onRead,
		onWrite: onWrite,
	}}, f.regions...)
}

func (f *RegFile) findRegion(addr uint32) *IORegion {
	for i := range f.regions {
		r := &f.regions[i]
		if addr >= r.start && addr <= r.end {
			return r
		}
	}

	return nil
}

// Write32 latches value and then invokes the write callback, if any. The
// callback runs with the register file unlocked so that it can access other
// registers through Peek and Poke.
func (f *RegFile) Write32(addr uint32, value uint32) {
	f.mutex.Lock()
	f.values[addr] = value
	r := f.findRegion(addr)
	f.mutex.Unlock()

	if r != nil && r.onWrite != nil {
		r.onWrite(addr, value)
	}
}

// Read32 returns the read callback result for mapped registers, or the
// latched value.
func (f *RegFile) Read32(addr uint32) uint32 {
	f.mutex.Lock()
	r := f.findRegion(addr)
	if r == nil || r.onRead == nil {
		v := f.values[addr]
		f.mutex.Unlock()

		return v
	}
	f.mutex.Unlock()

	return r.onRead(addr)
}

// Peek returns the latched value without side effects.
func (f *RegFile) Peek(addr uint32) uint32 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.values[addr]
}

// Poke sets the latched value without side effects.
func (f *RegFile) Poke(addr uint32, value uint32) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.values[addr] = value
}

// Addresses lists every register that holds a latched value, sorted.
func (f *RegFile) Addresses() []uint32 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	addrs := make([]uint32, 0, len(f.values))
	for a := range f.values {
		addrs = append(addrs, a)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	return addrs
}

// Reset drops every latched value. Mapped regions stay.
func (f *RegFile) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.values = make(map[uint32]uint32)
}

var _ Bus = (*RegFile)(nil)
