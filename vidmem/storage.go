// Package vidmem simulates the GPU-resident memory the graphics engine
// allocates from: a sparse physical store, buffer handles with reference
// counts, per-channel address spaces and cache maintenance.
package vidmem

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrOutOfRange is returned when an access falls outside the storage.
var ErrOutOfRange = errors.New("vidmem: access beyond storage capacity")

// A Storage keeps the bytes of the simulated video memory.
//
// The storage is managed in units, similar to pages. Units that are never
// touched by Read and Write are never allocated.
type Storage struct {
	lock     sync.Mutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4096
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the size of the storage in bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) createOrGetUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

func (s *Storage) checkRange(address, length uint64) error {
	if address+length > s.capacity || address+length < address {
		return ErrOutOfRange
	}

	return nil
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	res := make([]byte, length)
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		unit := s.createOrGetUnit(currAddr)
		baseAddr, inUnitAddr := s.parseAddress(currAddr)

		n := min(length-dataOffset, baseAddr+s.unitSize-currAddr)
		copy(res[dataOffset:dataOffset+n], unit[inUnitAddr:inUnitAddr+n])

		dataOffset += n
		currAddr += n
	}

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	if err := s.checkRange(address, uint64(len(data))); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := s.createOrGetUnit(currAddr)
		baseAddr, inUnitAddr := s.parseAddress(currAddr)

		n := min(uint64(len(data))-dataOffset, baseAddr+s.unitSize-currAddr)
		copy(unit[inUnitAddr:inUnitAddr+n], data[dataOffset:dataOffset+n])

		dataOffset += n
		currAddr += n
	}

	return nil
}

// Read32 reads a little-endian word.
func (s *Storage) Read32(address uint64) (uint32, error) {
	b, err := s.Read(address, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// Write32 writes a little-endian word.
func (s *Storage) Write32(address uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)

	return s.Write(address, b[:])
}

// Zero clears length bytes starting at address. Untouched units are left
// unallocated since they already read as zero.
func (s *Storage) Zero(address, length uint64) error {
	if err := s.checkRange(address, length); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	currAddr := address
	end := address + length

	for currAddr < end {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		n := min(end-currAddr, baseAddr+s.unitSize-currAddr)

		if unit, ok := s.data[baseAddr]; ok {
			clear(unit[inUnitAddr : inUnitAddr+n])
		}

		currAddr += n
	}

	return nil
}
