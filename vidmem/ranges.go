package vidmem

import "github.com/google/btree"

type span struct {
	start uint64
	size  uint64
}

func (s span) end() uint64 { return s.start + s.size }

func spanLess(a, b span) bool { return a.start < b.start }

// rangeAllocator hands out aligned ranges of an address range, first fit,
// coalescing neighbours on free. It is used for both physical memory and
// virtual address spaces.
type rangeAllocator struct {
	free      *btree.BTreeG[span]
	allocated map[uint64]uint64
	total     uint64
	inUse     uint64
}

func newRangeAllocator(base, size uint64) *rangeAllocator {
	a := &rangeAllocator{
		free:      btree.NewG(8, spanLess),
		allocated: make(map[uint64]uint64),
		total:     size,
	}

	if size > 0 {
		a.free.ReplaceOrInsert(span{start: base, size: size})
	}

	return a
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func (a *rangeAllocator) alloc(size, align uint64) (uint64, bool) {
	size = alignUp(size, align)

	var (
		found   span
		start   uint64
		isFound bool
	)

	a.free.Ascend(func(s span) bool {
		st := alignUp(s.start, align)
		if st+size <= s.end() && st >= s.start {
			found = s
			start = st
			isFound = true

			return false
		}

		return true
	})

	if !isFound {
		return 0, false
	}

	a.free.Delete(found)

	if start > found.start {
		a.free.ReplaceOrInsert(span{start: found.start, size: start - found.start})
	}

	if start+size < found.end() {
		a.free.ReplaceOrInsert(span{start: start + size, size: found.end() - start - size})
	}

	a.allocated[start] = size
	a.inUse += size

	return start, true
}

func (a *rangeAllocator) release(start uint64) bool {
	size, ok := a.allocated[start]
	if !ok {
		return false
	}

	delete(a.allocated, start)
	a.inUse -= size

	s := span{start: start, size: size}

	var prev span

	hasPrev := false
	a.free.DescendLessOrEqual(span{start: start}, func(p span) bool {
		prev = p
		hasPrev = true

		return false
	})

	if hasPrev && prev.end() == s.start {
		a.free.Delete(prev)
		s = span{start: prev.start, size: prev.size + s.size}
	}

	if next, ok := a.free.Get(span{start: s.end()}); ok {
		a.free.Delete(next)
		s.size += next.size
	}

	a.free.ReplaceOrInsert(s)

	return true
}

func (a *rangeAllocator) sizeOf(start uint64) (uint64, bool) {
	size, ok := a.allocated[start]
	return size, ok
}
