package regbus

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RegFile", func() {
	var f *RegFile

	BeforeEach(func() {
		f = NewRegFile()
	})

	It("should read zero from untouched registers", func() {
		Expect(f.Read32(0x1000)).To(Equal(uint32(0)))
	})

	It("should latch writes", func() {
		f.Write32(0x1000, 0xdead)
		Expect(f.Read32(0x1000)).To(Equal(uint32(0xdead)))
		Expect(f.Addresses()).To(Equal([]uint32{0x1000}))
	})

	It("should route mapped registers to callbacks", func() {
		var written []uint32
		f.MapIO(0x2000, 0x2004,
			func(addr uint32) uint32 { return addr + 1 },
			func(_ uint32, v uint32) { written = append(written, v) })

		f.Write32(0x2004, 7)

		Expect(f.Read32(0x2000)).To(Equal(uint32(0x2001)))
		Expect(f.Peek(0x2004)).To(Equal(uint32(7)))
		Expect(written).To(Equal([]uint32{7}))
	})

	It("should let a write callback touch other registers", func() {
		f.MapIO(0x3000, 0x3000, nil, func(_ uint32, v uint32) {
			f.Poke(0x3004, v*2)
		})

		f.Write32(0x3000, 21)

		Expect(f.Read32(0x3004)).To(Equal(uint32(42)))
	})

	It("should modify only masked bits", func() {
		f.Write32(0x10, 0xff00ff00)

		Modify(f, 0x10, 0x0000ffff, 0x12345678)

		Expect(f.Read32(0x10)).To(Equal(uint32(0xff005678)))
	})
})

var _ = Describe("HookedBus", func() {
	var (
		f   *RegFile
		bus *HookedBus
		log *AccessLog
	)

	BeforeEach(func() {
		f = NewRegFile()
		bus = NewHookedBus(f)
		log = NewAccessLog()
		bus.AcceptHook(log)
	})

	It("should report reads and writes in order", func() {
		bus.Write32(0x40, 1)
		bus.Read32(0x40)
		bus.Write32(0x44, 2)

		Expect(log.Entries()).To(Equal([]Access{
			{Kind: AccessWrite, Addr: 0x40, Value: 1},
			{Kind: AccessRead, Addr: 0x40, Value: 1},
			{Kind: AccessWrite, Addr: 0x44, Value: 2},
		}))
		Expect(log.Writes(0x40)).To(Equal([]uint32{1}))
	})

	It("should apply the filter", func() {
		writes := NewFilteredAccessLog(func(a Access) bool {
			return a.Kind == AccessWrite
		})
		bus.AcceptHook(writes)

		bus.Read32(0x40)
		bus.Write32(0x40, 3)

		Expect(writes.Entries()).To(HaveLen(1))
		writes.Clear()
		Expect(writes.Entries()).To(BeEmpty())
	})

	It("should expose the wrapped bus", func() {
		Expect(bus.Inner()).To(BeIdenticalTo(f))
	})
})
