package gr

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/vidmem"
)

var _ = Describe("Channel TLB", func() {
	var (
		mm       *vidmem.Manager
		tlb      *channelTLB
		channels []*Channel
		scans    int
		list     func() []*Channel
	)

	ctxOf := func(ch *Channel) uint32 {
		return hw.CurrentCtx(ch.InstPtr(), true)
	}

	BeforeEach(func() {
		mm = newTestMemory()
		tlb = &channelTLB{}
		channels = []*Channel{
			newTestChannel(mm, 0),
			newTestChannel(mm, 1),
			newTestChannel(mm, 2),
		}
		scans = 0
		list = func() []*Channel {
			scans++
			return channels
		}
	})

	It("should scan the channels on a miss and not on a hit", func() {
		Expect(tlb.lookup(ctxOf(channels[1]), list)).To(BeIdenticalTo(channels[1]))
		Expect(scans).To(Equal(1))

		Expect(tlb.lookup(ctxOf(channels[1]), list)).To(BeIdenticalTo(channels[1]))
		Expect(scans).To(Equal(1))
	})

	It("should return nil for an unknown context", func() {
		Expect(tlb.lookup(hw.CurrentCtx(0x0abcdef, true), list)).To(BeNil())
		Expect(tlb.entries).To(Equal([channelTLBSize]tlbEntry{}))
	})

	It("should evict entries round robin", func() {
		tlb.lookup(ctxOf(channels[0]), list)
		tlb.lookup(ctxOf(channels[1]), list)
		tlb.lookup(ctxOf(channels[2]), list)
		Expect(scans).To(Equal(3))

		Expect(tlb.entries[0].ch).To(BeIdenticalTo(channels[2]))
		Expect(tlb.entries[1].ch).To(BeIdenticalTo(channels[1]))

		tlb.lookup(ctxOf(channels[1]), list)
		Expect(scans).To(Equal(3))

		tlb.lookup(ctxOf(channels[0]), list)
		Expect(scans).To(Equal(4))
		Expect(tlb.entries[1].ch).To(BeIdenticalTo(channels[0]))
	})

	It("should drop entries of closed channels", func() {
		tlb.lookup(ctxOf(channels[0]), list)
		channels[0].SetInUse(false)

		Expect(tlb.lookup(ctxOf(channels[0]), list)).To(BeNil())
		Expect(scans).To(Equal(2))
		Expect(tlb.entries[0]).To(Equal(tlbEntry{}))
	})

	It("should forget everything on flush", func() {
		tlb.lookup(ctxOf(channels[0]), list)
		tlb.flush()

		tlb.lookup(ctxOf(channels[0]), list)
		Expect(scans).To(Equal(2))
	})
})
