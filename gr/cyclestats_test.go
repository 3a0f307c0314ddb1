package gr

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

type cyclestatsBuilder struct {
	buf []byte
	off int
}

func (b *cyclestatsBuilder) put(field int, v uint32) {
	binary.LittleEndian.PutUint32(b.buf[b.off+field:], v)
}

func (b *cyclestatsBuilder) access(op, reg, first, last, data uint32) int {
	at := b.off
	b.put(hw.CycleStatsHeader, hw.CycleStatsHeaderWord(op, hw.CycleStatsElemBytes))
	b.put(hw.CycleStatsOffset, reg)
	b.put(hw.CycleStatsBits, hw.CycleStatsBitsWord(first, last))
	b.put(hw.CycleStatsData, data)
	b.off += hw.CycleStatsElemBytes

	return at
}

func (b *cyclestatsBuilder) end() int {
	at := b.off
	b.put(hw.CycleStatsHeader, hw.CycleStatsHeaderWord(hw.CycleStatsOpEnd, hw.CycleStatsHdrBytes))

	return at
}

func cyclestatsWord(buf []byte, at, field int) uint32 {
	return binary.LittleEndian.Uint32(buf[at+field:])
}

var _ = Describe("Cycle stats", func() {
	var (
		mockCtrl *gomock.Controller
		regs     *regbus.RegFile
		e        *Engine
		ch       *Channel
		b        *cyclestatsBuilder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		regs = regbus.NewRegFile()
		regs.Poke(0x100, 0xabcd1234)

		features := DefaultFeatures()
		features.Cyclestats = true

		e = MakeBuilder().
			WithBus(regs).
			WithMemory(newTestMemory()).
			WithScheduler(NewMockScheduler(mockCtrl)).
			WithLogger(quietLogger()).
			WithFeatures(features).
			Build("GR")

		ch = NewChannel(0, nil, false)
		b = &cyclestatsBuilder{buf: make([]byte, 0x100), off: 0x20}
		ch.AttachCycleStats(b.buf)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should run peeks and pokes up to the end element", func() {
		peek := b.access(hw.CycleStatsOpBar0Read32, 0x100, 4, 11, 0)
		b.access(hw.CycleStatsOpBar0Write32, 0x104, 0, 31, 0xcafe)
		b.access(hw.CycleStatsOpBar0Write32, 0x100, 8, 15, 0x5a)
		end := b.end()

		n := e.runCycleStats(ch, 0x20)

		Expect(n).To(Equal(3))
		Expect(cyclestatsWord(b.buf, peek, hw.CycleStatsData)).To(Equal(uint32(0x23)))
		Expect(regs.Peek(0x104)).To(Equal(uint32(0xcafe)))
		Expect(regs.Peek(0x100)).To(Equal(uint32(0xabcd5a34)))
		Expect(cyclestatsWord(b.buf, peek, hw.CycleStatsCompleted)).To(Equal(uint32(1)))
		Expect(cyclestatsWord(b.buf, end, hw.CycleStatsCompleted)).To(Equal(uint32(1)))
	})

	It("should fail malformed elements and go on", func() {
		unaligned := b.access(hw.CycleStatsOpBar0Read32, 0x102, 0, 31, 0)
		outside := b.access(hw.CycleStatsOpBar0Write32, hw.Bar0Size, 0, 31, 1)
		reversed := b.access(hw.CycleStatsOpBar0Read32, 0x100, 9, 3, 0)
		good := b.access(hw.CycleStatsOpBar0Read32, 0x100, 0, 31, 0)
		b.end()

		n := e.runCycleStats(ch, 0x20)

		Expect(n).To(Equal(1))
		for _, at := range []int{unaligned, outside, reversed} {
			Expect(cyclestatsWord(b.buf, at, hw.CycleStatsFailed)).To(Equal(uint32(1)))
			Expect(cyclestatsWord(b.buf, at, hw.CycleStatsCompleted)).To(Equal(uint32(1)))
		}
		Expect(cyclestatsWord(b.buf, good, hw.CycleStatsFailed)).To(BeZero())
		Expect(cyclestatsWord(b.buf, good, hw.CycleStatsData)).To(Equal(uint32(0xabcd1234)))
	})

	It("should stop at the end of the buffer", func() {
		b.off = 0x100 - hw.CycleStatsElemBytes
		b.access(hw.CycleStatsOpBar0Read32, 0x100, 0, 31, 0)

		Expect(e.runCycleStats(ch, 0x100-hw.CycleStatsElemBytes)).To(Equal(1))
		Expect(e.runCycleStats(ch, 0x200)).To(BeZero())
	})

	It("should do nothing unless enabled", func() {
		e.features.Cyclestats = false
		b.access(hw.CycleStatsOpBar0Write32, 0x104, 0, 31, 0xcafe)
		b.end()

		Expect(e.runCycleStats(ch, 0x20)).To(BeZero())
		Expect(regs.Peek(0x104)).To(BeZero())
		Expect(cyclestatsWord(b.buf, 0x20, hw.CycleStatsCompleted)).To(BeZero())
	})

	It("should do nothing without a buffer", func() {
		ch.DetachCycleStats()

		Expect(e.runCycleStats(ch, 0x20)).To(BeZero())
	})
})
