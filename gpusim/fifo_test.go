package gpusim

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/idgen"
	"github.com/sarchlab/grengine/vidmem"
)

var _ = Describe("Fifo", func() {
	var (
		mm   *vidmem.Manager
		fifo *Fifo
	)

	BeforeEach(func() {
		mm = vidmem.MakeBuilder().WithCapacity(1 << 20).Build("VidMem")
		fifo = NewFifo(mm, 2)
	})

	It("should open channels with their own instance block", func() {
		a, err := fifo.Open(false)
		Expect(err).ToNot(HaveOccurred())
		b, err := fifo.Open(true)
		Expect(err).ToNot(HaveOccurred())

		Expect(a.ID).To(Equal(0))
		Expect(b.ID).To(Equal(1))
		Expect(b.VPR).To(BeTrue())
		Expect(a.InUse()).To(BeTrue())
		Expect(a.InstBlock.Size).To(BeNumerically(">=", hw.InstBlockSize))
		Expect(a.AddressSpace()).ToNot(BeIdenticalTo(b.AddressSpace()))
		Expect(fifo.Channels()).To(Equal([]*gr.Channel{a, b}))
	})

	It("should run out of ids", func() {
		_, _ = fifo.Open(false)
		_, _ = fifo.Open(false)

		_, err := fifo.Open(false)

		Expect(err).To(MatchError(idgen.ErrPoolExhausted))
	})

	It("should reuse ids and memory of closed channels", func() {
		a, _ := fifo.Open(false)
		fifo.Close(a)

		Expect(a.InUse()).To(BeFalse())
		Expect(mm.NumBuffers()).To(BeZero())

		b, err := fifo.Open(false)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.ID).To(Equal(0))
	})

	It("should count nested activity fences", func() {
		ctx := context.Background()

		Expect(fifo.DisableEngineActivity(ctx, hw.GrEngineID)).To(Succeed())
		Expect(fifo.DisableEngineActivity(ctx, hw.GrEngineID)).To(Succeed())
		Expect(fifo.EnableEngineActivity(hw.GrEngineID)).To(Succeed())
		Expect(fifo.ActivityDisabled()).To(BeTrue())
		Expect(fifo.EnableEngineActivity(hw.GrEngineID)).To(Succeed())
		Expect(fifo.ActivityDisabled()).To(BeFalse())

		Expect(fifo.EnableEngineActivity(hw.GrEngineID)).ToNot(Succeed())
	})

	It("should record teardowns", func() {
		a, _ := fifo.Open(false)

		fifo.FreeChannel(a, false)
		fifo.DisableChannel(context.Background(), a, true)

		Expect(a.InUse()).To(BeFalse())
		Expect(fifo.TornDown()).To(Equal([]int{0}))
		Expect(fifo.Disabled()).To(Equal([]int{0}))
	})
})
