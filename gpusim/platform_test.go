package gpusim

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/idgen"
)

// openWithin opens channels with open and fails the test if that does not
// finish in time.
func openWithin(open func() ([]*gr.Channel, error)) ([]*gr.Channel, error) {
	var (
		chs []*gr.Channel
		err error
	)

	done := make(chan struct{})
	go func() {
		defer GinkgoRecover()
		defer close(done)

		chs, err = open()
	}()

	Eventually(done).WithTimeout(5 * time.Second).Should(BeClosed())

	return chs, err
}

func openChannel(ctx context.Context, p *Platform, class uint32) (*gr.Channel, error) {
	chs, err := openWithin(func() ([]*gr.Channel, error) {
		ch, err := p.OpenChannel(ctx, class, false)
		if err != nil {
			return nil, err
		}

		return []*gr.Channel{ch}, nil
	})
	if err != nil {
		return nil, err
	}

	return chs[0], nil
}

var _ = Describe("Platform", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should refuse an invalid chip", func() {
		chip := Gk20a()
		chip.Gpcs = nil

		Expect(func() { testBuilder().WithChip(chip).Build("Device") }).To(Panic())
	})

	It("should boot and run channels", func() {
		p := testBuilder().Build("Device")
		Expect(p.Boot(ctx)).To(Succeed())

		ch, err := openChannel(ctx, p, hw.KeplerC)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Device.Fecs().Saves()).To(Equal(1))
		Expect(p.Device.Read32(hw.FecsCurrentCtx)).
			To(Equal(hw.CurrentCtx(0, false)))

		p.CloseChannel(ctx, ch)

		Expect(p.Fifo.Channels()).To(BeEmpty())
	})

	It("should fill the golden image of the first channel", func() {
		p := testBuilder().Build("Device")
		Expect(p.Boot(ctx)).To(Succeed())

		ch, err := openChannel(ctx, p, hw.KeplerC)

		Expect(err).ToNot(HaveOccurred())
		Expect(ch.Ctx().GrCtx.Read32(hw.CtxHeaderBytes)).
			To(Equal(stateWord(hw.CtxHeaderBytes)))
	})

	It("should close every channel when one fails to open", func() {
		p := testBuilder().WithNumChannels(2).Build("Device")
		Expect(p.Boot(ctx)).To(Succeed())
		baseline := p.Memory.NumBuffers()

		chs, err := openWithin(func() ([]*gr.Channel, error) {
			return p.OpenChannels(ctx, 3, hw.KeplerC)
		})

		Expect(err).To(MatchError(idgen.ErrPoolExhausted))
		Expect(chs).To(BeNil())
		Expect(p.Fifo.Channels()).To(BeEmpty())
		Expect(p.Memory.NumBuffers()).To(Equal(baseline))
	})

	It("should run the handler on interrupts", func() {
		p := testBuilder().Build("Device")
		Expect(p.Boot(ctx)).To(Succeed())
		ch, err := openChannel(ctx, p, hw.KeplerC)
		Expect(err).ToNot(HaveOccurred())

		p.Interrupt(Trap{
			Intr:  hw.GrIntrNotify,
			Class: hw.KeplerC,
			Ctx:   ChannelCtx(ch),
		})

		Expect(p.Device.PendingInterrupts()).To(BeZero())
	})

	It("should make images that fit the falcons", func() {
		chip := Gk20a()
		images := SyntheticImages(chip)

		imemWords := int(chip.ImemBlocks) * hw.FalconImemWordsPerBlock
		Expect(len(images.Fecs.Inst)).To(BeNumerically("<", imemWords))
		Expect(len(images.Gpccs.Inst)).To(BeNumerically("<", imemWords))
		Expect(images.Fecs.Data).ToNot(BeEmpty())
	})
})
