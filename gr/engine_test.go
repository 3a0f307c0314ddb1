package gr_test

import (
	"context"
	"io"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
)

func newPlatform() *gpusim.Platform {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return gpusim.MakeBuilder().
		WithLogger(logger).
		WithPollConfig(poll.Config{
			Timeout:  20 * time.Millisecond,
			MinDelay: time.Microsecond,
			MaxDelay: 50 * time.Microsecond,
		}).
		Build("Device")
}

// within runs open and fails the test if it does not return in time.
func within[T any](open func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)

	done := make(chan struct{})
	go func() {
		defer GinkgoRecover()
		defer close(done)

		v, err = open()
	}()

	Eventually(done).WithTimeout(5 * time.Second).Should(BeClosed())

	return v, err
}

func openChannel(
	ctx context.Context,
	p *gpusim.Platform,
	class uint32,
	vpr bool,
) (*gr.Channel, error) {
	return within(func() (*gr.Channel, error) {
		return p.OpenChannel(ctx, class, vpr)
	})
}

func openChannels(
	ctx context.Context,
	p *gpusim.Platform,
	n int,
	class uint32,
) ([]*gr.Channel, error) {
	return within(func() ([]*gr.Channel, error) {
		return p.OpenChannels(ctx, n, class)
	})
}

// isrRecorder keeps the reports of every interrupt.
type isrRecorder struct {
	lock    sync.Mutex
	reports []gr.IsrReport
}

func (r *isrRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != gr.HookPosInterrupt {
		return
	}

	r.lock.Lock()
	r.reports = append(r.reports, ctx.Detail.(gr.IsrReport))
	r.lock.Unlock()
}

func (r *isrRecorder) last() gr.IsrReport {
	r.lock.Lock()
	defer r.lock.Unlock()

	Expect(r.reports).ToNot(BeEmpty())

	return r.reports[len(r.reports)-1]
}

var _ = Describe("Engine", func() {
	var (
		p   *gpusim.Platform
		ctx context.Context
	)

	BeforeEach(func() {
		p = newPlatform()
		ctx = context.Background()
	})

	Context("when booting", func() {
		It("should discover the chip and load the firmware", func() {
			Expect(p.Boot(ctx)).To(Succeed())

			Expect(p.Engine.Ready()).To(BeTrue())
			Expect(p.Device.Fecs().Started()).To(BeTrue())

			topo := p.Engine.Topology()
			Expect(topo.GpcCount).To(Equal(1))
			Expect(topo.TpcCount).To(Equal(1))
			Expect(p.Engine.TileMap().Tiles).To(Equal([]uint8{0}))

			s := p.Engine.Snapshot()
			Expect(s.Ready).To(BeTrue())
			Expect(s.GoldenImageSize).To(Equal(uint32(0x8000)))
			Expect(s.ZcullImageSize).To(Equal(uint32(0x1000)))
			Expect(s.GoldenCaptured).To(BeFalse())
			Expect(s.ComptagLines).ToNot(BeZero())
			Expect(s.ZbcColors).To(HaveLen(4))
			Expect(s.ZbcDepths).To(HaveLen(2))
			Expect(s.IsrState).To(Equal("idle"))

			Expect(p.Fifo.ActivityDisabled()).To(BeFalse())
			Expect(p.Device.Peek(hw.GrIntrEn)).To(Equal(^uint32(0)))
		})

		It("should time out when the firmware never answers", func() {
			p.Device.Fecs().Hang(hw.MethodDiscoverImageSize)

			err := p.Boot(ctx)

			Expect(err).To(MatchError(gr.ErrHardwareTimeout))
			Expect(p.Engine.Ready()).To(BeFalse())
		})

		It("should report a dead bus", func() {
			p.Device.Poke(hw.RingEnumGpc, 0xffffffff)

			Expect(p.Boot(ctx)).To(MatchError(gr.ErrHardwareNotResponding))
		})
	})

	Context("after booting", func() {
		BeforeEach(func() {
			Expect(p.Boot(ctx)).To(Succeed())
		})

		It("should open the first channel while the golden image is saved", func() {
			ch, err := openChannel(ctx, p, hw.KeplerC, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(p.Device.Fecs().Saves()).To(Equal(1))
			Expect(ch.Ctx().GrCtx.Read32(hw.CtxHeaderBytes)).ToNot(BeZero())
		})

		It("should capture the golden image once", func() {
			first, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())
			second, err := openChannel(ctx, p, hw.KeplerComputeA, false)
			Expect(err).ToNot(HaveOccurred())

			Expect(p.Device.Fecs().Saves()).To(Equal(1))
			Expect(p.Engine.Snapshot().GoldenCaptures).To(Equal(1))

			a := first.Ctx()
			b := second.Ctx()
			Expect(a.NumObjects).To(Equal(1))
			Expect(a.FirstInit).To(BeTrue())
			Expect(a.GlobalMapped).To(BeTrue())
			Expect(a.GrCtx.Read32(hw.CtxPatchAdrLo)).To(Equal(uint32(a.Patch.VA)))
			Expect(a.GrCtx.Read32(0x1000)).ToNot(BeZero())

			for off := uint64(0); off < 0x8000; off += 4 {
				switch off {
				case hw.CtxPatchCount, hw.CtxPatchAdrLo, hw.CtxPatchAdrHi:
					continue
				}

				Expect(b.GrCtx.Read32(off)).To(Equal(a.GrCtx.Read32(off)),
					"word at %#x", off)
			}
		})

		It("should capture once when channels race", func() {
			chs, err := openChannels(ctx, p, 8, hw.KeplerC)

			Expect(err).ToNot(HaveOccurred())
			Expect(chs).To(HaveLen(8))
			Expect(p.Device.Fecs().Saves()).To(Equal(1))

			golden := chs[0].Ctx().GrCtx
			for _, ch := range chs[1:] {
				c := ch.Ctx()
				Expect(c.GrCtx.Read32(hw.CtxZcull)).
					To(Equal(golden.Read32(hw.CtxZcull)))
				Expect(c.GrCtx.ReadBytes(hw.CtxHeaderBytes, 0x8000-hw.CtxHeaderBytes)).
					To(Equal(golden.ReadBytes(hw.CtxHeaderBytes, 0x8000-hw.CtxHeaderBytes)))
			}
		})

		It("should serialize firmware requests", func() {
			fecsRegs := map[uint32]bool{
				hw.FecsMailboxClear(0): true,
				hw.FecsMethodData:      true,
				hw.FecsMethodPush:      true,
			}
			log := regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
				return a.Kind == regbus.AccessWrite && fecsRegs[a.Addr]
			})
			p.Bus.AcceptHook(log)

			_, err := openChannels(ctx, p, 4, hw.KeplerC)
			Expect(err).ToNot(HaveOccurred())

			entries := log.Entries()
			Expect(entries).To(HaveLen(6))
			for i := 0; i < len(entries); i += 3 {
				Expect(entries[i].Addr).To(Equal(uint32(hw.FecsMailboxClear(0))))
				Expect(entries[i+1].Addr).To(Equal(uint32(hw.FecsMethodData)))
				Expect(entries[i+2].Addr).To(Equal(uint32(hw.FecsMethodPush)))
			}
			Expect(entries[2].Value).To(Equal(uint32(hw.MethodBindPointer)))
			Expect(entries[5].Value).To(Equal(uint32(hw.MethodWfiGoldenSave)))
		})

		It("should let a later channel capture after a failed save", func() {
			p.Device.Fecs().Fail(hw.MethodWfiGoldenSave)

			_, err := openChannel(ctx, p, hw.KeplerC, false)

			Expect(err).To(MatchError(gr.ErrProtocolViolation))
			Expect(p.Engine.Snapshot().GoldenCaptured).To(BeFalse())
			Expect(p.Fifo.Channels()).To(BeEmpty())

			p.Device.Fecs().Heal()

			_, err = openChannel(ctx, p, hw.KeplerC, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(p.Device.Fecs().Saves()).To(Equal(1))
		})

		It("should reject unknown classes", func() {
			ch, err := p.Fifo.Open(false)
			Expect(err).ToNot(HaveOccurred())

			err = p.Engine.AllocObjCtx(ctx, ch, 0x1234)

			Expect(err).To(MatchError(gr.ErrInvalidArgument))
			Expect(ch.Ctx().GrCtx).To(BeNil())
		})

		It("should give back every buffer of a closed channel", func() {
			ch, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())
			before := p.Memory.NumBuffers()

			other, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())
			p.CloseChannel(ctx, other)

			Expect(p.Memory.NumBuffers()).To(Equal(before))
			Expect(p.Fifo.Disabled()).To(ContainElement(other.ID))
			Expect(ch.InUse()).To(BeTrue())
		})

		It("should keep the context until the last object goes", func() {
			ch, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Engine.AllocObjCtx(ctx, ch, hw.FermiTwodA)).To(Succeed())
			Expect(ch.Ctx().NumObjects).To(Equal(2))

			p.Engine.FreeObjCtx(ctx, ch)
			Expect(ch.Ctx().Patch.VA).ToNot(BeZero())
			Expect(p.Fifo.Disabled()).To(BeEmpty())

			p.Engine.FreeObjCtx(ctx, ch)
			c := ch.Ctx()
			Expect(c.NumObjects).To(BeZero())
			Expect(c.Patch.VA).To(BeZero())
			Expect(c.GrCtx).ToNot(BeNil())
			Expect(p.Fifo.Disabled()).To(Equal([]int{ch.ID}))
		})

		It("should bind a separate zcull buffer", func() {
			ch, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())

			err = p.Engine.BindCtxswZcull(ctx, ch, 0, gr.ZcullModeSeparate)
			Expect(err).To(MatchError(gr.ErrInvalidArgument))

			err = p.Engine.BindCtxswZcull(ctx, ch, 0x12345000, gr.ZcullModeSeparate)
			Expect(err).ToNot(HaveOccurred())
			Expect(ch.Ctx().GrCtx.Read32(hw.CtxZcull)).
				To(Equal(uint32(gr.ZcullModeSeparate)))
			Expect(p.Fifo.ActivityDisabled()).To(BeFalse())
		})

		It("should size zcull from the topology", func() {
			info := p.Engine.ZcullInfo()

			Expect(info.WidthAlignPixels).To(Equal(uint32(16)))
			Expect(info.HeightAlignPixels).To(Equal(uint32(32)))
			Expect(info.SubregionCount).To(Equal(uint32(hw.ZcullSubregionQty)))
		})

		It("should program the tile map", func() {
			Expect(p.Device.Peek(hw.GrCrstrMapTableCfg)).
				To(Equal(hw.MapTableCfg(1, 1)))
		})

		It("should clear compression tags", func() {
			Expect(p.Engine.ClearComptags(ctx, 0, 100)).To(Succeed())
			Expect(p.Device.ComptagClears()).To(Equal(1))

			err := p.Engine.ClearComptags(ctx, 10, 5)
			Expect(err).To(MatchError(gr.ErrInvalidArgument))
			Expect(p.Device.ComptagClears()).To(Equal(1))
		})

		It("should share zbc entries with the defaults", func() {
			idx, err := p.Engine.AddZbc(ctx, gr.ZbcEntry{
				Type:   gr.ZbcDepth,
				Format: hw.ZbcZFmtFp32,
				Depth:  0x3f800000,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(idx).To(Equal(1))

			r, err := p.Engine.QueryZbc(gr.ZbcDepth, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.RefCount).To(Equal(2))
		})

		It("should capture again after a reset", func() {
			_, err := openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())

			Expect(p.Engine.Reset(ctx)).To(Succeed())
			Expect(p.Engine.Snapshot().GoldenCaptured).To(BeFalse())

			_, err = openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Device.Fecs().Saves()).To(Equal(2))
		})

		It("should mask interrupts on suspend", func() {
			Expect(p.Engine.Suspend(ctx)).To(Succeed())

			Expect(p.Device.Peek(hw.GrIntrEn)).To(BeZero())
			Expect(p.Device.Peek(hw.GrGpfifoCtl)).To(BeZero())
		})

		It("should not suspend a busy engine", func() {
			p.Device.SetEngineBusy(true)

			Expect(p.Engine.Suspend(ctx)).To(MatchError(gr.ErrHardwareTimeout))
		})
	})

	Context("when interrupted", func() {
		var (
			ch  *gr.Channel
			rec *isrRecorder
		)

		BeforeEach(func() {
			Expect(p.Boot(ctx)).To(Succeed())

			var err error
			ch, err = openChannel(ctx, p, hw.KeplerC, false)
			Expect(err).ToNot(HaveOccurred())

			rec = &isrRecorder{}
			p.Engine.AcceptHook(rec)
		})

		It("should wake notify waiters", func() {
			wait := ch.NotifyWait()

			p.Interrupt(gpusim.Trap{
				Intr:  hw.GrIntrNotify,
				Class: hw.KeplerC,
				Ctx:   gpusim.ChannelCtx(ch),
			})

			Eventually(wait).Should(BeClosed())
			Expect(p.Device.PendingInterrupts()).To(BeZero())

			r := rec.last()
			Expect(r.ChannelID).To(Equal(ch.ID))
			Expect(r.Unhandled).To(BeZero())
			Expect(r.Err).ToNot(HaveOccurred())
		})

		It("should emulate software methods", func() {
			p.Device.Poke(hw.GrGpcsTpcsSmHwwWarpEsrReportMask, 0x55)

			p.Interrupt(gpusim.Trap{
				Intr:   hw.GrIntrIllegalMethod,
				Class:  hw.KeplerC,
				Method: hw.MethodSetShaderExceptions,
				Ctx:    gpusim.ChannelCtx(ch),
			})

			Expect(p.Device.Peek(hw.GrGpcsTpcsSmHwwWarpEsrReportMask)).To(BeZero())

			r := rec.last()
			Expect(r.Reset).To(BeFalse())
			Expect(r.TornDown).To(BeFalse())
			Expect(ch.InUse()).To(BeTrue())
		})

		It("should tear down a channel using an illegal class", func() {
			p.Interrupt(gpusim.Trap{
				Intr:  hw.GrIntrIllegalClass,
				Class: 0x1234,
				Ctx:   gpusim.ChannelCtx(ch),
			})

			r := rec.last()
			Expect(r.Reset).To(BeTrue())
			Expect(r.TornDown).To(BeTrue())
			Expect(r.Err).To(MatchError(gr.ErrInvalidArgument))

			Expect(p.Fifo.TornDown()).To(Equal([]int{ch.ID}))
			Expect(ch.InUse()).To(BeFalse())
			Expect(p.Device.Peek(hw.PbdmaMethod0(0))).To(Equal(uint32(hw.PbdmaUdmaNop)))
			Expect(p.Engine.IsrState()).To(Equal(gr.IsrIdle))
			Expect(p.Device.PendingInterrupts()).To(BeZero())
		})

		It("should tear down a channel on an unknown method", func() {
			p.Interrupt(gpusim.Trap{
				Intr:   hw.GrIntrIllegalMethod,
				Class:  hw.KeplerC,
				Method: 0x0100,
				Ctx:    gpusim.ChannelCtx(ch),
			})

			r := rec.last()
			Expect(r.Reset).To(BeTrue())
			Expect(r.Err).To(MatchError(gr.ErrInvalidArgument))
			Expect(p.Fifo.TornDown()).To(Equal([]int{ch.ID}))
		})

		It("should report a class error as a protocol violation", func() {
			p.Interrupt(gpusim.Trap{
				Intr:  hw.GrIntrClassError,
				Class: hw.KeplerC,
				Ctx:   gpusim.ChannelCtx(ch),
			})

			Expect(rec.last().Err).To(MatchError(gr.ErrProtocolViolation))
		})

		It("should leave interrupts of unknown contexts pending", func() {
			intr := uint32(hw.GrIntrNotify | hw.GrIntrIllegalClass)

			p.Interrupt(gpusim.Trap{
				Intr:  intr,
				Class: hw.KeplerC,
				Ctx:   hw.CurrentCtx(0x0ffff, true),
			})

			r := rec.last()
			Expect(r.ChannelID).To(Equal(-1))
			Expect(r.Unhandled).To(Equal(intr))
			Expect(p.Device.PendingInterrupts()).To(Equal(intr))
			Expect(p.Fifo.TornDown()).To(BeEmpty())
		})

		It("should not report when nothing is pending", func() {
			p.Engine.ISR()

			Expect(rec.reports).To(BeEmpty())
		})
	})
})
