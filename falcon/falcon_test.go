package falcon

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
)

func testPollConfig() poll.Config {
	return poll.Config{
		Timeout:  100 * time.Millisecond,
		MinDelay: time.Microsecond,
		MaxDelay: 50 * time.Microsecond,
	}
}

var _ = Describe("Falcon", func() {
	var (
		regs   *regbus.RegFile
		bus    *regbus.HookedBus
		log    *regbus.AccessLog
		falcon *Falcon
	)

	BeforeEach(func() {
		regs = regbus.NewRegFile()
		regs.Poke(hw.GpccsBase+hw.FalconHwcfg, hw.Hwcfg(4, 4))
		bus = regbus.NewHookedBus(regs)
		log = regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			return a.Kind == regbus.AccessWrite
		})
		bus.AcceptHook(log)
		falcon = New("GPCCS", hw.GpccsBase, bus)
	})

	It("should load data memory with auto increment", func() {
		falcon.LoadDMEM([]uint32{1, 2, 3})

		Expect(log.Writes(hw.GpccsBase + hw.FalconDmemc)).To(Equal(
			[]uint32{hw.FalconMemc(0, 0, hw.FalconMemcAutoIncWrite)}))
		Expect(log.Writes(hw.GpccsBase + hw.FalconDmemd)).To(Equal(
			[]uint32{1, 2, 3}))
	})

	It("should tag every block and pad the tail", func() {
		code := make([]uint32, 70)
		for i := range code {
			code[i] = uint32(i + 1)
		}

		falcon.LoadIMEM(code)

		Expect(log.Writes(hw.GpccsBase + hw.FalconImemt)).To(Equal(
			[]uint32{0, 1, 2}))

		data := log.Writes(hw.GpccsBase + hw.FalconImemd)
		Expect(data).To(HaveLen(70 + (768-280)/4))
		Expect(data[:70]).To(Equal(code))
		for _, w := range data[70:] {
			Expect(w).To(BeZero())
		}
	})

	It("should not pad past the end of instruction memory", func() {
		regs.Poke(hw.GpccsBase+hw.FalconHwcfg, hw.Hwcfg(1, 1))

		falcon.LoadIMEM(make([]uint32, 60))

		Expect(log.Writes(hw.GpccsBase + hw.FalconImemd)).To(HaveLen(64))
		Expect(log.Writes(hw.GpccsBase + hw.FalconImemt)).To(Equal([]uint32{0}))
	})
})

var _ = Describe("Predicate", func() {
	DescribeTable("match",
		func(p Predicate, v uint32, expected bool) {
			Expect(p.Match(v)).To(Equal(expected))
		},
		Entry("equal", Eq(3), uint32(3), true),
		Entry("equal miss", Eq(3), uint32(4), false),
		Entry("not equal", Ne(0), uint32(4), true),
		Entry("and", BitAnd(0x10), uint32(0x30), true),
		Entry("and miss", BitAnd(0x10), uint32(0x20), false),
		Entry("less", Lt(5), uint32(4), true),
		Entry("less equal", Le(5), uint32(5), true),
		Entry("skip", NoCheck(), uint32(0), false),
	)
})

var _ = Describe("Submitter", func() {
	var (
		regs *regbus.RegFile
		bus  *regbus.HookedBus
		fecs *fakeFecs
		s    *Submitter
	)

	BeforeEach(func() {
		regs = regbus.NewRegFile()
		fecs = newFakeFecs(regs)
		bus = regbus.NewHookedBus(regs)
		s = NewSubmitter(bus, testPollConfig())
	})

	It("should write the optional mailbox before issuing the method", func() {
		log := regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			return a.Kind == regbus.AccessWrite
		})
		bus.AcceptHook(log)

		_, err := s.Submit(context.Background(), Method{
			Name:         "bind",
			MailboxID:    4,
			MailboxData:  0xabc,
			MailboxClear: 0x30,
			Data:         0x1234,
			Addr:         hw.MethodBindPointer,
			Ok:           BitAnd(hw.CtxswMailboxValuePass),
			Fail:         BitAnd(hw.CtxswMailboxValueFail),
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(log.Entries()).To(Equal([]regbus.Access{
			{Kind: regbus.AccessWrite, Addr: hw.FecsMailbox(4), Value: 0xabc},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMailboxClear(0), Value: 0x30},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMethodData, Value: 0x1234},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMethodPush, Value: hw.MethodBindPointer},
		}))
	})

	It("should return the mailbox value", func() {
		fecs.respond = func(uint32, uint32) uint32 { return 0x4000 }

		v, err := s.Submit(context.Background(), Method{
			MailboxClear: ^uint32(0),
			Addr:         hw.MethodDiscoverImageSize,
			Ok:           Ne(0),
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint32(0x4000)))
	})

	It("should report failure", func() {
		fecs.respond = func(uint32, uint32) uint32 { return hw.CtxswMailboxValueFail }

		_, err := s.Submit(context.Background(), Method{
			Name:         "save",
			MailboxClear: 3,
			Addr:         hw.MethodWfiGoldenSave,
			Ok:           BitAnd(1),
			Fail:         BitAnd(2),
		})

		Expect(err).To(MatchError(ErrFailed))
		Expect(err.Error()).To(ContainSubstring("save"))
	})

	It("should time out", func() {
		fecs.respond = func(uint32, uint32) uint32 { return 0 }

		_, err := s.Submit(context.Background(), Method{
			MailboxClear: ^uint32(0),
			Addr:         hw.MethodDiscoverImageSize,
			Ok:           Ne(0),
		})

		Expect(err).To(MatchError(ErrTimeout))
	})

	It("should never interleave two submissions", func() {
		log := regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			switch a.Addr {
			case hw.FecsMailboxClear(0), hw.FecsMethodData,
				hw.FecsMethodPush, hw.FecsMailbox(0):
				return true
			}

			return false
		})
		bus.AcceptHook(log)

		g, ctx := errgroup.WithContext(context.Background())
		for i := 0; i < 8; i++ {
			data := uint32(i)
			g.Go(func() error {
				_, err := s.Submit(ctx, Method{
					MailboxClear: ^uint32(0),
					Data:         data,
					Addr:         hw.MethodBindPointer,
					Ok:           Eq(hw.CtxswMailboxValuePass),
				})

				return err
			})
		}
		Expect(g.Wait()).To(Succeed())

		inFlight := false
		pushes := 0
		for _, a := range log.Entries() {
			switch {
			case a.Kind == regbus.AccessWrite && a.Addr == hw.FecsMethodPush:
				Expect(inFlight).To(BeFalse())
				inFlight = true
				pushes++
			case a.Kind == regbus.AccessWrite:
				Expect(inFlight).To(BeFalse())
			case a.Addr == hw.FecsMailbox(0) && a.Value == hw.CtxswMailboxValuePass:
				inFlight = false
			}
		}
		Expect(pushes).To(Equal(8))
	})

	It("should fire the command hook", func() {
		var results []CommandResult
		s.AcceptHook(hookFunc(func(r CommandResult) { results = append(results, r) }))

		_, err := s.Submit(context.Background(), Method{
			MailboxClear: ^uint32(0),
			Addr:         hw.MethodBindPointer,
			Ok:           Eq(1),
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Mailbox).To(Equal(uint32(1)))
	})
})

var _ = Describe("Pair", func() {
	It("should bootstrap and program the watchdog", func() {
		regs := regbus.NewRegFile()
		regs.Poke(hw.FecsBase+hw.FalconHwcfg, hw.Hwcfg(2, 2))
		regs.Poke(hw.GpccsBase+hw.FalconHwcfg, hw.Hwcfg(2, 2))
		newFakeFecs(regs)

		bus := regbus.NewHookedBus(regs)
		log := regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			return a.Kind == regbus.AccessWrite
		})
		bus.AcceptHook(log)

		s := NewSubmitter(bus, testPollConfig())
		pair := NewPair(bus)

		err := pair.Bootstrap(context.Background(), s, Images{
			Fecs:  Image{Inst: []uint32{1}, Data: []uint32{2}},
			Gpccs: Image{Inst: []uint32{3}, Data: []uint32{4}},
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(log.Writes(hw.GpccsBase + hw.FalconCpuctl)).To(HaveLen(1))
		Expect(log.Writes(hw.FecsMethodData)).To(Equal([]uint32{WatchdogTimeout}))
		Expect(log.Writes(hw.FecsMethodPush)).To(Equal(
			[]uint32{hw.MethodSetWatchdogTimeout}))
	})

	It("should program the watchdog before any other request", func() {
		regs := regbus.NewRegFile()
		regs.Poke(hw.FecsBase+hw.FalconHwcfg, hw.Hwcfg(2, 2))
		regs.Poke(hw.GpccsBase+hw.FalconHwcfg, hw.Hwcfg(2, 2))
		newFakeFecs(regs)

		bus := regbus.NewHookedBus(regs)
		log := regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			switch a.Addr {
			case hw.FecsMailboxClear(0), hw.FecsMethodData, hw.FecsMethodPush:
				return a.Kind == regbus.AccessWrite
			case hw.FecsMailbox(0):
				return a.Kind == regbus.AccessRead
			}

			return false
		})
		bus.AcceptHook(log)

		s := NewSubmitter(bus, testPollConfig())
		ctx := context.Background()

		// Other requests are issued as soon as the handshake is visible.
		g := new(errgroup.Group)
		var once sync.Once
		bus.AcceptHook(hooking.NewHookFunc(func(hc hooking.HookCtx) {
			a := hc.Item.(regbus.Access)
			if a.Kind != regbus.AccessRead || a.Addr != hw.FecsMailbox(0) ||
				a.Value != HandshakeInitComplete {
				return
			}

			once.Do(func() {
				for i := 0; i < 4; i++ {
					g.Go(func() error {
						_, err := s.Submit(ctx, Method{
							MailboxClear: ^uint32(0),
							Addr:         hw.MethodBindPointer,
							Ok:           Eq(hw.CtxswMailboxValuePass),
						})

						return err
					})
				}
			})
		}))

		err := NewPair(bus).Bootstrap(ctx, s, Images{
			Fecs:  Image{Inst: []uint32{1}, Data: []uint32{2}},
			Gpccs: Image{Inst: []uint32{3}, Data: []uint32{4}},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(g.Wait()).To(Succeed())

		pushes := log.Writes(hw.FecsMethodPush)
		Expect(pushes).To(HaveLen(5))
		Expect(pushes[0]).To(Equal(uint32(hw.MethodSetWatchdogTimeout)))

		entries := log.Entries()
		watchdog := -1
		for i, a := range entries {
			if a.Addr == hw.FecsMethodPush {
				watchdog = i
				break
			}
		}

		Expect(watchdog).To(BeNumerically(">=", 3))
		Expect(entries[watchdog-3 : watchdog+1]).To(Equal([]regbus.Access{
			{Kind: regbus.AccessRead, Addr: hw.FecsMailbox(0), Value: HandshakeInitComplete},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMailboxClear(0), Value: 0xffffffff},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMethodData, Value: WatchdogTimeout},
			{Kind: regbus.AccessWrite, Addr: hw.FecsMethodPush, Value: hw.MethodSetWatchdogTimeout},
		}))
	})

	It("should fail when the handshake never comes", func() {
		regs := regbus.NewRegFile()
		bus := regbus.NewHookedBus(regs)
		s := NewSubmitter(bus, testPollConfig())

		err := NewPair(bus).Bootstrap(context.Background(), s, Images{})

		Expect(err).To(MatchError(ErrTimeout))
	})
})
