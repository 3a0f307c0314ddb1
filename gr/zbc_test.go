package gr

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

var _ = Describe("ZBC table", func() {
	var (
		mockCtrl *gomock.Controller
		sched    *MockScheduler
		bus      *regbus.HookedBus
		accesses *regbus.AccessLog
		e        *Engine
		ctx      context.Context
	)

	color := func(v uint32) ZbcEntry {
		return ZbcEntry{
			Type:    ZbcColor,
			Format:  hw.ZbcColorFmtA8B8G8R8,
			ColorDS: [4]uint32{v, v, v, v},
			ColorL2: [4]uint32{v + 1, v + 1, v + 1, v + 1},
		}
	}

	expectFenced := func(times int) {
		sched.EXPECT().
			DisableEngineActivity(gomock.Any(), hw.GrEngineID).
			Return(nil).
			Times(times)
		sched.EXPECT().
			EnableEngineActivity(hw.GrEngineID).
			Return(nil).
			Times(times)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sched = NewMockScheduler(mockCtrl)
		bus = regbus.NewHookedBus(regbus.NewRegFile())
		accesses = regbus.NewFilteredAccessLog(func(a regbus.Access) bool {
			return a.Kind == regbus.AccessWrite
		})
		bus.AcceptHook(accesses)
		e = newTestEngine(bus, newTestMemory(), sched)
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write a new color with engine activity disabled", func() {
		expectFenced(1)

		idx, err := e.AddZbc(ctx, color(0x10))

		Expect(err).ToNot(HaveOccurred())
		Expect(idx).To(Equal(0))
		Expect(accesses.Writes(hw.GrDsZbcColorR)).To(Equal([]uint32{0x10}))
		Expect(accesses.Writes(hw.GrDsZbcTblIndex)).
			To(Equal([]uint32{hw.ZbcTableStart}))
		Expect(accesses.Writes(hw.LtcZbcColorClear(0))).To(Equal([]uint32{0x11}))
	})

	It("should count references to a known color", func() {
		expectFenced(1)

		_, err := e.AddZbc(ctx, color(0x10))
		Expect(err).ToNot(HaveOccurred())
		accesses.Clear()

		idx, err := e.AddZbc(ctx, color(0x10))

		Expect(err).ToNot(HaveOccurred())
		Expect(idx).To(Equal(0))
		Expect(accesses.Entries()).To(BeEmpty())

		r, err := e.QueryZbc(ZbcColor, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(r.RefCount).To(Equal(2))
		Expect(r.ColorDS).To(Equal(color(0x10).ColorDS))
	})

	It("should reject a color whose l2 value differs", func() {
		expectFenced(1)

		_, err := e.AddZbc(ctx, color(0x10))
		Expect(err).ToNot(HaveOccurred())
		accesses.Clear()

		mismatch := color(0x10)
		mismatch.ColorL2[2] = 0xdead

		_, err = e.AddZbc(ctx, mismatch)

		Expect(err).To(MatchError(ErrFormatMismatch))
		Expect(accesses.Entries()).To(BeEmpty())
	})

	It("should reject new colors once the table is full", func() {
		expectFenced(hw.ZbcTableSize)

		for i := 0; i < hw.ZbcTableSize; i++ {
			idx, err := e.AddZbc(ctx, color(uint32(i)<<8))
			Expect(err).ToNot(HaveOccurred())
			Expect(idx).To(Equal(i))
		}

		_, err := e.AddZbc(ctx, color(0xffff00))

		Expect(err).To(MatchError(ErrTableFull))
	})

	It("should share depth entries", func() {
		expectFenced(1)

		d := ZbcEntry{Type: ZbcDepth, Format: hw.ZbcZFmtFp32, Depth: 0x3f000000}

		first, err := e.AddZbc(ctx, d)
		Expect(err).ToNot(HaveOccurred())
		second, err := e.AddZbc(ctx, d)
		Expect(err).ToNot(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(accesses.Writes(hw.GrDsZbcZ)).To(Equal([]uint32{0x3f000000}))
	})

	It("should not write when engine activity cannot be disabled", func() {
		sched.EXPECT().
			DisableEngineActivity(gomock.Any(), hw.GrEngineID).
			Return(errors.New("busy"))

		_, err := e.AddZbc(ctx, color(0x10))

		Expect(err).To(HaveOccurred())
		Expect(accesses.Entries()).To(BeEmpty())

		r, _ := e.QueryZbc(ZbcColor, 0)
		Expect(r.RefCount).To(BeZero())
	})

	It("should reject the invalid type", func() {
		_, err := e.AddZbc(ctx, ZbcEntry{Type: ZbcInvalid})

		Expect(err).To(MatchError(ErrInvalidArgument))
	})

	It("should report the table size for the invalid type", func() {
		r, err := e.QueryZbc(ZbcInvalid, 0)

		Expect(err).ToNot(HaveOccurred())
		Expect(r.TableSize).To(Equal(hw.ZbcTableSize))
	})

	It("should reject out of range queries", func() {
		_, err := e.QueryZbc(ZbcDepth, hw.ZbcTableSize)

		Expect(err).To(MatchError(ErrInvalidArgument))
	})

	It("should load the defaults after a clear", func() {
		expectFenced(1 + len(defaultZbcColors) + len(defaultZbcDepths))

		Expect(e.ClearZbcTable(ctx)).To(Succeed())

		r, err := e.QueryZbc(ZbcColor, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Format).To(Equal(uint32(hw.ZbcColorFmtUnorm1)))
		Expect(r.RefCount).To(Equal(1))

		r, err = e.QueryZbc(ZbcDepth, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Depth).To(Equal(uint32(0x3f800000)))

		r, _ = e.QueryZbc(ZbcColor, len(defaultZbcColors))
		Expect(r.RefCount).To(BeZero())

		Expect(e.Snapshot().ZbcColors).To(HaveLen(len(defaultZbcColors)))
	})
})
