package gr

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

// ZbcType selects the color or the depth half of the zero-bandwidth-clear
// table.
type ZbcType int

// ZBC table kinds.
const (
	ZbcInvalid ZbcType = iota
	ZbcColor
	ZbcDepth
)

func (t ZbcType) String() string {
	switch t {
	case ZbcColor:
		return "color"
	case ZbcDepth:
		return "depth"
	default:
		return "invalid"
	}
}

// ZbcEntry is a clear value. Color entries carry the data-stream and the L2
// encodings of the color; depth entries carry a single depth word.
type ZbcEntry struct {
	Type    ZbcType
	Format  uint32
	ColorDS [hw.LtcZbcColorValues]uint32
	ColorL2 [hw.LtcZbcColorValues]uint32
	Depth   uint32
}

// ZbcQueryResult is the answer to QueryZbc.
type ZbcQueryResult struct {
	ZbcEntry
	RefCount  int
	TableSize int
}

type zbcSlot struct {
	entry ZbcEntry
	ref   int
}

type zbcTable struct {
	lock sync.Mutex

	colors [hw.ZbcTableSize]zbcSlot
	depths [hw.ZbcTableSize]zbcSlot

	maxUsedColor    int
	maxUsedDepth    int
	maxDefaultColor int
	maxDefaultDepth int
}

// AddZbc registers a clear value and returns its table index. A value that
// is already present only gains a reference. The hardware tables are only
// written while engine activity is disabled.
func (e *Engine) AddZbc(ctx context.Context, entry ZbcEntry) (int, error) {
	z := &e.zbc

	z.lock.Lock()
	defer z.lock.Unlock()

	return e.addZbcLocked(ctx, entry)
}

func (e *Engine) addZbcLocked(ctx context.Context, entry ZbcEntry) (int, error) {
	z := &e.zbc

	switch entry.Type {
	case ZbcColor:
		for i := 0; i < z.maxUsedColor; i++ {
			s := &z.colors[i]
			if s.ref == 0 || s.entry.Format != entry.Format ||
				s.entry.ColorDS != entry.ColorDS {
				continue
			}

			if s.entry.ColorL2 != entry.ColorL2 {
				return 0, fmt.Errorf("%w: color %d has different l2 values",
					ErrFormatMismatch, i)
			}

			s.ref++

			return i, nil
		}

		if z.maxUsedColor >= hw.ZbcTableSize {
			return 0, ErrTableFull
		}

		idx := z.maxUsedColor
		err := e.withEngineFenced(ctx, func() {
			e.writeZbcColor(idx, entry)
		})
		if err != nil {
			return 0, err
		}

		z.colors[idx] = zbcSlot{entry: entry, ref: 1}
		z.maxUsedColor++

		return idx, nil

	case ZbcDepth:
		for i := 0; i < z.maxUsedDepth; i++ {
			s := &z.depths[i]
			if s.ref == 0 || s.entry.Format != entry.Format ||
				s.entry.Depth != entry.Depth {
				continue
			}

			s.ref++

			return i, nil
		}

		if z.maxUsedDepth >= hw.ZbcTableSize {
			return 0, ErrTableFull
		}

		idx := z.maxUsedDepth
		err := e.withEngineFenced(ctx, func() {
			e.writeZbcDepth(idx, entry)
		})
		if err != nil {
			return 0, err
		}

		z.depths[idx] = zbcSlot{entry: entry, ref: 1}
		z.maxUsedDepth++

		return idx, nil

	default:
		return 0, fmt.Errorf("%w: zbc type %d", ErrInvalidArgument, entry.Type)
	}
}

// QueryZbc reads back an entry. Querying the invalid type reports the table
// size.
func (e *Engine) QueryZbc(typ ZbcType, index int) (ZbcQueryResult, error) {
	z := &e.zbc

	z.lock.Lock()
	defer z.lock.Unlock()

	var slots *[hw.ZbcTableSize]zbcSlot

	switch typ {
	case ZbcInvalid:
		return ZbcQueryResult{TableSize: hw.ZbcTableSize}, nil
	case ZbcColor:
		slots = &z.colors
	case ZbcDepth:
		slots = &z.depths
	default:
		return ZbcQueryResult{}, fmt.Errorf("%w: zbc type %d",
			ErrInvalidArgument, typ)
	}

	if index < 0 || index >= hw.ZbcTableSize {
		return ZbcQueryResult{}, fmt.Errorf("%w: zbc index %d",
			ErrInvalidArgument, index)
	}

	s := slots[index]
	r := ZbcQueryResult{
		ZbcEntry: s.entry,
		RefCount: s.ref,
	}
	r.Type = typ

	return r, nil
}

// ClearZbcTable drops every entry and loads the built-in defaults again.
func (e *Engine) ClearZbcTable(ctx context.Context) error {
	z := &e.zbc

	z.lock.Lock()
	defer z.lock.Unlock()

	if err := e.clearZbcLocked(ctx); err != nil {
		return err
	}

	return e.loadZbcDefaults(ctx)
}

func (e *Engine) clearZbcLocked(ctx context.Context) error {
	z := &e.zbc

	return e.withEngineFenced(ctx, func() {
		for i := 0; i < hw.ZbcTableSize; i++ {
			z.colors[i] = zbcSlot{}
			z.depths[i] = zbcSlot{}

			e.writeZbcColor(i, ZbcEntry{Format: hw.ZbcColorFmtInvalid})
			e.writeZbcDepth(i, ZbcEntry{Format: hw.ZbcZFmtInvalid})
		}

		z.maxUsedColor = 0
		z.maxUsedDepth = 0
		z.maxDefaultColor = 0
		z.maxDefaultDepth = 0
	})
}

var (
	defaultZbcColors = []ZbcEntry{
		{Type: ZbcColor, Format: hw.ZbcColorFmtZero},
		{
			Type:    ZbcColor,
			Format:  hw.ZbcColorFmtUnorm1,
			ColorDS: [4]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff},
			ColorL2: [4]uint32{0x3f800000, 0x3f800000, 0x3f800000, 0x3f800000},
		},
		{Type: ZbcColor, Format: hw.ZbcColorFmtRf32},
		{
			Type:    ZbcColor,
			Format:  hw.ZbcColorFmtRf32,
			ColorDS: [4]uint32{0x3f800000, 0x3f800000, 0x3f800000, 0x3f800000},
			ColorL2: [4]uint32{0x3f800000, 0x3f800000, 0x3f800000, 0x3f800000},
		},
	}

	defaultZbcDepths = []ZbcEntry{
		{Type: ZbcDepth, Format: hw.ZbcZFmtFp32, Depth: 0},
		{Type: ZbcDepth, Format: hw.ZbcZFmtFp32, Depth: 0x3f800000},
	}
)

func (e *Engine) loadZbcDefaults(ctx context.Context) error {
	z := &e.zbc

	for _, c := range defaultZbcColors {
		if _, err := e.addZbcLocked(ctx, c); err != nil {
			return fmt.Errorf("default zbc color table: %w", err)
		}
	}

	z.maxDefaultColor = len(defaultZbcColors)

	for _, d := range defaultZbcDepths {
		if _, err := e.addZbcLocked(ctx, d); err != nil {
			return fmt.Errorf("default zbc depth table: %w", err)
		}
	}

	z.maxDefaultDepth = len(defaultZbcDepths)

	return nil
}

// initZbc zeroes the L2 clear values, then rebuilds the table from the
// defaults.
func (e *Engine) initZbc(ctx context.Context) error {
	z := &e.zbc

	z.lock.Lock()
	defer z.lock.Unlock()

	for i := 0; i < hw.ZbcTableSize-hw.ZbcTableStart; i++ {
		e.selectL2ZbcIndex(i)

		for j := 0; j < hw.LtcZbcColorValues; j++ {
			e.bus.Write32(hw.LtcZbcColorClear(j), 0)
		}

		e.bus.Write32(hw.LtcZbcDepthClear, 0)
	}

	if err := e.clearZbcLocked(ctx); err != nil {
		return err
	}

	return e.loadZbcDefaults(ctx)
}

func (e *Engine) selectL2ZbcIndex(i int) {
	regbus.Modify(e.bus, hw.LtcZbcIndex,
		hw.LtcZbcIndexAddress(0, ^uint32(0)),
		hw.LtcZbcIndexAddress(0, uint32(i+hw.ZbcTableStart)))
}

func (e *Engine) writeZbcColor(i int, entry ZbcEntry) {
	bus := e.bus

	e.selectL2ZbcIndex(i)
	for j := 0; j < hw.LtcZbcColorValues; j++ {
		bus.Write32(hw.LtcZbcColorClear(j), entry.ColorL2[j])
	}

	bus.Write32(hw.GrDsZbcColorR, entry.ColorDS[0])
	bus.Write32(hw.GrDsZbcColorG, entry.ColorDS[1])
	bus.Write32(hw.GrDsZbcColorB, entry.ColorDS[2])
	bus.Write32(hw.GrDsZbcColorA, entry.ColorDS[3])
	bus.Write32(hw.GrDsZbcColorFmt, entry.Format)
	bus.Write32(hw.GrDsZbcTblIndex, uint32(i+hw.ZbcTableStart))
	bus.Write32(hw.GrDsZbcTblLd,
		hw.ZbcTblLdSelectC|hw.ZbcTblLdWrite|hw.ZbcTblLdTrigger)
}

func (e *Engine) writeZbcDepth(i int, entry ZbcEntry) {
	bus := e.bus

	e.selectL2ZbcIndex(i)
	bus.Write32(hw.LtcZbcDepthClear, entry.Depth)

	bus.Write32(hw.GrDsZbcZ, entry.Depth)
	bus.Write32(hw.GrDsZbcZFmt, entry.Format)
	bus.Write32(hw.GrDsZbcTblIndex, uint32(i+hw.ZbcTableStart))
	bus.Write32(hw.GrDsZbcTblLd,
		hw.ZbcTblLdSelectZ|hw.ZbcTblLdWrite|hw.ZbcTblLdTrigger)
}

// withEngineFenced runs write with graphics activity disabled and the engine
// idle. Activity is enabled again even when the engine never went idle.
func (e *Engine) withEngineFenced(ctx context.Context, write func()) error {
	if err := e.sched.DisableEngineActivity(ctx, hw.GrEngineID); err != nil {
		return fmt.Errorf("disable engine activity: %w", classify(err))
	}

	err := e.WaitIdle(ctx)
	if err == nil {
		write()
	}

	if enErr := e.sched.EnableEngineActivity(hw.GrEngineID); enErr != nil {
		e.log.WithError(enErr).Warn("failed to enable engine activity")
		if err == nil {
			err = classify(enErr)
		}
	}

	return err
}
