package gr

import (
	"github.com/sarchlab/grengine/hw"
)

// cbConfig holds the circular buffer sizes, in cbm granules.
type cbConfig struct {
	bundleCbDefaultSize uint32
	minGpmFifoDepth     uint32
	bundleCbTokenLimit  uint32
	attribCbDefaultSize uint32
	alphaCbDefaultSize  uint32
	attribCbSize        uint32
	alphaCbSize         uint32
	timesliceMode       bool
}

func defaultCBConfig(timeslice bool) cbConfig {
	c := cbConfig{
		bundleCbDefaultSize: hw.BundleCbSizeProd,
		minGpmFifoDepth:     hw.StateLimitMinGpmFifoDepth,
		bundleCbTokenLimit:  hw.TokenLimitInit,
		attribCbDefaultSize: hw.CbmCfgSizeDefault,
		alphaCbDefaultSize:  hw.CbmCfg2SizeDefault,
		timesliceMode:       timeslice,
	}
	c.attribCbSize = c.attribCbDefaultSize
	c.alphaCbSize = c.alphaCbDefaultSize + c.alphaCbDefaultSize>>1

	return c
}

// sink selects where register writes for ch go.
func (e *Engine) sink(ch *Channel, patch bool) WriteSink {
	if patch {
		return Deferred{Patch: &ch.ctx.Patch, Memory: e.mm}
	}

	return Direct{Bus: e.bus}
}

// commitInst points the instance block of ch at the context image at va.
func (e *Engine) commitInst(ch *Channel, va uint64) {
	e.mm.FlushFB()
	e.mm.FlushL2(true)

	lo := uint32(va >> hw.InstBlockShift)
	hi := uint32(va >> 32)

	ch.InstBlock.Write32(hw.InstGrWfiTarget,
		hw.InstGrCsWfi|hw.InstGrWfiModeVirtual|hw.InstGrWfiPtrLo(lo))
	ch.InstBlock.Write32(hw.InstGrWfiPtrHi, hw.InstGrWfiPtrHiValue(hi))

	e.mm.InvalidateL2()
}

func alignedAddr(va uint64, alignBits uint) uint32 {
	lo := uint32(va)
	hi := uint32(va >> 32)

	return lo>>alignBits | hi<<(32-alignBits)
}

// commitGlobalCtxBuffers programs the page pool, bundle and attribute
// circular buffers mapped into ch.
func (e *Engine) commitGlobalCtxBuffers(ch *Channel, s WriteSink) error {
	var w sinkWriter
	w.sink = s

	addr := alignedAddr(ch.ctx.GlobalVA[pagePoolVA], hw.PagepoolBaseAlignBits)
	size := uint32(e.global.bufs[bufPagePool].Size / hw.PagepoolByteGranularity)
	if size == hw.PagepoolHwmaxValue {
		size = hw.PagepoolHwmax
	}

	w.write(hw.GrSccPagepoolBase, addr)
	w.write(hw.GrSccPagepool, hw.TotalPages(size)|hw.ValidTrue)
	w.write(hw.GrGpcsGccPagepoolBase, addr)
	w.write(hw.GrGpcsGccPagepool, hw.TotalPages(size))
	w.write(hw.GrPdPagepool, hw.TotalPages(size)|hw.ValidTrue)

	addr = alignedAddr(ch.ctx.GlobalVA[circularVA], hw.BundleCbBaseAlignBits)
	size = e.cb.bundleCbDefaultSize

	w.write(hw.GrSccBundleCbBase, addr)
	w.write(hw.GrSccBundleCbSize, size&0x7ff|hw.ValidTrue)
	w.write(hw.GrGpcsSetupBundleBase, addr)
	w.write(hw.GrGpcsSetupBundleSize, size&0x7ff|hw.ValidTrue)

	stateLimit := min(
		e.cb.bundleCbDefaultSize*hw.BundleCbByteGranularity/hw.StateLimitBundleGran,
		e.cb.minGpmFifoDepth)
	w.write(hw.GrPdAbDistCfg2, hw.AbDistCfg2(e.cb.bundleCbTokenLimit, stateLimit))

	addr = alignedAddr(ch.ctx.GlobalVA[attributeVA], hw.AttribCbBaseAlignBits)
	w.write(hw.GrGpcsSetupAttribBase, addr|hw.ValidTrue)
	w.write(hw.GrGpcsTpcsPePinCbBase, addr|hw.ValidTrue)

	return w.err
}

// commitGlobalCBManager lays the attribute and alpha circular buffers out
// over the PES units, in proportion to their tpc counts.
func (e *Engine) commitGlobalCBManager(s WriteSink) error {
	var w sinkWriter
	w.sink = s

	t := e.topo

	w.write(hw.GrDsTgaConstraintLogic,
		hw.ConstraintAlphaCbsize(
			hw.ConstraintBetaCbsize(0, e.cb.attribCbDefaultSize),
			e.cb.alphaCbDefaultSize))

	maxOutput := e.cb.alphaCbDefaultSize * hw.CbmCfgSizeGranularity /
		hw.MaxOutputGranularity
	w.write(hw.GrPdAbDistCfg1, hw.AbDistCfg1(maxOutput))

	var timeslice uint32
	if e.cb.timesliceMode {
		timeslice = 1
	}

	attribOffset := uint32(0)
	alphaOffset := uint32(t.TpcCount) * e.cb.attribCbSize

	for gpc := 0; gpc < t.GpcCount; gpc++ {
		for ppc := 0; ppc < t.GpcPpcCount[gpc]; ppc++ {
			n := uint32(t.PesTpcCount[ppc][gpc])
			off := hw.PpcOffset(gpc, ppc)

			w.write(hw.Gpc0Ppc0CbmCfg+off,
				hw.CbmCfg(attribOffset, e.cb.attribCbDefaultSize*n, timeslice))
			attribOffset += e.cb.attribCbSize * n

			w.write(hw.Gpc0Ppc0CbmCfg2+off,
				hw.CbmCfg(alphaOffset, e.cb.alphaCbDefaultSize*n, 0))
			alphaOffset += e.cb.alphaCbSize * n
		}
	}

	return w.err
}

// commitGlobalTimeslice turns the timeslice bits on in the units that share
// the circular buffers.
func (e *Engine) commitGlobalTimeslice(s WriteSink) error {
	var w sinkWriter
	w.sink = s

	gpmPdCfg := e.bus.Read32(hw.GrGpcsGpmPdCfg)
	abDistCfg0 := e.bus.Read32(hw.GrPdAbDistCfg0)
	dsDebug := e.bus.Read32(hw.GrDsDebug)
	mpcVtgDebug := e.bus.Read32(hw.GrGpcsTpcsMpcVtgDebug)

	if !e.cb.timesliceMode {
		w.write(hw.GrGpcsGpmPdCfg, gpmPdCfg)
		w.write(hw.GrPdAbDistCfg0, abDistCfg0)
		w.write(hw.GrDsDebug, dsDebug)
		w.write(hw.GrGpcsTpcsMpcVtgDebug, mpcVtgDebug)

		return w.err
	}

	peVaf := e.bus.Read32(hw.GrGpcsTpcsPeVaf)
	pesVscVpc := e.bus.Read32(hw.GrGpcsTpcsPesVscVpc)

	w.write(hw.GrGpcsGpmPdCfg, gpmPdCfg|hw.GpmPdCfgTimesliceEnable)
	w.write(hw.GrGpcsTpcsPeVaf, peVaf|hw.PeVafFastModeSwitch)
	w.write(hw.GrGpcsTpcsPesVscVpc, pesVscVpc|hw.PesVscVpcFastModeSwitch)
	w.write(hw.GrPdAbDistCfg0, abDistCfg0|hw.TimesliceEnable)
	w.write(hw.GrDsDebug, dsDebug|hw.DsDebugTimesliceEnable)
	w.write(hw.GrGpcsTpcsMpcVtgDebug, mpcVtgDebug|hw.MpcVtgTimesliceEnable)

	return w.err
}

// sinkWriter keeps the first error of a write sequence so that programming
// code reads as a flat list of writes.
type sinkWriter struct {
	sink WriteSink
	err  error
}

func (w *sinkWriter) write(addr, value uint32) {
	if w.err != nil {
		return
	}

	w.err = w.sink.Write(addr, value)
}
